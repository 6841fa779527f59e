package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/motion-compare/internal/clips"
)

// ErrEmptyVideo is returned when a video produces no clips
var ErrEmptyVideo = errors.New("video produced no clips")

// Vector is a fixed-length embedding
type Vector []float32

// Model runs a pretrained video embedding network on one clip tensor of
// the given shape ([1, C, T, H, W]) and returns its raw embedding.
// Implementations must be safe for concurrent use and must not change
// their weights.
type Model interface {
	Infer(ctx context.Context, input []float32, shape []int64) ([]float32, error)
}

// ClipSource produces the clip sequence for a video
type ClipSource interface {
	Extract(ctx context.Context, path string) ([]clips.Clip, error)
}

// Normalization holds per-channel normalization constants
type Normalization struct {
	Mean float32
	Std  float32
}

// DefaultNormalization maps [0,1] inputs to [-1,1]
var DefaultNormalization = Normalization{Mean: 0.5, Std: 0.5}

// Engine turns a video into one embedding vector
type Engine struct {
	clips  ClipSource
	model  Model
	norm   Normalization
	logger *slog.Logger
}

// NewEngine creates an embedding engine
func NewEngine(source ClipSource, model Model, norm Normalization, logger *slog.Logger) *Engine {
	if norm.Std == 0 {
		norm = DefaultNormalization
	}
	return &Engine{
		clips:  source,
		model:  model,
		norm:   norm,
		logger: logger,
	}
}

// Embed extracts all clips of the video, embeds each one and returns the
// elementwise mean of the clip embeddings.
func (e *Engine) Embed(ctx context.Context, path string) (Vector, error) {
	e.logger.Debug("Computing video embedding", "path", path)

	all, err := e.clips.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract clips: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyVideo)
	}

	embeddings := make([][]float32, 0, len(all))
	for i, clip := range all {
		input, shape, err := e.Tensor(clip)
		if err != nil {
			return nil, fmt.Errorf("clip %d: %w", i, err)
		}
		out, err := e.model.Infer(ctx, input, shape)
		if err != nil {
			return nil, fmt.Errorf("embed clip %d: %w", i, err)
		}
		embeddings = append(embeddings, out)
	}

	vec, err := Mean(embeddings)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Video embedding ready", "path", path, "clips", len(all), "dims", len(vec))
	return vec, nil
}

// Tensor lays out a clip as a normalized [1, C, T, H, W] tensor.
// Clip frames are HWC with three channels and square dimensions.
func (e *Engine) Tensor(clip clips.Clip) ([]float32, []int64, error) {
	const channels = 3
	t := len(clip.Frames)
	if t == 0 {
		return nil, nil, errors.New("empty clip")
	}
	pixels := len(clip.Frames[0]) / channels
	size := isqrt(pixels)
	if size*size*channels != len(clip.Frames[0]) {
		return nil, nil, fmt.Errorf("frame of %d values is not a square RGB image", len(clip.Frames[0]))
	}

	data := make([]float32, channels*t*pixels)
	for ti, frame := range clip.Frames {
		if len(frame) != pixels*channels {
			return nil, nil, fmt.Errorf("frame %d has %d values, want %d", ti, len(frame), pixels*channels)
		}
		for p := 0; p < pixels; p++ {
			for c := 0; c < channels; c++ {
				v := frame[p*channels+c]
				data[(c*t+ti)*pixels+p] = (v - e.norm.Mean) / e.norm.Std
			}
		}
	}
	return data, []int64{1, channels, int64(t), int64(size), int64(size)}, nil
}

// Mean averages equally sized vectors elementwise
func Mean(vectors [][]float32) (Vector, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyVideo
	}
	dims := len(vectors[0])
	sum := make([]float64, dims)
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("embedding %d has %d dims, want %d", i, len(v), dims)
		}
		for j, x := range v {
			sum[j] += float64(x)
		}
	}
	out := make(Vector, dims)
	for j := range sum {
		out[j] = float32(sum[j] / float64(len(vectors)))
	}
	return out, nil
}

func isqrt(n int) int {
	r := 0
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}
