package clips

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/tendant/motion-compare/internal/video"
)

// Defaults match the input layout of the pretrained 3D-conv embedding model
const (
	DefaultLength = 16
	DefaultSize   = 112
)

// Frame is one resized frame in HWC order with RGB intensities in [0,1]
type Frame []float32

// Clip is a fixed-length run of frames, the embedding model's input unit
type Clip struct {
	Frames []Frame
}

// Extractor splits a video into fixed-length clips of resized frames
type Extractor struct {
	opener video.Opener
	length int
	size   int
}

// NewExtractor creates a clip extractor. Zero values take the defaults.
func NewExtractor(opener video.Opener, length, size int) *Extractor {
	if length <= 0 {
		length = DefaultLength
	}
	if size <= 0 {
		size = DefaultSize
	}
	return &Extractor{
		opener: opener,
		length: length,
		size:   size,
	}
}

// Length returns the number of frames per clip
func (e *Extractor) Length() int { return e.length }

// Size returns the square frame edge in pixels
func (e *Extractor) Size() int { return e.size }

// Extract decodes the whole video and returns its clips in temporal order.
// A trailing partial window is padded by repeating its last frame.
func (e *Extractor) Extract(ctx context.Context, path string) ([]Clip, error) {
	handle, err := e.opener.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer handle.Close()

	var (
		result []Clip
		window = make([]Frame, 0, e.length)
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := handle.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}

		window = append(window, e.prepare(img))
		if len(window) == e.length {
			result = append(result, Clip{Frames: window})
			window = make([]Frame, 0, e.length)
		}
	}

	if len(window) > 0 {
		result = append(result, Clip{Frames: Pad(window, e.length)})
	}
	return result, nil
}

// prepare resizes a frame to size x size and rescales it to [0,1]
func (e *Extractor) prepare(img image.Image) Frame {
	resized := imaging.Resize(img, e.size, e.size, imaging.Linear)
	return Normalize(resized)
}

// Normalize converts an NRGBA image to an HWC float frame in [0,1]
func Normalize(img *image.NRGBA) Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	frame := make(Frame, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			frame = append(frame,
				float32(px[0])/255.0,
				float32(px[1])/255.0,
				float32(px[2])/255.0,
			)
		}
	}
	return frame
}

// Pad repeats the last frame until the window holds length frames
func Pad(window []Frame, length int) []Frame {
	if len(window) == 0 {
		return window
	}
	last := window[len(window)-1]
	for len(window) < length {
		window = append(window, last)
	}
	return window
}
