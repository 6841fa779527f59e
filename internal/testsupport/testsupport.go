// Package testsupport provides in-memory fakes for videos, pose
// estimation and embedding models shared by package tests.
package testsupport

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/tendant/motion-compare/internal/motion"
	"github.com/tendant/motion-compare/internal/video"
)

// SolidFrame returns a w x h frame filled with a single grey level
func SolidFrame(w, h int, level uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: level, G: level, B: level, A: 0xff})
		}
	}
	return img
}

// Frames returns n distinct solid frames
func Frames(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = SolidFrame(4, 4, uint8(i%256))
	}
	return out
}

// Videos is a video.Opener over in-memory frame lists keyed by path
type Videos struct {
	mu     sync.Mutex
	frames map[string][]image.Image
	fail   map[string]error
	opened []string
	open   int
	// FailAt makes decoding of a path fail at the given frame index
	FailAt map[string]int
}

// NewVideos creates an empty in-memory video set
func NewVideos() *Videos {
	return &Videos{
		frames: map[string][]image.Image{},
		fail:   map[string]error{},
		FailAt: map[string]int{},
	}
}

// Add registers frames under path
func (v *Videos) Add(path string, frames []image.Image) *Videos {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frames[path] = frames
	return v
}

// FailOpen makes Open(path) return err
func (v *Videos) FailOpen(path string, err error) *Videos {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fail[path] = err
	return v
}

// Open implements video.Opener
func (v *Videos) Open(_ context.Context, path string) (video.Handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err, ok := v.fail[path]; ok {
		return nil, err
	}
	frames, ok := v.frames[path]
	if !ok {
		return nil, fmt.Errorf("no such video: %s", path)
	}
	v.opened = append(v.opened, path)
	v.open++
	failAt := -1
	if n, ok := v.FailAt[path]; ok {
		failAt = n
	}
	return &sliceHandle{owner: v, frames: frames, failAt: failAt}, nil
}

// Opened lists paths in the order they were opened
func (v *Videos) Opened() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.opened...)
}

// OpenHandles counts handles not yet closed
func (v *Videos) OpenHandles() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

type sliceHandle struct {
	owner  *Videos
	frames []image.Image
	pos    int
	failAt int
	closed bool
}

func (h *sliceHandle) Next() (image.Image, error) {
	if h.pos == h.failAt {
		return nil, errors.New("corrupt frame")
	}
	if h.pos >= len(h.frames) {
		return nil, io.EOF
	}
	f := h.frames[h.pos]
	h.pos++
	return f, nil
}

func (h *sliceHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.owner.mu.Lock()
	h.owner.open--
	h.owner.mu.Unlock()
	return nil
}

// PoseTable is a motion.PoseEstimator answering from a per-frame table.
// Frames missing from the table have no person.
type PoseTable struct {
	mu    sync.Mutex
	poses map[image.Image]motion.Observation
	Err   error
	calls int
}

// NewPoseTable creates an empty pose table
func NewPoseTable() *PoseTable {
	return &PoseTable{poses: map[image.Image]motion.Observation{}}
}

// Set assigns an observation to a frame
func (p *PoseTable) Set(frame image.Image, obs motion.Observation) *PoseTable {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.poses[frame] = obs
	return p
}

// Estimate implements motion.PoseEstimator
func (p *PoseTable) Estimate(_ context.Context, frame image.Image) (motion.Observation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.Err != nil {
		return nil, p.Err
	}
	return p.poses[frame], nil
}

// Calls reports how many frames were estimated
func (p *PoseTable) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Pose builds an observation of n landmarks all offset by (dx, dy)
func Pose(n int, dx, dy float64) motion.Observation {
	obs := make(motion.Observation, n)
	for i := range obs {
		obs[i] = motion.Landmark{X: 0.1*float64(i%10) + dx, Y: 0.05*float64(i%20) + dy}
	}
	return obs
}

// StatsModel is an embedding model whose output summarises the input
// tensor: per-channel means followed by the overall min and max. It is
// deterministic, which is all the pipeline contract needs.
type StatsModel struct {
	mu    sync.Mutex
	calls int
	Err   error
}

// Infer implements embedding.Model for a [1, C, T, H, W] tensor
func (m *StatsModel) Infer(_ context.Context, input []float32, shape []int64) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(shape) != 5 {
		return nil, fmt.Errorf("unexpected shape %v", shape)
	}
	channels := int(shape[1])
	per := len(input) / channels
	out := make([]float32, 0, channels+2)
	lo, hi := input[0], input[0]
	for c := 0; c < channels; c++ {
		var sum float32
		for _, v := range input[c*per : (c+1)*per] {
			sum += v
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		out = append(out, sum/float32(per))
	}
	return append(out, lo, hi), nil
}

// Calls reports how many clips were embedded
func (m *StatsModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
