package onnx

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"

	"github.com/tendant/motion-compare/internal/motion"
)

// PoseConfig describes a single-person landmark model taking an NHWC
// RGB image in [0,1] and producing flattened per-landmark rows plus a
// presence score.
type PoseConfig struct {
	Path           string
	InputName      string
	LandmarkOutput string
	PresenceOutput string
	// InputSize is the square model input edge in pixels
	InputSize int
	// Landmarks is the number of body landmarks kept from each row set
	Landmarks int
	// Stride is the number of values per landmark row (x, y, ...)
	Stride int
	// MinPresence is the presence score needed to report a person
	MinPresence float32
}

// WithDefaults fills values matching the BlazePose full landmark export
func (c *PoseConfig) WithDefaults() {
	if c.InputName == "" {
		c.InputName = "input_1"
	}
	if c.LandmarkOutput == "" {
		c.LandmarkOutput = "Identity"
	}
	if c.PresenceOutput == "" {
		c.PresenceOutput = "Identity_1"
	}
	if c.InputSize == 0 {
		c.InputSize = 256
	}
	if c.Landmarks == 0 {
		c.Landmarks = 33
	}
	if c.Stride == 0 {
		c.Stride = 5
	}
	if c.MinPresence == 0 {
		c.MinPresence = 0.7
	}
}

// PoseEstimator implements motion.PoseEstimator with an ONNX model
type PoseEstimator struct {
	cfg  PoseConfig
	sess *session
}

// NewPoseEstimator loads the model; Init must have been called
func NewPoseEstimator(cfg PoseConfig) (*PoseEstimator, error) {
	cfg.WithDefaults()
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("pose model not found: %w", err)
	}
	sess, err := newSession(cfg.Path,
		[]string{cfg.InputName},
		[]string{cfg.LandmarkOutput, cfg.PresenceOutput})
	if err != nil {
		return nil, err
	}
	return &PoseEstimator{cfg: cfg, sess: sess}, nil
}

// Estimate returns the landmarks of the most prominent person, or nil
// when the presence score is below the configured minimum.
func (p *PoseEstimator) Estimate(ctx context.Context, frame image.Image) (motion.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size := p.cfg.InputSize
	input := PoseInput(frame, size)
	outs, err := p.sess.run(input, []int64{1, int64(size), int64(size), 3})
	if err != nil {
		return nil, err
	}
	if len(outs[1]) == 0 {
		return nil, fmt.Errorf("pose model returned no presence score")
	}
	if outs[1][0] < p.cfg.MinPresence {
		return nil, nil
	}
	return DecodeLandmarks(outs[0], p.cfg.Landmarks, p.cfg.Stride, size)
}

// Close releases the session
func (p *PoseEstimator) Close() error {
	return p.sess.close()
}

// PoseInput resizes frame to size×size and lays it out as HWC RGB in [0,1]
func PoseInput(frame image.Image, size int) []float32 {
	img := imaging.Resize(frame, size, size, imaging.Linear)
	out := make([]float32, 0, size*size*3)
	for y := 0; y < size; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+size*4]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+3]
			out = append(out, float32(px[0])/255, float32(px[1])/255, float32(px[2])/255)
		}
	}
	return out
}

// DecodeLandmarks converts pixel-space landmark rows to normalized
// coordinates, keeping the first count rows.
func DecodeLandmarks(raw []float32, count, stride, size int) (motion.Observation, error) {
	if stride < 2 {
		return nil, fmt.Errorf("landmark stride must be at least 2: %d", stride)
	}
	if len(raw) < count*stride {
		return nil, fmt.Errorf("landmark output too short: got %d values, need %d", len(raw), count*stride)
	}
	obs := make(motion.Observation, count)
	s := float64(size)
	for i := range obs {
		row := raw[i*stride:]
		obs[i] = motion.Landmark{X: float64(row[0]) / s, Y: float64(row[1]) / s}
	}
	return obs, nil
}
