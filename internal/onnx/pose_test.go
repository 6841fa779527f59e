package onnx

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoseInputLayout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 51, A: 255})
		}
	}

	in := PoseInput(img, 4)
	require.Len(t, in, 4*4*3)
	for i := 0; i < len(in); i += 3 {
		assert.InDelta(t, 1.0, in[i], 1e-6)
		assert.InDelta(t, 0.0, in[i+1], 1e-6)
		assert.InDelta(t, 0.2, in[i+2], 1e-6)
	}
}

func TestDecodeLandmarks(t *testing.T) {
	raw := []float32{
		128, 64, 0, 1, 1,
		0, 256, 0, 1, 1,
		999, 999, 0, 0, 0, // beyond count, ignored
	}
	obs, err := DecodeLandmarks(raw, 2, 5, 256)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.InDelta(t, 0.5, obs[0].X, 1e-9)
	assert.InDelta(t, 0.25, obs[0].Y, 1e-9)
	assert.InDelta(t, 0.0, obs[1].X, 1e-9)
	assert.InDelta(t, 1.0, obs[1].Y, 1e-9)
}

func TestDecodeLandmarksShortOutput(t *testing.T) {
	_, err := DecodeLandmarks(make([]float32, 10), 33, 5, 256)
	assert.Error(t, err)

	_, err = DecodeLandmarks(make([]float32, 10), 1, 1, 256)
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	var p PoseConfig
	p.WithDefaults()
	assert.Equal(t, 256, p.InputSize)
	assert.Equal(t, 33, p.Landmarks)
	assert.Equal(t, float32(0.7), p.MinPresence)

	e := EmbeddingConfig{InputName: "clip"}
	e.WithDefaults()
	assert.Equal(t, "clip", e.InputName)
	assert.Equal(t, "embedding", e.OutputName)
}
