package onnx

import (
	"context"
	"fmt"
	"os"
)

// EmbeddingConfig names the embedding model and its tensors
type EmbeddingConfig struct {
	Path       string
	InputName  string
	OutputName string
}

// WithDefaults fills the tensor names used by the exported R(2+1)D model
func (c *EmbeddingConfig) WithDefaults() {
	if c.InputName == "" {
		c.InputName = "input"
	}
	if c.OutputName == "" {
		c.OutputName = "embedding"
	}
}

// EmbeddingModel maps one normalized clip tensor to a feature vector
type EmbeddingModel struct {
	sess *session
}

// NewEmbeddingModel loads the model; Init must have been called
func NewEmbeddingModel(cfg EmbeddingConfig) (*EmbeddingModel, error) {
	cfg.WithDefaults()
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("embedding model not found: %w", err)
	}
	sess, err := newSession(cfg.Path, []string{cfg.InputName}, []string{cfg.OutputName})
	if err != nil {
		return nil, err
	}
	return &EmbeddingModel{sess: sess}, nil
}

// Infer runs the model on one [1,C,T,H,W] tensor
func (m *EmbeddingModel) Infer(ctx context.Context, input []float32, shape []int64) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outs, err := m.sess.run(input, shape)
	if err != nil {
		return nil, err
	}
	if len(outs[0]) == 0 {
		return nil, fmt.Errorf("embedding model returned an empty output")
	}
	return outs[0], nil
}

// Close releases the session
func (m *EmbeddingModel) Close() error {
	return m.sess.close()
}
