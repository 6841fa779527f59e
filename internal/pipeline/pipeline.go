// Package pipeline assembles the video-analysis stages from configuration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/motion-compare/internal/clips"
	"github.com/tendant/motion-compare/internal/config"
	"github.com/tendant/motion-compare/internal/embedding"
	"github.com/tendant/motion-compare/internal/motion"
	"github.com/tendant/motion-compare/internal/onnx"
	"github.com/tendant/motion-compare/internal/storage"
	"github.com/tendant/motion-compare/internal/video"
)

// Pipeline holds the loaded models and the stages built on them.
// Models are loaded once and shared by every comparison.
type Pipeline struct {
	Decoder  *video.Decoder
	Detector *motion.Detector
	Clips    *clips.Extractor
	Engine   *embedding.Engine

	pose  *onnx.PoseEstimator
	model *onnx.EmbeddingModel
}

// New initializes ONNX Runtime, loads both models and wires the stages
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if cfg.Models.PosePath == "" || cfg.Models.EmbeddingPath == "" {
		return nil, errors.New("POSE_MODEL_PATH and EMBEDDING_MODEL_PATH are required")
	}

	if err := onnx.Init(cfg.Models.RuntimeLibrary); err != nil {
		return nil, err
	}

	pose, err := onnx.NewPoseEstimator(onnx.PoseConfig{
		Path:        cfg.Models.PosePath,
		MinPresence: cfg.Pipeline.MinPoseConfidence,
	})
	if err != nil {
		onnx.Shutdown()
		return nil, err
	}

	model, err := onnx.NewEmbeddingModel(onnx.EmbeddingConfig{Path: cfg.Models.EmbeddingPath})
	if err != nil {
		pose.Close()
		onnx.Shutdown()
		return nil, err
	}

	p := cfg.Pipeline
	decoder := video.NewDecoder(p.FFmpegPath, p.FFprobePath)
	extractor := clips.NewExtractor(decoder, p.ClipLength, p.ClipSize)

	logger.Info("Models loaded",
		"pose", cfg.Models.PosePath,
		"embedding", cfg.Models.EmbeddingPath,
		"clip_length", p.ClipLength,
		"clip_size", p.ClipSize,
		"threshold", p.StaticMotionThreshold,
	)

	return &Pipeline{
		Decoder:  decoder,
		Detector: motion.NewDetector(decoder, pose, p.StaticMotionThreshold, logger),
		Clips:    extractor,
		Engine: embedding.NewEngine(extractor, model, embedding.Normalization{
			Mean: p.NormalizeMean,
			Std:  p.NormalizeStd,
		}, logger),
		pose:  pose,
		model: model,
	}, nil
}

// Close releases both sessions and the runtime
func (p *Pipeline) Close() error {
	return errors.Join(p.pose.Close(), p.model.Close(), onnx.Shutdown())
}

// NewSource picks the video source: S3 when a bucket is configured, the
// simple-content HTTP API when CONTENT_API_URL is set, otherwise the
// local storage directory.
func NewSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.VideoSource, error) {
	switch {
	case cfg.AWS.Bucket != "":
		logger.Info("Using S3 video source", "bucket", cfg.AWS.Bucket, "region", cfg.AWS.Region)
		return storage.NewS3Source(ctx, storage.S3Config{
			Region:    cfg.AWS.Region,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Bucket:    cfg.AWS.Bucket,
		}, cfg.TempDir)
	case cfg.ContentAPIURL != "":
		logger.Info("Using simple-content HTTP API", "url", cfg.ContentAPIURL)
		return storage.NewHTTPContentSource(cfg.ContentAPIURL, cfg.TempDir), nil
	default:
		logger.Info("Using filesystem video source", "dir", cfg.StorageDir)
		src, err := storage.NewFilesystemSource(cfg.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create filesystem source: %w", err)
		}
		return src, nil
	}
}
