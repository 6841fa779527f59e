package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds service configuration read from the environment
type Config struct {
	// HTTPAddr is the listen address for the comparison API
	// Optional. Defaults to ":7000"
	HTTPAddr string

	// LogLevel is one of debug, info, warn, error
	// Optional. Defaults to "info"
	LogLevel string

	// JWTSecret verifies HS256 bearer tokens issued by the calling server
	// Optional. When empty, requests are not authenticated
	JWTSecret string

	// Pipeline tuning knobs
	Pipeline PipelineConfig

	// Models holds ONNX model locations
	Models ModelConfig

	// AWS holds S3 access for the video source
	AWS AWSConfig

	// DatabaseURL is the PostgreSQL connection string for accuracy results
	// Optional. Built from POSTGRES_* variables when not set directly
	DatabaseURL string

	// DBOSDatabaseURL enables the async comparison queue when set
	DBOSDatabaseURL string

	// DBOSQueueName is the name of the comparison workflow queue
	DBOSQueueName string

	// DBOSConcurrency and DBOSGlobalConcurrency limit queued comparisons
	// per worker and across workers; zero takes the runtime defaults
	DBOSConcurrency       int
	DBOSGlobalConcurrency int

	// ContentAPIURL selects the simple-content HTTP API as video source
	ContentAPIURL string

	// StorageDir is the local video/result directory used in standalone mode
	StorageDir string

	// TempDir receives downloaded videos; defaults to the OS temp dir
	TempDir string
}

// PipelineConfig holds the video-analysis knobs
type PipelineConfig struct {
	StaticMotionThreshold float64
	ClipLength            int
	ClipSize              int
	NormalizeMean         float32
	NormalizeStd          float32
	// MinPoseConfidence is the pose-presence score needed to accept a frame
	MinPoseConfidence float32
	FFmpegPath        string
	FFprobePath       string
}

// ModelConfig points at the exported ONNX models
type ModelConfig struct {
	RuntimeLibrary string
	PosePath       string
	EmbeddingPath  string
}

// AWSConfig holds S3 connection settings
type AWSConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Default pipeline values
const (
	DefaultStaticMotionThreshold = 0.0015
	DefaultClipLength            = 16
	DefaultClipSize              = 112
	DefaultNormalizeMean         = 0.5
	DefaultNormalizeStd          = 0.5
	DefaultMinPoseConfidence     = 0.7
)

// Load reads a .env file if present (silently ignored when missing) and
// then builds the configuration from the environment.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)
	return FromEnv()
}

// FromEnv builds configuration from environment variables only
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBOSDatabaseURL: os.Getenv("DBOS_SYSTEM_DATABASE_URL"),
		DBOSQueueName:   os.Getenv("DBOS_QUEUE_NAME"),
		ContentAPIURL:   os.Getenv("CONTENT_API_URL"),
		StorageDir:      os.Getenv("STORAGE_DIR"),
		TempDir:         os.Getenv("TEMP_DIR"),
		Models: ModelConfig{
			RuntimeLibrary: os.Getenv("ONNXRUNTIME_LIB"),
			PosePath:       os.Getenv("POSE_MODEL_PATH"),
			EmbeddingPath:  os.Getenv("EMBEDDING_MODEL_PATH"),
		},
		AWS: AWSConfig{
			Region:    os.Getenv("AWS_REGION"),
			AccessKey: os.Getenv("AWS_ACCESS_KEY"),
			SecretKey: os.Getenv("AWS_SECRET_KEY"),
			Bucket:    os.Getenv("AWS_BUCKET_NAME"),
		},
		Pipeline: PipelineConfig{
			FFmpegPath:  os.Getenv("FFMPEG_PATH"),
			FFprobePath: os.Getenv("FFPROBE_PATH"),
		},
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = postgresURLFromParts()
	}

	var errs []error
	var err error
	if cfg.Pipeline.StaticMotionThreshold, err = floatEnv("STATIC_MOTION_THRESHOLD", DefaultStaticMotionThreshold); err != nil {
		errs = append(errs, err)
	}
	if cfg.DBOSConcurrency, err = intEnv("DBOS_CONCURRENCY"); err != nil {
		errs = append(errs, err)
	}
	if cfg.DBOSGlobalConcurrency, err = intEnv("DBOS_GLOBAL_CONCURRENCY"); err != nil {
		errs = append(errs, err)
	}
	if cfg.Pipeline.ClipLength, err = intEnv("CLIP_LENGTH"); err != nil {
		errs = append(errs, err)
	}
	if cfg.Pipeline.ClipSize, err = intEnv("CLIP_SIZE"); err != nil {
		errs = append(errs, err)
	}
	var f float64
	// a mean of 0 is valid, so only an unset variable takes the default
	if f, err = floatEnv("NORMALIZE_MEAN", DefaultNormalizeMean); err != nil {
		errs = append(errs, err)
	}
	cfg.Pipeline.NormalizeMean = float32(f)
	if f, err = floatEnv("NORMALIZE_STD", 0); err != nil {
		errs = append(errs, err)
	}
	cfg.Pipeline.NormalizeStd = float32(f)
	if f, err = floatEnv("MIN_POSE_CONFIDENCE", 0); err != nil {
		errs = append(errs, err)
	}
	cfg.Pipeline.MinPoseConfidence = float32(f)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":7000"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DBOSQueueName == "" {
		c.DBOSQueueName = "default"
	}
	if c.StorageDir == "" {
		c.StorageDir = "./dev-data"
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	c.Pipeline.WithDefaults()
}

// WithDefaults fills in default pipeline knobs. StaticMotionThreshold and
// NormalizeMean are left alone: FromEnv defaults them only when unset.
func (p *PipelineConfig) WithDefaults() {
	if p.ClipLength == 0 {
		p.ClipLength = DefaultClipLength
	}
	if p.ClipSize == 0 {
		p.ClipSize = DefaultClipSize
	}
	if p.NormalizeStd == 0 {
		p.NormalizeStd = DefaultNormalizeStd
	}
	if p.MinPoseConfidence == 0 {
		p.MinPoseConfidence = DefaultMinPoseConfidence
	}
	if p.FFmpegPath == "" {
		p.FFmpegPath = "ffmpeg"
	}
	if p.FFprobePath == "" {
		p.FFprobePath = "ffprobe"
	}
}

// Validate rejects values the pipeline cannot run with
func (c *Config) Validate() error {
	p := c.Pipeline
	switch {
	case p.StaticMotionThreshold <= 0:
		return fmt.Errorf("STATIC_MOTION_THRESHOLD must be positive: %v", p.StaticMotionThreshold)
	case p.ClipLength < 1:
		return fmt.Errorf("CLIP_LENGTH must be positive: %d", p.ClipLength)
	case p.ClipSize < 1:
		return fmt.Errorf("CLIP_SIZE must be positive: %d", p.ClipSize)
	case p.NormalizeStd <= 0:
		return fmt.Errorf("NORMALIZE_STD must be positive: %v", p.NormalizeStd)
	case p.MinPoseConfidence < 0 || p.MinPoseConfidence > 1:
		return fmt.Errorf("MIN_POSE_CONFIDENCE must be within [0,1]: %v", p.MinPoseConfidence)
	case c.DBOSConcurrency < 0 || c.DBOSGlobalConcurrency < 0:
		return errors.New("DBOS_CONCURRENCY and DBOS_GLOBAL_CONCURRENCY must not be negative")
	}
	return nil
}

func postgresURLFromParts() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		host,
		port,
		os.Getenv("POSTGRES_DB"),
	)
}

func intEnv(key string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// floatEnv parses key, returning def when it is unset or blank
func floatEnv(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
