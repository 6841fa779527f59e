package motion

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"

	"github.com/tendant/motion-compare/internal/video"
)

// DefaultStaticThreshold is the mean landmark displacement, in normalized
// image coordinates, below which a person is considered stationary.
const DefaultStaticThreshold = 0.0015

// Landmark is a 2D body point in normalized [0,1] image coordinates
type Landmark struct {
	X float64
	Y float64
}

// Observation is the ordered landmark set of one detected pose.
// A nil Observation means no person was found in the frame.
type Observation []Landmark

// PoseEstimator finds at most one pose in a frame.
// Implementations must be safe for concurrent use.
type PoseEstimator interface {
	Estimate(ctx context.Context, frame image.Image) (Observation, error)
}

// Status is the outcome tag of a verdict
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "Success"
	}
	return "Failed"
}

// Verdict is the result of scanning one video
type Verdict struct {
	PersonPresent bool
	IsMoving      bool
	Status        Status
	// Score is the mean displacement across consecutive detected poses
	Score float64
	// Frames counts decoded frames; Detections counts frames with a pose
	Frames     int
	Detections int
}

// Detector decides whether a person is present and moving in a video
type Detector struct {
	opener    video.Opener
	estimator PoseEstimator
	threshold float64
	logger    *slog.Logger
}

// NewDetector creates a motion detector. A non-positive threshold falls
// back to DefaultStaticThreshold.
func NewDetector(opener video.Opener, estimator PoseEstimator, threshold float64, logger *slog.Logger) *Detector {
	if threshold <= 0 {
		threshold = DefaultStaticThreshold
	}
	return &Detector{
		opener:    opener,
		estimator: estimator,
		threshold: threshold,
		logger:    logger,
	}
}

// DetectMovement scans every frame of the video at path.
//
// An error means the video could not be processed and the verdict must be
// ignored. A video in which no frame contains a person yields a verdict
// with Status StatusFailed and a nil error.
func (d *Detector) DetectMovement(ctx context.Context, path string) (Verdict, error) {
	d.logger.Debug("Detecting person movement", "path", path)

	handle, err := d.opener.Open(ctx, path)
	if err != nil {
		return Verdict{Status: StatusFailed}, fmt.Errorf("open video: %w", err)
	}
	defer handle.Close()

	var (
		verdict Verdict
		prev    Observation
		scores  []float64
	)
	for {
		frame, err := handle.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Verdict{Status: StatusFailed}, fmt.Errorf("decode frame %d: %w", verdict.Frames, err)
		}
		verdict.Frames++

		obs, err := d.estimator.Estimate(ctx, frame)
		if err != nil {
			return Verdict{Status: StatusFailed}, fmt.Errorf("pose estimation on frame %d: %w", verdict.Frames, err)
		}
		if obs == nil {
			continue
		}

		verdict.PersonPresent = true
		verdict.Detections++
		if prev != nil {
			score, err := Displacement(prev, obs)
			if err != nil {
				return Verdict{Status: StatusFailed}, fmt.Errorf("frame %d: %w", verdict.Frames, err)
			}
			scores = append(scores, score)
		}
		prev = obs
	}

	if !verdict.PersonPresent {
		d.logger.Debug("No person detected", "path", path, "frames", verdict.Frames)
		return Verdict{Status: StatusFailed, Frames: verdict.Frames}, nil
	}

	verdict.Score = mean(scores)
	verdict.IsMoving = verdict.Score >= d.threshold
	verdict.Status = StatusSuccess

	d.logger.Debug("Movement detected",
		"path", path,
		"frames", verdict.Frames,
		"detections", verdict.Detections,
		"score", verdict.Score,
		"moving", verdict.IsMoving,
	)
	return verdict, nil
}

// Displacement is the mean Euclidean distance between corresponding
// landmarks of two observations.
func Displacement(a, b Observation) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("landmark count mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}
	var sum float64
	for i := range a {
		sum += math.Hypot(b[i].X-a[i].X, b[i].Y-a[i].Y)
	}
	return sum / float64(len(a)), nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
