package workflows

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tendant/motion-compare/internal/embedding"
	"github.com/tendant/motion-compare/internal/metrics"
	"github.com/tendant/motion-compare/internal/motion"
	"github.com/tendant/motion-compare/internal/results"
	"github.com/tendant/motion-compare/internal/similarity"
	"github.com/tendant/motion-compare/internal/storage"
	"github.com/tendant/motion-compare/pkg/compare"
)

// Result messages returned to callers
const (
	MsgCoachNotFound   = "Coach video not found"
	MsgUserNotFound    = "User video not found"
	MsgCoachProcessing = "Failed to process coach video file."
	MsgUserProcessing  = "Failed to process user video file."
	MsgNoPerson        = "No person detected in one or both videos"
	MsgNotMoving       = "Person detected but not moving in one or both videos"
	MsgNoExercise      = "No matching exercise entry found."
	MsgInternalPrefix  = "Internal server error: "
)

// MotionDetector gates a video on person presence and movement
type MotionDetector interface {
	DetectMovement(ctx context.Context, path string) (motion.Verdict, error)
}

// Embedder maps a video to its aggregate embedding
type Embedder interface {
	Embed(ctx context.Context, path string) (embedding.Vector, error)
}

// ExerciseLookup resolves the exercise a user recorded against
type ExerciseLookup interface {
	LookupExercise(ctx context.Context, id int64) (results.Exercise, error)
}

// ComparisonWorkflow scores a user's exercise video against the coach's
type ComparisonWorkflow struct {
	source    storage.VideoSource
	detector  MotionDetector
	embedder  Embedder
	sink      results.Sink
	exercises ExerciseLookup
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewComparisonWorkflow creates the comparison workflow. A nil sink
// discards results; nil metrics record nothing.
func NewComparisonWorkflow(
	source storage.VideoSource,
	detector MotionDetector,
	embedder Embedder,
	sink results.Sink,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ComparisonWorkflow {
	if sink == nil {
		sink = results.Discard{}
	}
	return &ComparisonWorkflow{
		source:   source,
		detector: detector,
		embedder: embedder,
		sink:     sink,
		metrics:  m,
		logger:   logger,
	}
}

// WithExercises makes the workflow require, after the motion gates, that
// the user's coach_exercise_id names an existing exercise
func (w *ComparisonWorkflow) WithExercises(lookup ExerciseLookup) *ComparisonWorkflow {
	w.exercises = lookup
	return w
}

// Name returns the workflow name
func (w *ComparisonWorkflow) Name() string {
	return "ComparisonWorkflow"
}

// Execute runs fetch, motion gating, embedding and scoring in order and
// always writes the resulting accuracy (0 when none was computed) for
// the user exercise record. Failures are reported in the result; the
// returned error is always nil. A comparison runs to completion once
// started, even if the caller's context is cancelled.
func (w *ComparisonWorkflow) Execute(wctx *WorkflowContext) (*compare.Result, error) {
	ctx := context.WithoutCancel(wctx.Ctx)
	req := wctx.Request
	log := w.logger.With("run_id", wctx.RunID, "user_exercise_id", req.UserData.UserExerciseID)
	log.Info("Starting comparison workflow",
		"coach_id", req.CoachData.CoachID,
		"user_id", req.UserData.UserID,
	)

	result, outcome := w.run(ctx, log, req)

	accuracy := 0.0
	if result.Accuracy != nil {
		accuracy = *result.Accuracy
	}
	if err := w.sink.SaveAccuracy(ctx, req.UserData.UserExerciseID, accuracy); err != nil {
		log.Error("Failed to save accuracy", "accuracy", accuracy, "error", err)
		w.metrics.SinkFailed()
	} else {
		log.Debug("Accuracy saved", "accuracy", accuracy)
	}

	w.metrics.CountComparison(string(result.Status), outcome)
	if result.Status == compare.StatusSuccess {
		w.metrics.ObserveAccuracy(accuracy)
	}
	log.Info("Comparison workflow finished",
		"status", result.Status,
		"outcome", outcome,
		"accuracy", accuracy,
		"message", result.Message,
	)
	return result, nil
}

// run performs the stages and names the outcome for metrics
func (w *ComparisonWorkflow) run(ctx context.Context, log *slog.Logger, req compare.Request) (*compare.Result, string) {
	// Step 1: Fetch both videos, coach first
	start := time.Now()
	coach, err := w.source.Fetch(ctx, storage.VideoRef{OwnerID: req.CoachData.CoachID, URL: req.CoachData.ExerciseURL})
	if err != nil {
		log.Warn("Coach video fetch failed", "url", req.CoachData.ExerciseURL, "error", err)
		return compare.Failed(MsgCoachNotFound), "source_unavailable"
	}
	defer w.release(log, coach)

	user, err := w.source.Fetch(ctx, storage.VideoRef{OwnerID: req.UserData.UserID, URL: req.UserData.ExerciseURL})
	if err != nil {
		log.Warn("User video fetch failed", "url", req.UserData.ExerciseURL, "error", err)
		return compare.Failed(MsgUserNotFound), "source_unavailable"
	}
	defer w.release(log, user)
	w.metrics.ObserveStage("fetch", time.Since(start))
	log.Debug("Videos fetched", "coach", coach.Path, "user", user.Path)

	// best accuracy known so far, reported with unexpected errors
	best := 0.0

	// Step 2: Motion gating
	start = time.Now()
	coachMotion, err := w.detector.DetectMovement(ctx, coach.Path)
	if err != nil {
		log.Error("Coach motion detection failed", "error", err)
		return compare.Failed(MsgCoachProcessing), "decode_failure"
	}
	userMotion, err := w.detector.DetectMovement(ctx, user.Path)
	if err != nil {
		log.Error("User motion detection failed", "error", err)
		return compare.Failed(MsgUserProcessing), "decode_failure"
	}
	w.metrics.ObserveStage("motion", time.Since(start))
	log.Info("Motion detected",
		"coach_person", coachMotion.PersonPresent,
		"coach_moving", coachMotion.IsMoving,
		"coach_score", coachMotion.Score,
		"user_person", userMotion.PersonPresent,
		"user_moving", userMotion.IsMoving,
		"user_score", userMotion.Score,
	)

	// Step 3: Both videos need a person
	if !coachMotion.PersonPresent || !userMotion.PersonPresent {
		return compare.FailedWithAccuracy(MsgNoPerson, 0), "no_person"
	}

	// Step 4: ...who moves
	if !coachMotion.IsMoving || !userMotion.IsMoving {
		return compare.FailedWithAccuracy(MsgNotMoving, 0), "no_motion"
	}

	if w.exercises != nil {
		if _, err := w.exercises.LookupExercise(ctx, req.UserData.CoachExerciseID); err != nil {
			if errors.Is(err, results.ErrExerciseNotFound) {
				log.Warn("Exercise referenced by user not found", "coach_exercise_id", req.UserData.CoachExerciseID)
				return compare.FailedWithAccuracy(MsgNoExercise, 0), "no_exercise"
			}
			log.Error("Exercise lookup failed", "error", err)
			return compare.FailedWithAccuracy(MsgInternalPrefix+err.Error(), best), "internal_error"
		}
	}

	// Step 5: Embed and score
	start = time.Now()
	coachVec, err := w.embedder.Embed(ctx, coach.Path)
	if err != nil {
		log.Error("Coach embedding failed", "error", err)
		return compare.FailedWithAccuracy(MsgInternalPrefix+err.Error(), best), "internal_error"
	}
	userVec, err := w.embedder.Embed(ctx, user.Path)
	if err != nil {
		log.Error("User embedding failed", "error", err)
		return compare.FailedWithAccuracy(MsgInternalPrefix+err.Error(), best), "internal_error"
	}
	w.metrics.ObserveStage("embed", time.Since(start))

	score, err := similarity.Score(coachVec, userVec)
	if err != nil {
		log.Error("Similarity scoring failed", "error", err)
		return compare.FailedWithAccuracy(MsgInternalPrefix+err.Error(), best), "internal_error"
	}
	best = similarity.Accuracy(score)
	log.Info("Similarity computed", "score", score, "accuracy", best)

	return compare.Succeeded(best), "scored"
}

func (w *ComparisonWorkflow) release(log *slog.Logger, v *storage.LocalVideo) {
	if err := v.Release(); err != nil {
		log.Warn("Failed to remove downloaded video", "path", v.Path, "error", err)
	}
}
