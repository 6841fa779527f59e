package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/motion-compare/internal/results"
	"github.com/tendant/motion-compare/internal/workflows"
	"github.com/tendant/motion-compare/pkg/compare"
)

// MsgNoCoachExercise is returned when the coach exercise record is missing
const MsgNoCoachExercise = "No matching Coach exercise entry found."

// Runner runs comparisons inline or through the queue
type Runner interface {
	Run(ctx context.Context, req compare.Request) (*compare.Result, error)
	RunAsync(ctx context.Context, req compare.Request) (string, error)
	GetStatus(ctx context.Context, runID string) (*compare.RunStatus, error)
}

// CompareHandler serves synchronous comparisons
type CompareHandler struct {
	runner    Runner
	directory results.Directory
	logger    *slog.Logger
}

// NewCompareHandler creates the handler. A nil directory skips the
// exercise pre-flight checks.
func NewCompareHandler(runner Runner, directory results.Directory, logger *slog.Logger) *CompareHandler {
	return &CompareHandler{
		runner:    runner,
		directory: directory,
		logger:    logger,
	}
}

// HandleCompare handles POST /v1/compare and POST /compare-videos/.
// Comparison outcomes, including failures, are returned with 200.
func (h *CompareHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	if res := h.preflight(r.Context(), req); res != nil {
		writeJSON(w, http.StatusOK, res)
		return
	}

	res, err := h.runner.Run(r.Context(), req)
	if err != nil {
		h.logger.Error("Comparison failed to run", "user_exercise_id", req.UserData.UserExerciseID, "error", err)
		writeJSON(w, http.StatusOK, compare.FailedWithAccuracy(workflows.MsgInternalPrefix+err.Error(), 0))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// preflight verifies the coach exercise exists and touches the exercise
// timestamps. A non-nil result ends the request.
func (h *CompareHandler) preflight(ctx context.Context, req compare.Request) *compare.Result {
	if h.directory == nil {
		return nil
	}
	log := h.logger.With("user_exercise_id", req.UserData.UserExerciseID)

	if _, err := h.directory.LookupExercise(ctx, req.CoachData.ExerciseID); err != nil {
		if errors.Is(err, results.ErrExerciseNotFound) {
			log.Warn("Coach exercise not found", "exercise_id", req.CoachData.ExerciseID)
			return compare.Failed(MsgNoCoachExercise)
		}
		log.Error("Coach exercise lookup failed", "error", err)
		return compare.FailedWithAccuracy(workflows.MsgInternalPrefix+err.Error(), 0)
	}

	if err := h.directory.Touch(ctx, req.CoachData.ExerciseID, req.UserData.UserExerciseID); err != nil {
		log.Warn("Failed to touch exercise timestamps", "error", err)
	}
	return nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (compare.Request, bool) {
	var req compare.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return req, false
	}
	if err := req.Validate(); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
