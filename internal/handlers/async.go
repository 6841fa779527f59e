package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tendant/motion-compare/internal/dedupe"
	"github.com/tendant/motion-compare/internal/workflows"
	"github.com/tendant/motion-compare/pkg/compare"
)

// AsyncHandler handles queued comparison requests
type AsyncHandler struct {
	runner Runner
	checks *CompareHandler
	dedupe dedupe.Recorder
	logger *slog.Logger
}

// NewAsyncHandler creates a new async handler. Pre-flight checks are
// shared with the synchronous handler; recorder may be nil.
func NewAsyncHandler(runner Runner, checks *CompareHandler, recorder dedupe.Recorder, logger *slog.Logger) *AsyncHandler {
	return &AsyncHandler{
		runner: runner,
		checks: checks,
		dedupe: recorder,
		logger: logger,
	}
}

// HandleCompareAsync handles POST /v1/compare/async - enqueues the
// comparison and returns immediately with 202
func (h *AsyncHandler) HandleCompareAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	if h.checks != nil {
		if res := h.checks.preflight(r.Context(), req); res != nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
	}

	seen := 0
	if h.dedupe != nil {
		n, err := h.dedupe.Record(r.Context(), req.UserData.UserExerciseID)
		if err != nil {
			h.logger.Warn("Failed to record dedupe", "user_exercise_id", req.UserData.UserExerciseID, "error", err)
		}
		seen = n
	}

	h.logger.Info("Enqueueing comparison", "user_exercise_id", req.UserData.UserExerciseID, "seen", seen)

	runID, err := h.runner.RunAsync(r.Context(), req)
	if errors.Is(err, workflows.ErrQueueUnavailable) {
		writeDetail(w, http.StatusServiceUnavailable, "Async comparisons are not enabled")
		return
	}
	if errors.Is(err, workflows.ErrInvalidRequest) {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to enqueue comparison", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to enqueue comparison: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, compare.AsyncResponse{
		RunID:           runID,
		DedupeSeenCount: seen,
	})
}

// HandleStatus handles GET /v1/runs/{runID} - returns run status
func (h *AsyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		writeDetail(w, http.StatusBadRequest, "run_id is required")
		return
	}

	status, err := h.runner.GetStatus(r.Context(), runID)
	switch {
	case errors.Is(err, workflows.ErrWorkflowNotFound):
		writeDetail(w, http.StatusNotFound, "Run not found")
		return
	case errors.Is(err, workflows.ErrQueueUnavailable):
		writeDetail(w, http.StatusServiceUnavailable, "Async comparisons are not enabled")
		return
	case err != nil:
		h.logger.Error("Failed to get run status", "run_id", runID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to get run status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}
