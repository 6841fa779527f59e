package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/google/uuid"

	"github.com/tendant/motion-compare/internal/dbosruntime"
	"github.com/tendant/motion-compare/pkg/compare"
)

// WorkflowContext contains context for workflow execution
type WorkflowContext struct {
	Ctx     context.Context
	Request compare.Request
	RunID   string
}

// Workflow defines the interface for comparison workflows
type Workflow interface {
	// Execute runs the workflow
	Execute(wctx *WorkflowContext) (*compare.Result, error)

	// Name returns the workflow name
	Name() string
}

// WorkflowRunner executes a workflow inline or through the DBOS queue
type WorkflowRunner struct {
	workflow    Workflow
	dbosRuntime *dbosruntime.Runtime
	logger      *slog.Logger
}

// NewWorkflowRunner creates a runner. With a DBOS runtime the workflow is
// registered for queued execution; Launch must be called afterwards.
func NewWorkflowRunner(workflow Workflow, dbosRuntime *dbosruntime.Runtime, logger *slog.Logger) *WorkflowRunner {
	runner := &WorkflowRunner{
		workflow:    workflow,
		dbosRuntime: dbosRuntime,
		logger:      logger,
	}

	// Register the DBOS workflow function
	if dbosRuntime != nil {
		dbos.RegisterWorkflow(dbosRuntime.Context(), runner.executeWorkflowDBOS)
	}

	return runner
}

// Run executes the workflow synchronously under a fresh run id
func (r *WorkflowRunner) Run(ctx context.Context, req compare.Request) (*compare.Result, error) {
	return r.execute(ctx, req, uuid.NewString())
}

func (r *WorkflowRunner) execute(ctx context.Context, req compare.Request, runID string) (*compare.Result, error) {
	if r.workflow == nil {
		return nil, ErrWorkflowNotFound
	}
	result, err := r.workflow.Execute(&WorkflowContext{
		Ctx:     ctx,
		Request: req,
		RunID:   runID,
	})
	if result != nil {
		result.RunID = runID
	}
	return result, err
}

// RunAsync enqueues the workflow for execution via DBOS and returns the run id
func (r *WorkflowRunner) RunAsync(ctx context.Context, req compare.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.dbosRuntime == nil {
		return "", ErrQueueUnavailable
	}

	runID := dbosruntime.RunID(req.UserData.UserExerciseID, time.Now())

	handle, err := dbos.RunWorkflow[compare.Request, *compare.Result](
		r.dbosRuntime.Context(),
		r.executeWorkflowDBOS,
		req,
		r.dbosRuntime.EnqueueOptions(runID)...,
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue comparison: %w", err)
	}

	r.logger.Info("Comparison enqueued", "run_id", handle.GetWorkflowID(), "queue", r.dbosRuntime.QueueName())
	return handle.GetWorkflowID(), nil
}

// executeWorkflowDBOS is the function DBOS runs for queued comparisons
func (r *WorkflowRunner) executeWorkflowDBOS(dbosCtx dbos.DBOSContext, req compare.Request) (*compare.Result, error) {
	workflowID, err := dbosCtx.GetWorkflowID()
	if err != nil {
		return nil, err
	}

	// DBOSContext implements context.Context
	return r.execute(dbosCtx, req, workflowID)
}

// GetStatus reads the state of a queued run
func (r *WorkflowRunner) GetStatus(ctx context.Context, runID string) (*compare.RunStatus, error) {
	if r.dbosRuntime == nil {
		return nil, ErrQueueUnavailable
	}

	info, err := r.dbosRuntime.GetWorkflowStatus(ctx, runID)
	if errors.Is(err, dbosruntime.ErrWorkflowNotFound) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrWorkflowNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &compare.RunStatus{
		RunID:     info.WorkflowUUID,
		State:     info.Status,
		Name:      info.Name,
		CreatedAt: time.UnixMilli(info.CreatedAt),
		UpdatedAt: time.UnixMilli(info.UpdatedAt),
	}, nil
}
