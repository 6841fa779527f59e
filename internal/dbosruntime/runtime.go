package dbosruntime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	_ "github.com/lib/pq"
)

// Runtime owns the DBOS context and the comparison queue. Queued
// comparisons are durable: a run enqueued before a crash is picked up
// again when the server relaunches with the same application version.
type Runtime struct {
	dbosContext dbos.DBOSContext
	queue       *dbos.WorkflowQueue
	config      Config
	db          *sql.DB
}

// NewRuntime creates the DBOS context and declares the comparison queue.
// Each worker runs at most Concurrency comparisons at once, and
// GlobalConcurrency, when set, caps them across all workers.
func NewRuntime(ctx context.Context, cfg Config) (*Runtime, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DBOS_SYSTEM_DATABASE_URL is required")
	}

	cfg.WithDefaults()

	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DBOS context: %w", err)
	}

	opts := []dbos.QueueOption{dbos.WithWorkerConcurrency(cfg.Concurrency)}
	if cfg.GlobalConcurrency > 0 {
		opts = append(opts, dbos.WithGlobalConcurrency(cfg.GlobalConcurrency))
	}
	queue := dbos.NewWorkflowQueue(dbosCtx, cfg.QueueName, opts...)

	// Status lookups read the DBOS system tables directly
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open DBOS database: %w", err)
	}

	return &Runtime{
		dbosContext: dbosCtx,
		queue:       &queue,
		config:      cfg,
		db:          db,
	}, nil
}

// RunID names a queued comparison for a user exercise record. The
// record id comes first so runs for one record sort together.
func RunID(userExerciseID int64, now time.Time) string {
	return fmt.Sprintf("compare-%d-%d", userExerciseID, now.UnixNano())
}

// EnqueueOptions places a comparison on the queue under runID
func (r *Runtime) EnqueueOptions(runID string) []dbos.WorkflowOption {
	return []dbos.WorkflowOption{
		dbos.WithWorkflowID(runID),
		dbos.WithQueue(r.queue.Name),
	}
}

// Launch starts the DBOS runtime and its queue workers. Workflows must be
// registered before this call.
func (r *Runtime) Launch() error {
	if err := dbos.Launch(r.dbosContext); err != nil {
		return fmt.Errorf("failed to launch DBOS: %w", err)
	}
	return nil
}

// Shutdown stops the queue workers, waiting up to timeout for running
// comparisons, and closes the status connection.
func (r *Runtime) Shutdown(timeout time.Duration) error {
	dbos.Shutdown(r.dbosContext, timeout)
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Context returns the DBOS context
func (r *Runtime) Context() dbos.DBOSContext {
	return r.dbosContext
}

// QueueName returns the comparison queue name
func (r *Runtime) QueueName() string {
	return r.queue.Name
}

// Concurrency returns the per-worker comparison limit
func (r *Runtime) Concurrency() int {
	return r.config.Concurrency
}
