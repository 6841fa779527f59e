package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tendant/motion-compare/internal/auth"
	"github.com/tendant/motion-compare/internal/config"
	"github.com/tendant/motion-compare/internal/dbosruntime"
	"github.com/tendant/motion-compare/internal/dedupe"
	"github.com/tendant/motion-compare/internal/handlers"
	"github.com/tendant/motion-compare/internal/logging"
	"github.com/tendant/motion-compare/internal/metrics"
	"github.com/tendant/motion-compare/internal/pipeline"
	"github.com/tendant/motion-compare/internal/results"
	"github.com/tendant/motion-compare/internal/workflows"
)

// pipelineVersion tags dedupe rows with the scoring revision
const pipelineVersion = 1

func main() {
	// Load .env file if it exists (silently ignore if not found)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	source, err := pipeline.NewSource(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Result sink: the application database when configured, otherwise
	// a local SQLite ledger
	var (
		sink      results.Sink
		directory results.Directory
		recorder  dedupe.Recorder = dedupe.NewMemory()
		db        *sql.DB
	)
	if cfg.DatabaseURL != "" {
		store, err := results.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		sink, directory, db = store, store, store.DB()
		logger.Info("✓ Postgres result sink ready")

		tracker, err := dedupe.NewTracker(ctx, db, pipelineVersion, logger)
		if err != nil {
			return err
		}
		recorder = tracker
	} else {
		if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
			return err
		}
		ledger, err := results.OpenLedger(ctx, filepath.Join(cfg.StorageDir, "results.db"))
		if err != nil {
			return err
		}
		defer ledger.Close()
		sink = ledger
		logger.Info("✓ SQLite result ledger ready", "dir", cfg.StorageDir)
	}

	m := metrics.New()
	workflow := workflows.NewComparisonWorkflow(source, p.Detector, p.Engine, sink, m, logger)
	if directory != nil {
		workflow.WithExercises(directory)
	}

	// DBOS is optional: without it only synchronous comparisons are served
	var dbosRuntime *dbosruntime.Runtime
	if cfg.DBOSDatabaseURL != "" {
		dbosRuntime, err = dbosruntime.NewRuntime(ctx, dbosruntime.Config{
			DatabaseURL:       cfg.DBOSDatabaseURL,
			QueueName:         cfg.DBOSQueueName,
			Concurrency:       cfg.DBOSConcurrency,
			GlobalConcurrency: cfg.DBOSGlobalConcurrency,
		})
		if err != nil {
			return err
		}
	}

	runner := workflows.NewWorkflowRunner(workflow, dbosRuntime, logger)
	logger.Info("✓ Registered workflow", "name", workflow.Name())

	if dbosRuntime != nil {
		// Launch DBOS (must be done after workflow registration)
		if err := dbosRuntime.Launch(); err != nil {
			return err
		}
		defer dbosRuntime.Shutdown(10 * time.Second)
		logger.Info("✓ DBOS runtime initialized",
			"queue", dbosRuntime.QueueName(),
			"concurrency", dbosRuntime.Concurrency(),
		)
	}

	compareHandler := handlers.NewCompareHandler(runner, directory, logger)
	routes := handlers.Routes{
		Compare: compareHandler,
		Async:   handlers.NewAsyncHandler(runner, compareHandler, recorder, logger),
		Metrics: m,
	}
	if cfg.JWTSecret != "" {
		routes.Verifier = auth.NewVerifier(cfg.JWTSecret)
	} else {
		logger.Warn("JWT_SECRET not set; comparison endpoints are unauthenticated")
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           routes.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Comparison server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return err
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("Server stopped")
	return nil
}
