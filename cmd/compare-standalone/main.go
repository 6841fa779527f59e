package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"

	"github.com/tendant/motion-compare/internal/config"
	"github.com/tendant/motion-compare/internal/dedupe"
	"github.com/tendant/motion-compare/internal/handlers"
	"github.com/tendant/motion-compare/internal/logging"
	"github.com/tendant/motion-compare/internal/metrics"
	"github.com/tendant/motion-compare/internal/pipeline"
	"github.com/tendant/motion-compare/internal/results"
	"github.com/tendant/motion-compare/internal/storage"
	"github.com/tendant/motion-compare/internal/workflows"
)

var (
	devOwnerID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	devTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

// Standalone comparison server for quick testing.
// Videos live in an embedded simple-content service (in-memory DB +
// filesystem storage under STORAGE_DIR); results go to a SQLite ledger.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	logger.Info("Comparison standalone server",
		"mode", "embedded (in-memory DB + filesystem storage)",
		"storage_dir", cfg.StorageDir,
		"addr", cfg.HTTPAddr,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return err
	}

	// Initialize simple-content service with development preset
	svc, cleanup, err := presets.NewDevelopment(
		presets.WithDevStorage(cfg.StorageDir),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize simple-content service: %w", err)
	}
	defer cleanup()
	logger.Info("✓ simple-content service initialized")

	ledger, err := results.OpenLedger(ctx, filepath.Join(cfg.StorageDir, "results.db"))
	if err != nil {
		return err
	}
	defer ledger.Close()

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	m := metrics.New()
	source := storage.NewContentSource(svc, cfg.TempDir)
	workflow := workflows.NewComparisonWorkflow(source, p.Detector, p.Engine, ledger, m, logger)
	runner := workflows.NewWorkflowRunner(workflow, nil, logger)

	compareHandler := handlers.NewCompareHandler(runner, nil, logger)
	routes := handlers.Routes{
		Compare: compareHandler,
		Async:   handlers.NewAsyncHandler(runner, compareHandler, dedupe.NewMemory(), logger),
		Metrics: m,
	}

	mux := http.NewServeMux()
	mux.Handle("/", routes.Handler())
	h := &standaloneHandler{service: svc, ledger: ledger, logger: logger}
	mux.HandleFunc("/v1/videos", h.handleUpload)
	mux.HandleFunc("/v1/results", h.handleResults)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("✓ Comparison server ready", "addr", cfg.HTTPAddr)
		logger.Info("Available endpoints:")
		logger.Info("  POST /v1/videos?name=squat.mp4  - Upload a video (raw body)")
		logger.Info("  POST /v1/compare                - Compare two uploaded videos")
		logger.Info("  GET  /v1/results                - List stored accuracies")
		logger.Info("  GET  /health                    - Health check")
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

// standaloneHandler serves the development-only endpoints
type standaloneHandler struct {
	service simplecontent.Service
	ledger  *results.Ledger
	logger  *slog.Logger
}

// handleUpload stores the request body as a video and returns the
// exercise_url to use in comparison requests
func (h *standaloneHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := path.Base(r.URL.Query().Get("name"))
	if name == "." || name == "/" {
		name = "video.mp4"
	}

	content, err := h.service.UploadContent(r.Context(), simplecontent.UploadContentRequest{
		OwnerID:      devOwnerID,
		TenantID:     devTenantID,
		Name:         name,
		DocumentType: "video/mp4",
		Reader:       r.Body,
		FileName:     name,
		Tags:         []string{"exercise", "video"},
	})
	if err != nil {
		h.logger.Error("Failed to upload video", "error", err)
		http.Error(w, fmt.Sprintf("Upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	h.logger.Info("✓ Video uploaded", "content_id", content.ID, "name", name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"content_id":   content.ID.String(),
		"exercise_url": content.ID.String() + path.Ext(name),
	})
}

// handleResults lists the ledger
func (h *standaloneHandler) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := h.ledger.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
