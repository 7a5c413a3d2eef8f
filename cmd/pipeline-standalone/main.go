package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tendant/simple-content/pkg/simplecontent/presets"

	"github.com/tendant/simple-image-pipeline/internal/config"
	"github.com/tendant/simple-image-pipeline/pkg/runner"
)

// Standalone pipeline server for quick testing.
// Uses an embedded simple-content service (./dev-data), SQLite metadata and
// log notifications. No external services needed.
func main() {
	httpAddr := os.Getenv("PIPELINE_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	storageDir := os.Getenv("STORAGE_DIR")
	if storageDir == "" {
		storageDir = "./dev-data"
	}

	cfg := &config.Config{
		HTTPAddr:            httpAddr,
		LogFormat:           "text",
		LogLevel:            os.Getenv("LOG_LEVEL"),
		StorageBackend:      config.StorageContent,
		StorageDir:          storageDir,
		MetadataBackend:     config.MetadataSQLite,
		MetadataDatabaseURL: filepath.Join(storageDir, "metadata.db"),
		Notifier:            config.NotifierLog,
	}
	cfg.WithDefaults()
	logger := cfg.NewLogger()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	svc, cleanup, err := presets.NewDevelopment(presets.WithDevStorage(storageDir))
	if err != nil {
		logger.Error("failed to initialize simple-content service", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(ctx, cfg, logger, runner.WithContentService(svc))
	if err != nil {
		logger.Error("failed to initialize pipeline", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              httpAddr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("pipeline standalone ready", "addr", httpAddr, "storage_dir", storageDir)
		logger.Info("try it", "cmd", "go run ./cmd/pipelinectl upload ./photo.jpg --wait")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := r.Shutdown(shutdownCtx); err != nil {
		logger.Error("pipeline shutdown incomplete", "error", err)
	}

	logger.Info("server stopped")
}
