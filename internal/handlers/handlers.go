package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/simple-image-pipeline/internal/workflows"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// DefaultMaxUploadBytes caps multipart uploads when no limit is configured
const DefaultMaxUploadBytes = 10 << 20

// Submitter starts an image through the pipeline. *workflows.Orchestrator satisfies it.
type Submitter interface {
	ProcessImage(jobID string, img pipeline.Image) (*workflows.Handle, error)
}

// ProgressStore is the read side of job progress. *progress.Store satisfies it.
type ProgressStore interface {
	GetProgress(jobID string) int
	GetAllProgress() map[string]int
	RemoveJob(jobID string)
}

// FileReader serves stored objects by key
type FileReader interface {
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)
}

// Handler serves the image upload and progress API
type Handler struct {
	orchestrator   Submitter
	progress       ProgressStore
	files          FileReader
	gatherer       prometheus.Gatherer
	maxUploadBytes int64
	logger         *slog.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithFiles serves objects from files under /files/
func WithFiles(files FileReader) Option {
	return func(h *Handler) {
		h.files = files
	}
}

// WithMetrics exposes gatherer on /metrics
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = gatherer
	}
}

// WithMaxUploadBytes limits the size of an upload request
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithLogger sets the request logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates the API handler
func New(orchestrator Submitter, progress ProgressStore, opts ...Option) *Handler {
	h := &Handler{
		orchestrator:   orchestrator,
		progress:       progress,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for the API
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.HandleHealth)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/images", func(r chi.Router) {
		r.Post("/upload", h.HandleUpload)
		r.Get("/progress", h.HandleAllProgress)
		r.Get("/progress/{jobID}", h.HandleProgress)
		r.Delete("/progress/{jobID}", h.HandleForget)
	})

	if h.files != nil {
		r.Get("/files/*", h.HandleFile)
	}

	return r
}

// HandleHealth returns health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, pipeline.ErrorResponse{Error: msg})
}
