package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/simple-image-pipeline/internal/storage"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// HandleProgress handles GET /api/images/progress/{jobID}. Unknown jobs report 0.
func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	h.writeJSON(w, http.StatusOK, pipeline.ProgressResponse{
		JobID:    jobID,
		Progress: h.progress.GetProgress(jobID),
	})
}

// HandleAllProgress handles GET /api/images/progress
func (h *Handler) HandleAllProgress(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.progress.GetAllProgress())
}

// HandleForget handles DELETE /api/images/progress/{jobID}
func (h *Handler) HandleForget(w http.ResponseWriter, r *http.Request) {
	h.progress.RemoveJob(chi.URLParam(r, "jobID"))
	w.WriteHeader(http.StatusNoContent)
}

// HandleFile handles GET /files/*, streaming a stored object
func (h *Handler) HandleFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	rc, err := h.files.GetReader(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "file not found")
		case errors.Is(err, storage.ErrInvalidKey):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to read file", "key", key, "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to read file")
		}
		return
	}
	defer rc.Close()

	w.Header().Set("X-Content-Type-Options", "nosniff")
	if ct, ok := inlineImageType(key); ok {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": path.Base(key),
		}))
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream file", "key", key, "error", err)
	}
}

// inlineImageType returns the content type for key when it is a raster image
// that is safe to render inline. Anything else, SVG included, is served as a
// download since stored names are chosen by the uploader.
func inlineImageType(key string) (string, bool) {
	ct := mime.TypeByExtension(strings.ToLower(path.Ext(key)))
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || !strings.HasPrefix(mediaType, "image/") || mediaType == "image/svg+xml" {
		return "", false
	}
	return mediaType, true
}
