package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/tendant/simple-image-pipeline/internal/workerpool"
	"github.com/tendant/simple-image-pipeline/internal/workflows"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// HandleUpload handles POST /api/images/upload. The image is buffered, handed
// to the orchestrator and the job ID is returned with 202 Accepted.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
			return
		}
		h.writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}
	if len(data) == 0 {
		h.writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	jobID := uuid.New().String()
	_, err = h.orchestrator.ProcessImage(jobID, pipeline.Image{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		h.logger.Error("failed to submit job", "job_id", jobID, "error", err)
		switch {
		case errors.Is(err, workerpool.ErrPoolClosed):
			h.writeError(w, http.StatusServiceUnavailable, "pipeline is shutting down")
		case errors.Is(err, workflows.ErrDuplicateJob):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to submit job: %v", err))
		}
		return
	}

	h.writeJSON(w, http.StatusAccepted, pipeline.UploadResponse{JobID: jobID})
}
