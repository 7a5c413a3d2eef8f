package pipeline

import (
	"bytes"
	"io"
)

// Image is an uploaded image payload buffered in memory so every stage can read it
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Reader returns a fresh reader over the image bytes
func (i Image) Reader() io.Reader {
	return bytes.NewReader(i.Data)
}

// Size returns the payload length in bytes
func (i Image) Size() int64 {
	return int64(len(i.Data))
}

// UploadResponse is returned when an image is accepted for processing
type UploadResponse struct {
	JobID string `json:"jobId"`
}

// ProgressResponse reports the progress of a single job
type ProgressResponse struct {
	JobID    string `json:"jobId"`
	Progress int    `json:"progress"`
}

// ErrorResponse is the body of a failed API call
type ErrorResponse struct {
	Error string `json:"error"`
}

// Progress checkpoints reached as each stage commits
const (
	ProgressCreated         = 0
	ProgressStored          = 25
	ProgressMetadataStored  = 50
	ProgressThumbnailStored = 75
	ProgressNotified        = 100
)

// Stage names
const (
	StageStore     = "store"
	StageMetadata  = "metadata"
	StageThumbnail = "thumbnail"
	StageNotify    = "notify"
)

// ValidCheckpoint reports whether percent is one of the sanctioned checkpoints
func ValidCheckpoint(percent int) bool {
	switch percent {
	case ProgressCreated, ProgressStored, ProgressMetadataStored, ProgressThumbnailStored, ProgressNotified:
		return true
	}
	return false
}
