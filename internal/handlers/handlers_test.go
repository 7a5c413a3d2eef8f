package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-image-pipeline/internal/metrics"
	"github.com/tendant/simple-image-pipeline/internal/progress"
	"github.com/tendant/simple-image-pipeline/internal/storage"
	"github.com/tendant/simple-image-pipeline/internal/workerpool"
	"github.com/tendant/simple-image-pipeline/internal/workflows"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

type fakeSubmitter struct {
	store  *progress.Store
	err    error
	jobIDs []string
	images []pipeline.Image
}

func (f *fakeSubmitter) ProcessImage(jobID string, img pipeline.Image) (*workflows.Handle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.jobIDs = append(f.jobIDs, jobID)
	f.images = append(f.images, img)
	f.store.SetProgress(jobID, pipeline.ProgressCreated)
	return nil, nil
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newTestHandler(opts ...Option) (*Handler, *fakeSubmitter, *progress.Store) {
	store := progress.NewStore()
	sub := &fakeSubmitter{store: store}
	return New(sub, store, opts...), sub, store
}

func TestHandleUpload_Accepted(t *testing.T) {
	h, sub, store := newTestHandler()
	body, contentType := multipartBody(t, "file", "cat.png", []byte("\x89PNG\r\n\x1a\nrest"))

	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp pipeline.UploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.JobID)

	require.Len(t, sub.jobIDs, 1)
	assert.Equal(t, resp.JobID, sub.jobIDs[0])
	assert.Equal(t, "cat.png", sub.images[0].Filename)
	assert.Equal(t, "image/png", sub.images[0].ContentType)

	percent, ok := store.Lookup(resp.JobID)
	assert.True(t, ok)
	assert.Equal(t, 0, percent)
}

func TestHandleUpload_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		data       []byte
		submitErr  error
		wantStatus int
	}{
		{name: "missing file field", field: "image", data: []byte("x"), wantStatus: http.StatusBadRequest},
		{name: "empty file", field: "file", data: nil, wantStatus: http.StatusBadRequest},
		{name: "shutting down", field: "file", data: []byte("x"), submitErr: workerpool.ErrPoolClosed, wantStatus: http.StatusServiceUnavailable},
		{name: "duplicate", field: "file", data: []byte("x"), submitErr: workflows.ErrDuplicateJob, wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, sub, _ := newTestHandler()
			sub.err = tt.submitErr

			body, contentType := multipartBody(t, tt.field, "a.png", tt.data)
			req := httptest.NewRequest(http.MethodPost, "/api/images/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp pipeline.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandleUpload_SizeLimit(t *testing.T) {
	h, sub, _ := newTestHandler(WithMaxUploadBytes(64))
	body, contentType := multipartBody(t, "file", "big.png", bytes.Repeat([]byte("a"), 4096))

	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, sub.jobIDs)
}

func TestHandleProgress(t *testing.T) {
	h, _, store := newTestHandler()
	store.SetProgress("J1", 75)

	tests := []struct {
		jobID string
		want  int
	}{
		{jobID: "J1", want: 75},
		{jobID: "unknown", want: 0},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/progress/"+tt.jobID, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp pipeline.ProgressResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, tt.jobID, resp.JobID)
		assert.Equal(t, tt.want, resp.Progress)
	}
}

func TestHandleAllProgressAndForget(t *testing.T) {
	h, _, store := newTestHandler()
	store.SetProgress("a", 25)
	store.SetProgress("b", 100)
	router := h.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var all map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	assert.Equal(t, map[string]int{"a": 25, "b": 100}, all)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/images/progress/b", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := store.Lookup("b")
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestHandleHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.JobSubmitted()

	h, _, _ := newTestHandler(WithMetrics(reg))
	router := h.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "image_pipeline_jobs_submitted_total 1")
}

func TestHandleFile(t *testing.T) {
	fs, err := storage.NewFilesystemStorage(t.TempDir(), "http://localhost:8080/files")
	require.NoError(t, err)
	_, err = fs.Put(context.Background(), "thumbnails/x_thumbnail_cat.jpg", "image/jpeg", strings.NewReader("jpeg"), 4)
	require.NoError(t, err)

	h, _, _ := newTestHandler(WithFiles(fs))
	router := h.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/thumbnails/x_thumbnail_cat.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	got, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(got))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleFile_UploaderChosenTypesAreDownloads(t *testing.T) {
	fs, err := storage.NewFilesystemStorage(t.TempDir(), "")
	require.NoError(t, err)

	images := storage.NewImageStore(fs, nil)
	address, err := images.Store(context.Background(), pipeline.Image{
		Filename:    "evil.html",
		ContentType: "text/html",
		Data:        []byte("<script>alert(1)</script>"),
	})
	require.NoError(t, err)
	htmlKey := address[strings.LastIndex(address, "/")+1:]

	_, err = fs.Put(context.Background(), "logo.svg", "image/svg+xml", strings.NewReader("<svg/>"), 6)
	require.NoError(t, err)
	_, err = fs.Put(context.Background(), "photo.PNG", "image/png", strings.NewReader("png"), 3)
	require.NoError(t, err)

	h, _, _ := newTestHandler(WithFiles(fs))
	router := h.Routes()

	tests := []struct {
		key        string
		wantType   string
		attachment bool
	}{
		{key: htmlKey, wantType: "application/octet-stream", attachment: true},
		{key: "logo.svg", wantType: "application/octet-stream", attachment: true},
		{key: "photo.PNG", wantType: "image/png", attachment: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+tt.key, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantType, rec.Header().Get("Content-Type"))
			assert.NotContains(t, rec.Header().Get("Content-Type"), "text/html")
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			if tt.attachment {
				assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment"))
			} else {
				assert.Empty(t, rec.Header().Get("Content-Disposition"))
			}
		})
	}
}

func TestRoutes_FilesDisabledWithoutReader(t *testing.T) {
	h, _, _ := newTestHandler()
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/anything.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
