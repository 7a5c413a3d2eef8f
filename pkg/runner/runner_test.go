package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-image-pipeline/internal/config"
	"github.com/tendant/simple-image-pipeline/internal/workerpool"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

func devConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		StorageDir:          filepath.Join(dir, "objects"),
		MetadataDatabaseURL: filepath.Join(dir, "db", "metadata.db"),
		Workers:             2,
	}
	cfg.WithDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func upload(t *testing.T, h http.Handler, name string, data []byte) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp pipeline.UploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.JobID
}

func TestRunner_FilesystemPipeline(t *testing.T) {
	cfg := devConfig(t)
	r, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 300, 150))))

	h := r.Handler()
	jobID := upload(t, h, "wide.png", buf.Bytes())

	assert.Eventually(t, func() bool {
		return r.Progress().GetProgress(jobID) == pipeline.ProgressNotified && r.Orchestrator().InFlight() == 0
	}, 5*time.Second, 10*time.Millisecond)

	entries, err := os.ReadDir(filepath.Join(cfg.StorageDir, "thumbnails"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/thumbnails/"+entries[0].Name(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "image_pipeline_tracked_jobs 1")
	assert.Contains(t, rec.Body.String(), `image_pipeline_jobs_finished_total{outcome="succeeded"} 1`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	_, err = r.Orchestrator().ProcessImage("after-shutdown", pipeline.Image{Data: []byte("x")})
	assert.ErrorIs(t, err, workerpool.ErrPoolClosed)
}

func TestRunner_AWSBackendsBuildWithoutNetwork(t *testing.T) {
	cfg := devConfig(t)
	cfg.StorageBackend = config.StorageS3
	cfg.S3Bucket = "images"
	cfg.Notifier = config.NotifierSNS
	cfg.SNSTopicARN = "arn:aws:sns:us-east-1:000000000000:uploads"
	require.NoError(t, cfg.Validate())

	r, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, r.files)
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestRunner_InvalidSQLitePath(t *testing.T) {
	cfg := devConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.MetadataDatabaseURL = filepath.Join(blocker, "metadata.db")

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}

type fakeRuntime struct {
	launchErr error
	launched  int
	shutdowns int
}

func (f *fakeRuntime) Launch() error {
	f.launched++
	return f.launchErr
}

func (f *fakeRuntime) Shutdown(timeout time.Duration) error {
	f.shutdowns++
	return nil
}

func TestLaunchRuntime_FailedLaunchStillShutsDown(t *testing.T) {
	r := &Runner{}
	rt := &fakeRuntime{launchErr: errors.New("connection refused")}

	err := r.launchRuntime(rt)
	require.Error(t, err)
	assert.ErrorIs(t, err, rt.launchErr)

	require.NoError(t, r.close())
	assert.Equal(t, 1, rt.launched)
	assert.Equal(t, 1, rt.shutdowns)
}

func TestLaunchRuntime_ShutdownOnClose(t *testing.T) {
	r := &Runner{}
	rt := &fakeRuntime{}

	require.NoError(t, r.launchRuntime(rt))
	assert.Equal(t, 0, rt.shutdowns)

	require.NoError(t, r.close())
	assert.Equal(t, 1, rt.shutdowns)

	// closers run once
	require.NoError(t, r.close())
	assert.Equal(t, 1, rt.shutdowns)
}
