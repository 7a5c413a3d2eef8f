package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_JobLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.JobSubmitted()
	m.JobSubmitted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsSubmitted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsInFlight))

	m.JobFinished(nil)
	m.JobFinished(errors.New("boom"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.jobsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("failed")))
}

func TestMetrics_ObserveStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStage("store", 10*time.Millisecond, nil)
	m.ObserveStage("metadata", 5*time.Millisecond, errors.New("decode"))

	assert.Equal(t, 2, testutil.CollectAndCount(m.stageDuration))
}

func TestMetrics_TrackGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	tracked := 3
	m.TrackGauge("progress_tracked_jobs", "Jobs in the progress store.", func() int { return tracked })

	expected := `
# HELP image_pipeline_progress_tracked_jobs Jobs in the progress store.
# TYPE image_pipeline_progress_tracked_jobs gauge
image_pipeline_progress_tracked_jobs 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "image_pipeline_progress_tracked_jobs"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.JobSubmitted()
	m.JobFinished(nil)
	m.ObserveStage("store", time.Second, nil)
	m.TrackGauge("x", "y", func() int { return 1 })
}
