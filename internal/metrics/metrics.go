package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "image_pipeline"

// Metrics holds the pipeline's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	jobsSubmitted prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsInFlight  prometheus.Gauge
	stageDuration *prometheus.HistogramVec

	reg prometheus.Registerer
}

// New registers the pipeline collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		jobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Images accepted for processing.",
		}),
		jobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal state, by outcome.",
		}, []string{"outcome"}),
		jobsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently moving through the pipeline.",
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage, by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"stage", "outcome"}),
	}
}

// JobSubmitted records a newly accepted job
func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
	m.jobsInFlight.Inc()
}

// JobFinished records a job's terminal outcome
func (m *Metrics) JobFinished(err error) {
	if m == nil {
		return
	}
	m.jobsInFlight.Dec()
	m.jobsFinished.WithLabelValues(outcome(err)).Inc()
}

// ObserveStage records how long one stage of a job took
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome(err)).Observe(elapsed.Seconds())
}

// TrackGauge exposes fn as a gauge sampled at scrape time
func (m *Metrics) TrackGauge(name, help string, fn func() int) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 {
		return float64(fn())
	})
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "succeeded"
}
