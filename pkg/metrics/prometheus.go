package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	admissions  *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	available   *prometheus.GaugeVec
	waitTime    *prometheus.HistogramVec
	upstream    *prometheus.HistogramVec
}

// New creates a recorder registered on reg. A nil reg means the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		admissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_admissions_total",
				Help: "Admission decisions by bucket, mode and result",
			},
			[]string{"bucket", "mode", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		available: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rategate_bucket_available_tokens",
				Help: "Tokens available after the last admission decision",
			},
			[]string{"bucket"},
		),
		waitTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rategate_wait_seconds",
				Help:    "Time callers spent waiting for a token",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"bucket", "result"},
		),
		upstream: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rategate_upstream_duration_seconds",
				Help:    "Duration of upstream API calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "cache"},
		),
	}
}

// RecordAdmission counts an admission decision.
func (r *Recorder) RecordAdmission(bucket, mode, result string) {
	r.admissions.WithLabelValues(bucket, mode, result).Inc()
}

// RecordAvailable records the balance of a bucket.
func (r *Recorder) RecordAvailable(bucket string, tokens int64) {
	r.available.WithLabelValues(bucket).Set(float64(tokens))
}

// RecordWait records how long a waiter was suspended.
func (r *Recorder) RecordWait(bucket, result string, seconds float64) {
	r.waitTime.WithLabelValues(bucket, result).Observe(seconds)
}

// RecordUpstream records upstream call latency; cache is "hit" or "miss".
func (r *Recorder) RecordUpstream(op, cache string, seconds float64) {
	r.upstream.WithLabelValues(op, cache).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
