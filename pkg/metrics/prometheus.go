package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchesTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	limiterWait  prometheus.Histogram
	latency      *prometheus.HistogramVec
	score        *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketscan_fetches_total",
				Help: "Total number of successful upstream fetches",
			},
			[]string{"kind", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketscan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		limiterWait: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketscan_rate_limiter_wait_seconds",
				Help:    "Time spent waiting for a rate-limit slot",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketscan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		score: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketscan_interestingness_score",
				Help: "Latest interestingness score per symbol",
			},
			[]string{"symbol"},
		),
	}
}

// RecordFetch records one successful upstream fetch.
func (r *Recorder) RecordFetch(kind, symbol string) {
	r.fetchesTotal.WithLabelValues(kind, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLimiterWait records time spent blocked on the rate limiter.
func (r *Recorder) RecordLimiterWait(seconds float64) {
	r.limiterWait.Observe(seconds)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordScore records the latest score for a symbol.
func (r *Recorder) RecordScore(symbol string, score float64) {
	r.score.WithLabelValues(symbol).Set(score)
}
