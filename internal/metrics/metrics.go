// Package metrics exposes Prometheus instrumentation for comparisons
// and the HTTP API. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "motion_compare"

// Metrics holds the registered collectors
type Metrics struct {
	comparisons   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	accuracy      prometheus.Histogram
	sinkFailures  prometheus.Counter
	httpRequests  *prometheus.CounterVec
	gatherer      prometheus.Gatherer
}

// New registers collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_total",
			Help:      "Finished comparisons by status and outcome.",
		}, []string{"status", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each comparison stage.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		accuracy: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "accuracy",
			Help:      "Accuracy of successful comparisons.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		sinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_sink_failures_total",
			Help:      "Accuracy writes that failed.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.comparisons,
		m.stageDuration,
		m.accuracy,
		m.sinkFailures,
		m.httpRequests,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// CountComparison records a finished comparison
func (m *Metrics) CountComparison(status, outcome string) {
	if m == nil {
		return
	}
	m.comparisons.WithLabelValues(status, outcome).Inc()
}

// ObserveAccuracy records a successful accuracy
func (m *Metrics) ObserveAccuracy(v float64) {
	if m == nil {
		return
	}
	m.accuracy.Observe(v)
}

// SinkFailed counts a failed accuracy write
func (m *Metrics) SinkFailed() {
	if m == nil {
		return
	}
	m.sinkFailures.Inc()
}

// CountRequest records one HTTP response
func (m *Metrics) CountRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
