// Package obsv wires Prometheus metrics and an OpenTelemetry tracer for the
// interpreter's operation dispatch, fork scheduler, and event system —
// grounded on the teacher's pkg/observability, scoped to this spec's
// narrower surface (fork count, event queue depth, cache hit rate, retry
// count, one span per Operation dispatch).
package obsv

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exposed by `orchid serve`'s
// /metrics endpoint. A nil *Metrics is safe to call every method on — it
// simply records nothing, matching the teacher's nil-receiver pattern so
// callers never branch on whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	forkCount     prometheus.Counter
	forkActive    prometheus.Gauge
	eventQueue    *prometheus.GaugeVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	retryCount    prometheus.Counter
	opDuration    *prometheus.HistogramVec
	opErrors      *prometheus.CounterVec
}

// New creates a fresh, self-registered Metrics collector.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.forkCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orchid", Subsystem: "fork", Name: "branches_total",
		Help: "Total number of fork branches scheduled.",
	})
	m.forkActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchid", Subsystem: "fork", Name: "active",
		Help: "Number of currently running fork branches.",
	})
	m.eventQueue = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchid", Subsystem: "event", Name: "queue_depth",
		Help: "Buffered event count per event name.",
	}, []string{"event"})
	m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orchid", Subsystem: "cache", Name: "hits_total",
		Help: "Total number of <cached>/<pure> cache hits.",
	})
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orchid", Subsystem: "cache", Name: "misses_total",
		Help: "Total number of <cached>/<pure> cache misses.",
	})
	m.retryCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orchid", Subsystem: "tags", Name: "retries_total",
		Help: "Total number of <retry> attempts beyond the first.",
	})
	m.opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchid", Subsystem: "operation", Name: "duration_seconds",
		Help:    "Operation dispatch duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"name"})
	m.opErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchid", Subsystem: "operation", Name: "errors_total",
		Help: "Total number of operation dispatch errors.",
	}, []string{"name", "kind"})

	m.registry.MustRegister(m.forkCount, m.forkActive, m.eventQueue,
		m.cacheHits, m.cacheMisses, m.retryCount, m.opDuration, m.opErrors)
	return m
}

func (m *Metrics) ForkStarted() {
	if m == nil {
		return
	}
	m.forkCount.Inc()
	m.forkActive.Inc()
}

func (m *Metrics) ForkFinished() {
	if m == nil {
		return
	}
	m.forkActive.Dec()
}

func (m *Metrics) SetEventQueueDepth(name string, depth int) {
	if m == nil {
		return
	}
	m.eventQueue.WithLabelValues(name).Set(float64(depth))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) Retried() {
	if m == nil {
		return
	}
	m.retryCount.Inc()
}

func (m *Metrics) ObserveOperation(name string, seconds float64) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(name).Observe(seconds)
}

func (m *Metrics) RecordOperationError(name, kind string) {
	if m == nil {
		return
	}
	m.opErrors.WithLabelValues(name, kind).Inc()
}

// Handler serves the Prometheus exposition format for `orchid serve`'s
// GET /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
