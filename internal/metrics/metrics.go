// internal/metrics/metrics.go
package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	BatchSize       *prometheus.HistogramVec
	BatchFlushes    *prometheus.CounterVec
	MemoShared      prometheus.Counter
	ReconcileAssets *prometheus.CounterVec
	ReconcilePasses *prometheus.CounterVec
	TagRequests     *prometheus.CounterVec
	TagLatency      *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
	registry        *prometheus.Registry
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// New creates a Metrics set on its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		BatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metavault_cache_batch_size",
				Help:    "Number of requests merged into one bulk store call",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
			},
			[]string{"op"},
		),
		BatchFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metavault_cache_batch_flushes_total",
				Help: "Bulk store calls issued by the coalescer",
			},
			[]string{"op", "result"},
		),
		MemoShared: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "metavault_cache_memo_shared_total",
				Help: "Reads served by joining an in-flight read",
			},
		),
		ReconcileAssets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metavault_reconcile_assets_total",
				Help: "Assets visited by reconciliation passes",
			},
			[]string{"outcome"},
		),
		ReconcilePasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metavault_reconcile_passes_total",
				Help: "Reconciliation passes by final status",
			},
			[]string{"status"},
		),
		TagRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metavault_tag_requests_total",
				Help: "Tag service calls",
			},
			[]string{"provider", "result"},
		),
		TagLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metavault_tag_request_duration_seconds",
				Help:    "Tag service latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metavault_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "path", "status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.BatchSize,
		m.BatchFlushes,
		m.MemoShared,
		m.ReconcileAssets,
		m.ReconcilePasses,
		m.TagRequests,
		m.TagLatency,
		m.HTTPRequests,
	)

	return m
}

// Default returns the process-wide Metrics set
func Default() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = New()
	})
	return metricsInstance
}

// ObserveBatch records one coalescer flush
func (m *Metrics) ObserveBatch(op string, size int, err error) {
	if m == nil {
		return
	}
	m.BatchSize.WithLabelValues(op).Observe(float64(size))
	m.BatchFlushes.WithLabelValues(op, result(err)).Inc()
}

// IncMemoShared counts a read that joined an in-flight read
func (m *Metrics) IncMemoShared() {
	if m == nil {
		return
	}
	m.MemoShared.Inc()
}

// IncAsset counts one asset outcome (written, satisfied, failed)
func (m *Metrics) IncAsset(outcome string) {
	if m == nil {
		return
	}
	m.ReconcileAssets.WithLabelValues(outcome).Inc()
}

// IncPass counts a finished pass
func (m *Metrics) IncPass(status string) {
	if m == nil {
		return
	}
	m.ReconcilePasses.WithLabelValues(status).Inc()
}

// ObserveTag records one tag service call
func (m *Metrics) ObserveTag(provider string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.TagRequests.WithLabelValues(provider, result(err)).Inc()
	m.TagLatency.WithLabelValues(provider).Observe(seconds)
}

// IncrementRequest counts a served HTTP request
func (m *Metrics) IncrementRequest(method, path string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus metrics handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ResetForTesting resets the singleton for testing
func ResetForTesting() {
	metricsInstance = nil
	metricsOnce = sync.Once{}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
