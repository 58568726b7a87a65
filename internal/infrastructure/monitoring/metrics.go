package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of one trace pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Ingestion metrics
	ItemsPushed *prometheus.CounterVec
	Pending     prometheus.Gauge

	// Flush metrics
	FlushBatches  *prometheus.CounterVec
	FlushItems    *prometheus.CounterVec
	FlushDuration *prometheus.HistogramVec
	SyncFallbacks prometheus.Counter
	Drains        *prometheus.CounterVec

	// Context metrics
	ContextMisses *prometheus.CounterVec

	// Admin HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	ItemsPushed   int64   `json:"items_pushed"`
	ItemsFlushed  int64   `json:"items_flushed"`
	BatchesOK     int64   `json:"batches_ok"`
	BatchesFailed int64   `json:"batches_failed"`
	SyncFallbacks int64   `json:"sync_fallbacks"`
	DrainTimeouts int64   `json:"drain_timeouts"`
	ContextMisses int64   `json:"context_misses"`
	FlushSeconds  float64 `json:"flush_seconds"` // sum of all batch durations
	UptimeSeconds float64 `json:"uptime_seconds"`
	AdminRequests int64   `json:"admin_requests"`
}

// NewMetrics creates a metrics collector on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a metrics collector registered on reg.
// Each pipeline in a process should pass its own registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		// Ingestion metrics
		ItemsPushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfl_items_pushed_total",
				Help: "Total number of items accepted by the buffer",
			},
			[]string{"category"},
		),
		Pending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vfl_buffer_pending",
				Help: "Number of items waiting for the next flush",
			},
		),

		// Flush metrics
		FlushBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfl_flush_batches_total",
				Help: "Total number of batches handed to the flush handler",
			},
			[]string{"category", "status"},
		),
		FlushItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfl_flush_items_total",
				Help: "Total number of items delivered by the flush handler",
			},
			[]string{"category"},
		),
		FlushDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vfl_flush_duration_seconds",
				Help:    "Flush handler call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"category"},
		),
		SyncFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vfl_flush_sync_fallback_total",
				Help: "Dispatches run on the calling goroutine because the worker pool was saturated",
			},
		),
		Drains: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfl_drain_total",
				Help: "Total number of drains by result",
			},
			[]string{"result"},
		),

		// Context metrics
		ContextMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfl_context_misses_total",
				Help: "Tracer calls skipped because no block context was active",
			},
			[]string{"operation"},
		),

		// Admin HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfl_admin_requests_total",
				Help: "Total number of admin HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vfl_admin_request_duration_seconds",
				Help:    "Admin HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vfl_uptime_seconds",
				Help: "Pipeline uptime in seconds",
			},
		),
	}

	return m
}

// RecordPush records one accepted item
func (m *Metrics) RecordPush(category string) {
	if m == nil {
		return
	}
	m.ItemsPushed.WithLabelValues(category).Inc()
	m.mu.Lock()
	m.snapshot.ItemsPushed++
	m.mu.Unlock()
}

// SetPending sets the number of buffered items
func (m *Metrics) SetPending(count int64) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(count))
}

// RecordFlush records one handler call for a category
func (m *Metrics) RecordFlush(category string, items int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.FlushBatches.WithLabelValues(category, status).Inc()
	m.FlushDuration.WithLabelValues(category).Observe(duration.Seconds())
	if err == nil {
		m.FlushItems.WithLabelValues(category).Add(float64(items))
	}

	// Update snapshot
	m.mu.Lock()
	m.snapshot.FlushSeconds += duration.Seconds()
	if err != nil {
		m.snapshot.BatchesFailed++
	} else {
		m.snapshot.BatchesOK++
		m.snapshot.ItemsFlushed += int64(items)
	}
	m.mu.Unlock()
}

// IncSyncFallback records a dispatch that ran inline under saturation
func (m *Metrics) IncSyncFallback() {
	if m == nil {
		return
	}
	m.SyncFallbacks.Inc()
	m.mu.Lock()
	m.snapshot.SyncFallbacks++
	m.mu.Unlock()
}

// RecordDrain records a drain outcome ("ok", "timeout", "error")
func (m *Metrics) RecordDrain(result string) {
	if m == nil {
		return
	}
	m.Drains.WithLabelValues(result).Inc()
	if result == "timeout" {
		m.mu.Lock()
		m.snapshot.DrainTimeouts++
		m.mu.Unlock()
	}
}

// RecordContextMiss records a tracer call skipped for lack of context
func (m *Metrics) RecordContextMiss(operation string) {
	if m == nil {
		return
	}
	m.ContextMisses.WithLabelValues(operation).Inc()
	m.mu.Lock()
	m.snapshot.ContextMisses++
	m.mu.Unlock()
}

// RecordHTTPRequest records an admin HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.AdminRequests++
	m.mu.Unlock()
}

// Snapshot returns the current counter values
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	uptime := time.Since(m.startTime).Seconds()
	m.Uptime.Set(uptime)

	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.snapshot
	snap.UptimeSeconds = uptime
	return snap
}
