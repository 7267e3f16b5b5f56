package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tablesync"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Sync metrics
	SyncRequests    *prometheus.CounterVec
	SyncDuration    *prometheus.HistogramVec
	CommitConflicts *prometheus.CounterVec

	// Reactive metrics
	Notifications *prometheus.CounterVec
	CacheRows     *prometheus.GaugeVec
}

// NewRegistry creates a registry with the tablesync metrics plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		SyncRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_requests_total",
			Help:      "Synchronization calls by table, operation and outcome.",
		}, []string{"table", "op", "outcome"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Synchronization call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"table", "op"}),
		CommitConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_conflicts_total",
			Help:      "Commits whose canonical result was not a direct successor of the proposal.",
		}, []string{"table"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactive_notifications_total",
			Help:      "Reactive cache replacements delivered to observers.",
		}, []string{"table"}),
		CacheRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_rows",
			Help:      "Rows held in a reactive cache.",
		}, []string{"table"}),
	}

	reg.MustRegister(
		r.SyncRequests,
		r.SyncDuration,
		r.CommitConflicts,
		r.Notifications,
		r.CacheRows,
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler returns an HTTP handler for the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler exposing this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Prometheus returns the underlying registry for components that register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// ============================================================================
// Recording helpers
// ============================================================================

// RecordSync counts one synchronization call.
func (r *Registry) RecordSync(table, op, outcome string) {
	r.SyncRequests.WithLabelValues(table, op, outcome).Inc()
}

// ObserveSyncDuration records the latency of one synchronization call.
func (r *Registry) ObserveSyncDuration(table, op string, seconds float64) {
	r.SyncDuration.WithLabelValues(table, op).Observe(seconds)
}

// IncCommitConflict counts a commit that raced with another writer.
func (r *Registry) IncCommitConflict(table string) {
	r.CommitConflicts.WithLabelValues(table).Inc()
}

// IncNotification counts one reactive notification.
func (r *Registry) IncNotification(table string) {
	r.Notifications.WithLabelValues(table).Inc()
}

// SetCacheRows sets the cached row gauge for a table.
func (r *Registry) SetCacheRows(table string, rows int) {
	r.CacheRows.WithLabelValues(table).Set(float64(rows))
}
