// Package metric provides Prometheus metrics for tablesync.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry, recording helpers and HTTP handler
//   - collector.go: Collector reporting live row counts of cached tables
//
// Metrics include:
//
//   - Sync call counters and latency histograms, per table and operation
//   - Commit conflict counters
//   - Reactive notification counters and cached row gauges
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
