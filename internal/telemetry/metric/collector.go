package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RowSource reports the current row count of each table it knows about.
type RowSource func() map[string]int

// Collector reports table row counts at scrape time.
type Collector struct {
	source RowSource
	desc   *prometheus.Desc
}

// NewCollector creates a collector reading from source on every scrape.
func NewCollector(source RowSource) *Collector {
	return &Collector{
		source: source,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "table_rows"),
			"Rows in a table as reported by the backend.",
			[]string{"table"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	for table, rows := range c.source() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(rows), table)
	}
}
