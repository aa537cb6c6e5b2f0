// Package scoperprom exposes the state of a scoper recorder as Prometheus
// metrics.
package scoperprom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/peterbourgon/scoper"
)

// StatsSource is anything that reports recorder statistics, typically a
// *scoper.Recorder.
type StatsSource interface {
	Stats() scoper.Stats
}

// Collector is a prometheus.Collector over a StatsSource. Values are read at
// collection time, so registering a collector costs nothing while recording.
type Collector struct {
	source StatsSource

	pending *prometheus.Desc
	pushed  *prometheus.Desc
	flushed *prometheus.Desc
	flushes *prometheus.Desc
	active  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

const metricsPrefix = "scoper_"

// NewCollector returns a collector for the source. The const labels, which
// may be nil, are applied to every metric.
func NewCollector(source StatsSource, constLabels prometheus.Labels) *Collector {
	kindLabel := []string{"kind"}

	return &Collector{
		source: source,

		pending: prometheus.NewDesc(
			metricsPrefix+"records_pending",
			"The number of finished records waiting to be flushed.",
			kindLabel, constLabels,
		),

		pushed: prometheus.NewDesc(
			metricsPrefix+"records_pushed_total",
			"The total number of records pushed.",
			kindLabel, constLabels,
		),

		flushed: prometheus.NewDesc(
			metricsPrefix+"records_flushed_total",
			"The total number of records drained by flushes.",
			kindLabel, constLabels,
		),

		flushes: prometheus.NewDesc(
			metricsPrefix+"flushes_total",
			"The total number of flushes.",
			nil, constLabels,
		),

		active: prometheus.NewDesc(
			metricsPrefix+"active_goroutines",
			"The number of goroutines with at least one open scope.",
			nil, constLabels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pending
	ch <- c.pushed
	ch <- c.flushed
	ch <- c.flushes
	ch <- c.active
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	for _, kb := range []struct {
		kind  scoper.Kind
		stats scoper.BufferStats
	}{
		{scoper.KindScope, stats.Scopes},
		{scoper.KindCounter, stats.Counters},
		{scoper.KindInstant, stats.Instants},
	} {
		kind := kb.kind.String()
		ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(kb.stats.Pending), kind)
		ch <- prometheus.MustNewConstMetric(c.pushed, prometheus.CounterValue, float64(kb.stats.Pushed), kind)
		ch <- prometheus.MustNewConstMetric(c.flushed, prometheus.CounterValue, float64(kb.stats.Flushed), kind)
	}

	// Every flush drains all kinds, so any buffer's count will do.
	ch <- prometheus.MustNewConstMetric(c.flushes, prometheus.CounterValue, float64(stats.Scopes.Flushes))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(stats.ActiveGoroutines))
}
