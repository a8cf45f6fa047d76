// Package metrics provides Prometheus collectors for the part write path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector tracks part writer activity. Create one per writing component and
// register it once; a nil *Collector is safe to use and records nothing.
type Collector struct {
	rowsWritten     prometheus.Counter
	granulesFlushed prometheus.Counter
	compressedBytes prometheus.Counter
	flushLatency    prometheus.Histogram
}

// NewCollector creates a collector registered with reg. A nil reg selects the
// default registerer.
func NewCollector(subsystem string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsar",
			Subsystem: subsystem,
			Name:      "rows_written_total",
			Help:      "Rows written into part data files.",
		}),
		granulesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsar",
			Subsystem: subsystem,
			Name:      "granules_flushed_total",
			Help:      "Granules flushed to part data files.",
		}),
		compressedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsar",
			Subsystem: subsystem,
			Name:      "compressed_bytes_total",
			Help:      "Compressed bytes appended to part data files.",
		}),
		flushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulsar",
			Subsystem: subsystem,
			Name:      "flush_duration_seconds",
			Help:      "Latency of granule flushes.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}

	reg.MustRegister(c.rowsWritten, c.granulesFlushed, c.compressedBytes, c.flushLatency)
	return c
}

// ObserveFlush records one flush of the given size.
func (c *Collector) ObserveFlush(rows, granules int, compressedBytes uint64, d time.Duration) {
	if c == nil {
		return
	}
	c.rowsWritten.Add(float64(rows))
	c.granulesFlushed.Add(float64(granules))
	c.compressedBytes.Add(float64(compressedBytes))
	c.flushLatency.Observe(d.Seconds())
}
