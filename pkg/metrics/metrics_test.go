package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorObserveFlush(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("part_writer", reg)

	c.ObserveFlush(150, 2, 4096, 3*time.Millisecond)
	c.ObserveFlush(50, 1, 1024, time.Millisecond)

	assert.Equal(t, float64(200), testutil.ToFloat64(c.rowsWritten))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.granulesFlushed))
	assert.Equal(t, float64(5120), testutil.ToFloat64(c.compressedBytes))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveFlush(1, 1, 1, time.Second)
}
