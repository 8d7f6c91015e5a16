package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/mirror/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := metrics.New()
	m.MirroredTo("outbound", "damus")
	m.MirroredTo("outbound", "damus")
	m.Error(metrics.ErrMirror, "nos")
	m.Discard(metrics.Duplicate)
	m.Active.Inc()
	m.ObserveLatency(2 * time.Second)
	assert.Equal(t, 2.0,
		testutil.ToFloat64(m.Mirrored.WithLabelValues("outbound", "damus")))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(m.Errors.WithLabelValues(metrics.ErrMirror, "nos")))
	assert.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(`
# HELP reflectr_active_mirrors Open relay connections.
# TYPE reflectr_active_mirrors gauge
reflectr_active_mirrors 1
`), "reflectr_active_mirrors"))
}

func TestSnapshot(t *testing.T) {
	m := metrics.New()
	m.MirroredTo("inbound", "local")
	m.ReceivedFrom("public", "damus")
	m.ReceivedFrom("public", "damus")
	m.Error(metrics.ErrQueueFull, "local")
	m.Discard(metrics.Ineligible)
	m.SetSize.Set(42)
	m.QueueDepth.WithLabelValues("local").Set(3)
	m.Active.Set(2)
	m.ObserveLatency(time.Second)
	s := m.Snapshot()
	assert.Equal(t, 1.0, s.Mirrored["inbound"]["local"])
	assert.Equal(t, 2.0, s.Received["public"]["damus"])
	assert.Equal(t, 1.0, s.Errors[metrics.ErrQueueFull]["local"])
	assert.Equal(t, 1.0, s.Discarded[metrics.Ineligible])
	assert.Equal(t, 3.0, s.QueueDepth["local"])
	assert.Equal(t, 42.0, s.MirroredSetSize)
	assert.Equal(t, 2.0, s.ActiveConnections)
	assert.Equal(t, uint64(1), s.LatencyCount)
	assert.Equal(t, 1.0, s.LatencySumSeconds)
}
