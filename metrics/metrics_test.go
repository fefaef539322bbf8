package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counters(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			key := f.GetName()
			for _, l := range m.GetLabel() {
				key += "," + l.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				out[key] = c.GetValue()
			}
		}
	}
	return out
}

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ParsesTotal.WithLabelValues("bsv", "full").Inc()
	m.ParsesTotal.WithLabelValues("bsv", "incremental").Add(2)
	m.WatcherEvents.Inc()

	got := counters(t, reg)
	assert.Equal(t, 1.0, got["grove_parses_total,bsv,full"])
	assert.Equal(t, 2.0, got["grove_parses_total,bsv,incremental"])
	assert.Equal(t, 1.0, got["grove_watcher_events_total"])

	assert.Panics(t, func() { New(reg) }, "collectors register once per registry")
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
