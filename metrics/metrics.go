// Package metrics holds the Prometheus collectors of the parser and the
// language server.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ParsesTotal      *prometheus.CounterVec
	ParseDuration    *prometheus.HistogramVec
	ReusedNodesTotal *prometheus.CounterVec
	ReusedBytesTotal *prometheus.CounterVec
	ErrorTreesTotal  *prometheus.CounterVec
	RecoveriesTotal  *prometheus.CounterVec
	MaxVersions      *prometheus.GaugeVec
	WatcherEvents    prometheus.Counter
	Documents        prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ParsesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grove_parses_total",
			Help: "Total number of parses, by language and mode (full or incremental).",
		}, []string{"language", "mode"}),

		ParseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grove_parse_seconds",
			Help:    "Time spent parsing a document.",
			Buckets: prometheus.DefBuckets,
		}, []string{"language", "mode"}),

		ReusedNodesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grove_reused_nodes_total",
			Help: "Total number of subtrees taken over from a previous tree.",
		}, []string{"language"}),

		ReusedBytesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grove_reused_bytes_total",
			Help: "Total number of source bytes covered by reused subtrees.",
		}, []string{"language"}),

		ErrorTreesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grove_error_trees_total",
			Help: "Total number of parses whose tree contains ERROR or MISSING nodes.",
		}, []string{"language"}),

		RecoveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grove_recoveries_total",
			Help: "Total number of error recoveries.",
		}, []string{"language"}),

		MaxVersions: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grove_last_parse_max_versions",
			Help: "Largest number of simultaneous stack versions in the last parse.",
		}, []string{"language"}),

		WatcherEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "grove_watcher_events_total",
			Help: "Total number of file system events received by the watcher.",
		}),

		Documents: f.NewGauge(prometheus.GaugeOpts{
			Name: "grove_open_documents",
			Help: "Number of documents held by the workspace.",
		}),
	}
}

var (
	defaultOnce sync.Once
	defaultSet  *Metrics
)

// Default returns the collectors registered with the default Prometheus
// registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultSet = New(prometheus.DefaultRegisterer)
	})
	return defaultSet
}
