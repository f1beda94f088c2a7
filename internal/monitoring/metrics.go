// Package monitoring exposes Prometheus metrics for the sync subsystem.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the sync-engine Prometheus collectors. Pass a dedicated
// Registerer in tests so parallel queues never collide.
type Metrics struct {
	Pushes    prometheus.Counter
	Pulls     prometheus.Counter
	Conflicts *prometheus.CounterVec
	Retries   prometheus.Counter
	Failures  prometheus.Counter
	InFlight  prometheus.Gauge
	Duration  prometheus.Histogram
}

// NewMetrics registers sync collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Pushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "cirrus_sync_pushes_total",
			Help: "Records pushed to the remote store",
		}),
		Pulls: factory.NewCounter(prometheus.CounterOpts{
			Name: "cirrus_sync_pulls_total",
			Help: "Records pulled from the remote store",
		}),
		Conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cirrus_sync_conflicts_total",
			Help: "Conflicts resolved, by disposition",
		}, []string{"disposition"}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "cirrus_sync_retries_total",
			Help: "Sync operations re-queued after a transient failure",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cirrus_sync_failures_total",
			Help: "Sync operations abandoned after exhausting retries",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cirrus_sync_in_flight",
			Help: "Sync operations currently reconciling",
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cirrus_sync_duration_seconds",
			Help:    "Duration of one reconciliation round-trip",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
}
