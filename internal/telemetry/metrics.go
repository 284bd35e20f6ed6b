// Package telemetry exposes prometheus metrics for the search service.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the service metric set on its own registry. A nil *Metrics
// is valid and records nothing, so callers never guard their observations.
type Metrics struct {
	registry *prometheus.Registry

	queries         *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	degradedSignals *prometheus.CounterVec
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "queries_total",
			Help:      "Completed search queries by status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage query processing time.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"stage"}),
		degradedSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "degraded_signals_total",
			Help:      "Queries where a signal degraded to absent.",
		}, []string{"signal"}),
	}
	registry.MustRegister(m.queries, m.stageDuration, m.degradedSignals)
	return m
}

// Registry returns the underlying registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// QueryCompleted counts a finished query by status (ok, invalid, error).
func (m *Metrics) QueryCompleted(status string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(status).Inc()
}

// ObserveStage records one stage's duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SignalDegraded counts a signal that degraded to absent for a query.
func (m *Metrics) SignalDegraded(signal string) {
	if m == nil {
		return
	}
	m.degradedSignals.WithLabelValues(signal).Inc()
}
