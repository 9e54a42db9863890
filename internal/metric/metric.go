// Package metric defines the Prometheus instrumentation for the control hub.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all hub-level metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Integration coordinator.
	PublishesTotal *prometheus.CounterVec // adapter, result
	EventsDropped  *prometheus.CounterVec // adapter

	// Command service.
	CommandsTotal *prometheus.CounterVec // operation, status

	// Topology reconciliation.
	ReconcileRuns    *prometheus.CounterVec // result
	DriftCorrections prometheus.Counter

	// Realtime push.
	PushSubscribers prometheus.Gauge

	// Audio-topology server connection.
	TopologyConnected prometheus.Gauge
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		PublishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "snapzone",
				Subsystem: "publish",
				Name:      "events_total",
				Help:      "Change events delivered to publisher adapters, by adapter and result",
			},
			[]string{"adapter", "result"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "snapzone",
				Subsystem: "publish",
				Name:      "events_dropped_total",
				Help:      "Change events dropped because an adapter queue was full",
			},
			[]string{"adapter"},
		),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "snapzone",
				Subsystem: "command",
				Name:      "dispatched_total",
				Help:      "Commands dispatched, by operation and status",
			},
			[]string{"operation", "status"},
		),

		ReconcileRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "snapzone",
				Subsystem: "topology",
				Name:      "reconcile_runs_total",
				Help:      "Reconciliation passes, by result (ok, skipped)",
			},
			[]string{"result"},
		),

		DriftCorrections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "snapzone",
				Subsystem: "topology",
				Name:      "drift_corrections_total",
				Help:      "Client moves issued to correct topology drift",
			},
		),

		PushSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "snapzone",
				Subsystem: "push",
				Name:      "subscribers",
				Help:      "Currently connected realtime-push subscribers",
			},
		),

		TopologyConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "snapzone",
				Subsystem: "topology",
				Name:      "connected",
				Help:      "Whether the audio-topology server connection is up (0 or 1)",
			},
		),
	}

	m.registry.MustRegister(
		m.PublishesTotal,
		m.EventsDropped,
		m.CommandsTotal,
		m.ReconcileRuns,
		m.DriftCorrections,
		m.PushSubscribers,
		m.TopologyConnected,
	)
	return m
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
