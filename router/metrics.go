package router

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/agentgraph/metric"
)

// Metrics tracks routing outcomes, labeled by graph so one instance serves
// every engine in the process. A nil *Metrics records nothing.
type Metrics struct {
	routed  *prometheus.CounterVec
	noRoute *prometheus.CounterVec
	dropped *prometheus.CounterVec
	stale   *prometheus.CounterVec
	aborted *prometheus.CounterVec
	pending *prometheus.GaugeVec
}

// NewMetrics registers the router metric family. Create one per process and
// share it across engines.
func NewMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	m := &Metrics{
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Subsystem: "router",
			Name:      "messages_routed_total",
			Help:      "Messages enqueued to a destination group, by graph and kind",
		}, []string{"graph", "kind"}),
		noRoute: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Subsystem: "router",
			Name:      "no_route_total",
			Help:      "Sends that matched no connection rule, by graph and kind",
		}, []string{"graph", "kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Subsystem: "router",
			Name:      "messages_dropped_total",
			Help:      "Deliveries lost to a stopping group or unreachable handler",
		}, []string{"graph"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Subsystem: "router",
			Name:      "stale_results_total",
			Help:      "Results arriving for unknown or already settled commands",
		}, []string{"graph"}),
		aborted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Subsystem: "router",
			Name:      "commands_aborted_total",
			Help:      "Commands answered with Aborted at engine teardown",
		}, []string{"graph"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentgraph",
			Subsystem: "router",
			Name:      "pending_commands",
			Help:      "In-flight commands awaiting results, by graph",
		}, []string{"graph"}),
	}

	if err := registry.RegisterCounterVec("router", "messages_routed", m.routed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("router", "no_route", m.noRoute); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("router", "messages_dropped", m.dropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("router", "stale_results", m.stale); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("router", "commands_aborted", m.aborted); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("router", "pending_commands", m.pending); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) incRouted(graph, kind string) {
	if m == nil {
		return
	}
	m.routed.WithLabelValues(graph, kind).Inc()
}

func (m *Metrics) incNoRoute(graph, kind string) {
	if m == nil {
		return
	}
	m.noRoute.WithLabelValues(graph, kind).Inc()
}

func (m *Metrics) incDropped(graph string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(graph).Inc()
}

func (m *Metrics) incStale(graph string) {
	if m == nil {
		return
	}
	m.stale.WithLabelValues(graph).Inc()
}

func (m *Metrics) incAborted(graph string) {
	if m == nil {
		return
	}
	m.aborted.WithLabelValues(graph).Inc()
}

func (m *Metrics) setPending(graph string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(graph).Set(float64(n))
}
