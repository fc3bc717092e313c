package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/agentgraph/metric"
)

// Metrics holds Prometheus metrics for engine lifecycle operations. One
// instance serves every engine in the process; a nil *Metrics records
// nothing.
type Metrics struct {
	starts *prometheus.CounterVec // by graph and status (success/failure)
	stops  *prometheus.CounterVec // by graph and status

	startDuration *prometheus.HistogramVec // by graph
	stopDuration  *prometheus.HistogramVec // by graph

	activeEngines prometheus.Gauge
}

// NewMetrics creates and registers engine metrics with the provided registry.
// A nil registry disables metrics.
func NewMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Subsystem: "engine",
			Name:      "starts_total",
			Help:      "Total number of engine start attempts",
		}, []string{"graph", "status"}),

		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Subsystem: "engine",
			Name:      "stops_total",
			Help:      "Total number of engine stop operations",
		}, []string{"graph", "status"}),

		startDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentgraph",
			Subsystem: "engine",
			Name:      "start_duration_seconds",
			Help:      "Engine start duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
		}, []string{"graph"}),

		stopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentgraph",
			Subsystem: "engine",
			Name:      "stop_duration_seconds",
			Help:      "Engine stop duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
		}, []string{"graph"}),

		activeEngines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentgraph",
			Subsystem: "engine",
			Name:      "active_engines",
			Help:      "Current number of running engines",
		}),
	}

	if err := registry.RegisterCounterVec("engine", "starts", m.starts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "stops", m.stops); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "start_duration", m.startDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "stop_duration", m.stopDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("engine", "active_engines", m.activeEngines); err != nil {
		return nil, err
	}

	return m, nil
}

// recordStart records an engine start attempt.
func (m *Metrics) recordStart(graph string, success bool, duration float64) {
	if m == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}

	m.starts.WithLabelValues(graph, status).Inc()
	m.startDuration.WithLabelValues(graph).Observe(duration)

	if success {
		m.activeEngines.Inc()
	}
}

// recordStop records an engine stop operation.
func (m *Metrics) recordStop(graph string, duration float64) {
	if m == nil {
		return
	}

	m.stops.WithLabelValues(graph, "success").Inc()
	m.stopDuration.WithLabelValues(graph).Observe(duration)
	m.activeEngines.Dec()
}
