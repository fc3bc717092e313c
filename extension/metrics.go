package extension

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/agentgraph/metric"
)

// GroupMetrics tracks group loop activity across every group in the process.
// A nil *GroupMetrics is valid and records nothing, so groups work without a
// metrics registry in tests.
type GroupMetrics struct {
	handled       *prometheus.CounterVec
	discarded     *prometheus.CounterVec
	depth         *prometheus.GaugeVec
	handleSeconds *prometheus.HistogramVec
}

// NewGroupMetrics registers the group metric family. Create one per process
// and share it across engines; registering twice on the same registry fails.
func NewGroupMetrics(registry *metric.MetricsRegistry) (*GroupMetrics, error) {
	m := &GroupMetrics{
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Subsystem: "group",
			Name:      "messages_handled_total",
			Help:      "Messages dispatched to extension handlers, by group and kind",
		}, []string{"group", "kind"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Subsystem: "group",
			Name:      "messages_discarded_total",
			Help:      "Messages dropped because no bound extension could take them",
		}, []string{"group"}),
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentgraph",
			Subsystem: "group",
			Name:      "mailbox_depth",
			Help:      "Current mailbox depth per group",
		}, []string{"group"}),
		handleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentgraph",
			Subsystem: "group",
			Name:      "handle_seconds",
			Help:      "Extension handler duration, by group and kind",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"group", "kind"}),
	}

	if err := registry.RegisterCounterVec("group", "messages_handled", m.handled); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("group", "messages_discarded", m.discarded); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("group", "mailbox_depth", m.depth); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("group", "handle_seconds", m.handleSeconds); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *GroupMetrics) observeHandled(group, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(group, kind).Inc()
	m.handleSeconds.WithLabelValues(group, kind).Observe(d.Seconds())
}

func (m *GroupMetrics) incDiscarded(group string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(group).Inc()
}

func (m *GroupMetrics) setDepth(group string, depth int) {
	if m == nil {
		return
	}
	m.depth.WithLabelValues(group).Set(float64(depth))
}
