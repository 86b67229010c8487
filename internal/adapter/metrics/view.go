package metrics

import (
	"github.com/gadroo/poll-prediction/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// ViewMetrics holds Prometheus metrics for view reconciliation.
type ViewMetrics struct {
	MessagesApplied *prometheus.CounterVec
}

// NewViewMetrics creates and registers view metrics on the given registry.
func NewViewMetrics(reg prometheus.Registerer) *ViewMetrics {
	m := &ViewMetrics{
		MessagesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "messages_total",
			Help:      "Total number of live messages offered to the view, by type and result.",
		}, []string{"type", "result"}),
	}

	reg.MustRegister(m.MessagesApplied)
	return m
}

// Observe records whether msg changed the view.
func (m *ViewMetrics) Observe(msg domain.Message, applied bool) {
	result := "ignored"
	if applied {
		result = "applied"
	}
	m.MessagesApplied.WithLabelValues(knownType(msg.Type()), result).Inc()
}
