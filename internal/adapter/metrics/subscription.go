package metrics

import (
	"time"

	"github.com/gadroo/poll-prediction/internal/domain"
	"github.com/gadroo/poll-prediction/internal/live"
	"github.com/prometheus/client_golang/prometheus"
)

var allStates = []live.State{live.StateIdle, live.StateConnecting, live.StateOpen, live.StateClosed}

// SubscriptionMetrics holds Prometheus metrics for live subscriptions. It
// implements live.Observer.
type SubscriptionMetrics struct {
	State              *prometheus.GaugeVec
	ReconnectsTotal    *prometheus.CounterVec
	ReconnectDelay     prometheus.Histogram
	GiveUpsTotal       *prometheus.CounterVec
	MessagesReceived   *prometheus.CounterVec
	FramesDroppedTotal *prometheus.CounterVec
}

// NewSubscriptionMetrics creates and registers subscription metrics on the given registry.
func NewSubscriptionMetrics(reg prometheus.Registerer) *SubscriptionMetrics {
	m := &SubscriptionMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "state",
			Help:      "Current subscription state (1 for the active state), by identifier.",
		}, []string{"identifier", "state"}),
		ReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "reconnects_scheduled_total",
			Help:      "Total number of automatic reconnects scheduled, by identifier.",
		}, []string{"identifier"}),
		ReconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay of scheduled reconnects in seconds.",
			Buckets:   []float64{0.1, 1, 2, 4, 8, 15, 30},
		}),
		GiveUpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "give_ups_total",
			Help:      "Total number of times reconnecting stopped after max attempts, by identifier.",
		}, []string{"identifier"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "messages_received_total",
			Help:      "Total number of parsed live messages, by type.",
		}, []string{"type"}),
		FramesDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "frames_dropped_total",
			Help:      "Total number of malformed frames dropped, by identifier.",
		}, []string{"identifier"}),
	}

	reg.MustRegister(m.State, m.ReconnectsTotal, m.ReconnectDelay, m.GiveUpsTotal, m.MessagesReceived, m.FramesDroppedTotal)
	return m
}

func (m *SubscriptionMetrics) StateChanged(identifier string, state live.State) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(identifier, s.String()).Set(v)
	}
}

func (m *SubscriptionMetrics) ReconnectScheduled(identifier string, _ int, delay time.Duration) {
	m.ReconnectsTotal.WithLabelValues(identifier).Inc()
	m.ReconnectDelay.Observe(delay.Seconds())
}

func (m *SubscriptionMetrics) GaveUp(identifier string) {
	m.GiveUpsTotal.WithLabelValues(identifier).Inc()
}

func (m *SubscriptionMetrics) MessageReceived(_ string, messageType domain.MessageType) {
	m.MessagesReceived.WithLabelValues(knownType(messageType)).Inc()
}

func (m *SubscriptionMetrics) FrameDropped(identifier string) {
	m.FramesDroppedTotal.WithLabelValues(identifier).Inc()
}

// knownType bounds label cardinality: unmodelled types share one label.
func knownType(t domain.MessageType) string {
	switch t {
	case domain.TypeVoteUpdate, domain.TypeBookmarkUpdate, domain.TypePollDeleted,
		domain.TypeCommentAdded, domain.TypeCommentDeleted, domain.TypePong:
		return string(t)
	default:
		return "unknown"
	}
}
