package metrics

import "github.com/prometheus/client_golang/prometheus"

// APIMetrics holds Prometheus metrics for REST calls to the poll API.
type APIMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewAPIMetrics creates and registers poll API metrics on the given registry.
func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	m := &APIMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of poll API requests, by operation and result.",
		}, []string{"operation", "result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of poll API operations including retries, in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration)
	return m
}
