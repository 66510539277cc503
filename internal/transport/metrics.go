package transport

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haierbridge_transport_requests_total",
			Help: "Outbound HTTP requests issued through the rate-limited transport",
		},
	)
	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haierbridge_transport_retries_total",
			Help: "Transient transport failures that were retried",
		},
	)
	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haierbridge_transport_rate_limited_total",
			Help: "429 responses observed from the cloud",
		},
	)
)

// MetricsCollectors exposes the shared transport collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		requestsTotal,
		retriesTotal,
		rateLimitedTotal,
	}
}
