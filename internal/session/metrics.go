package session

import "github.com/prometheus/client_golang/prometheus"

var (
	authSuccessTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haierbridge_session_auth_success_total",
			Help: "Successful full logins",
		},
	)
	refreshSuccessTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haierbridge_session_refresh_success_total",
			Help: "Successful token refreshes",
		},
	)
	refreshFailureTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haierbridge_session_refresh_failure_total",
			Help: "Failed token refreshes",
		},
	)
	tokenValid = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "haierbridge_session_token_valid",
			Help: "Access token validity (1=valid, 0=invalid)",
		},
	)
)

// MetricsCollectors returns collectors for the session module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		authSuccessTotal,
		refreshSuccessTotal,
		refreshFailureTotal,
		tokenValid,
	}
}
