package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	connectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haierbridge_realtime_connects_total",
			Help: "Successful socket connections",
		},
	)
	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haierbridge_realtime_reconnects_total",
			Help: "Reconnect attempts scheduled after a socket drop",
		},
	)
	commandsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haierbridge_realtime_commands_total",
			Help: "Property-write commands sent over the socket",
		},
	)
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haierbridge_realtime_messages_total",
			Help: "Inbound socket messages by discriminant",
		},
		[]string{"discriminant"},
	)
	connectedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "haierbridge_realtime_connected",
			Help: "Socket connection state (1=connected)",
		},
	)
)

// MetricsCollectors returns collectors for the realtime module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		connectsTotal,
		reconnectsTotal,
		commandsTotal,
		messagesTotal,
		connectedGauge,
	}
}
