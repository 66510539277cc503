package directory

import "github.com/prometheus/client_golang/prometheus"

var (
	fetchFailureTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haierbridge_directory_fetch_failure_total",
			Help: "Device list fetches that fell back to the cache",
		},
	)
	deviceCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "haierbridge_directory_devices",
			Help: "Devices in the last validated list",
		},
	)
)

// MetricsCollectors returns collectors for the directory module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{fetchFailureTotal, deviceCount}
}
