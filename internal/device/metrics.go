package device

import "github.com/prometheus/client_golang/prometheus"

var (
	devicesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haierbridge_devices_created_total",
			Help: "State engines created, by device kind",
		},
		[]string{"kind"},
	)
	validationRejectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haierbridge_device_validation_rejects_total",
			Help: "Ingested values rejected by range or shape checks",
		},
	)
)

// MetricsCollectors returns collectors for the device module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		devicesCreated,
		validationRejectsTotal,
	}
}
