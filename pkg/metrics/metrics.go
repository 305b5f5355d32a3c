// Package metrics holds the Prometheus collectors of the accessory.
package metrics

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const ApplicationName = "solarlink"

var BinaryName = ApplicationName

func init() {
	BinaryName = filepath.Base(os.Args[0])
}

var constLabels = prometheus.Labels{"service": ApplicationName, "component": BinaryName}

var AuthAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name:        "solarlink_auth_attempts_total",
		Help:        "authenticated accesses by operation (read/write) and outcome",
		ConstLabels: constLabels,
	},
	[]string{"operation", "outcome"},
)

var CredentialTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name:        "solarlink_credential_transitions_total",
		Help:        "credential store transitions by kind (setup/invite/confirm/revoke/purge) and result",
		ConstLabels: constLabels,
	},
	[]string{"transition", "result"},
)

var Credentials = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name:        "solarlink_credentials",
		Help:        "roster size by state (confirmed/pending)",
		ConstLabels: constLabels,
	},
	[]string{"state"},
)

var LinkMessages = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name:        "solarlink_link_messages_total",
		Help:        "link messages by direction (in/out) and type",
		ConstLabels: constLabels,
	},
	[]string{"direction", "type"},
)

var ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
	Name:        "solarlink_active_connections",
	Help:        "open link connections",
	ConstLabels: constLabels,
})

var DeviceQueryDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:        "solarlink_device_query_duration",
		Help:        "inverter query duration (in ms) by command and result",
		ConstLabels: constLabels,
		Buckets:     []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
	},
	[]string{"command", "result"},
)

var BatteryLevel = prometheus.NewGauge(prometheus.GaugeOpts{
	Name:        "solarlink_battery_level_percent",
	Help:        "battery capacity reported by the inverter",
	ConstLabels: constLabels,
})

var BatteryVoltage = prometheus.NewGauge(prometheus.GaugeOpts{
	Name:        "solarlink_battery_voltage",
	Help:        "battery voltage reported by the inverter",
	ConstLabels: constLabels,
})

var OutputVoltage = prometheus.NewGauge(prometheus.GaugeOpts{
	Name:        "solarlink_output_voltage",
	Help:        "AC output voltage reported by the inverter",
	ConstLabels: constLabels,
})

var registerOnce sync.Once

// Register adds every collector to the default registry. It is safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AuthAttempts,
			CredentialTransitions,
			Credentials,
			LinkMessages,
			ActiveConnections,
			DeviceQueryDuration,
			BatteryLevel,
			BatteryVoltage,
			OutputVoltage,
		)
	})
}

// Result labels an error as ok or error.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
