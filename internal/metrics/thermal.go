package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var socTemperature = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "arducam",
	Subsystem: "soc",
	Name:      "temperature_celsius",
	Help:      "SoC thermal zone temperature",
}, []string{"zone"})

// SetSoCTemperature publishes one thermal zone reading.
func SetSoCTemperature(zone string, celsius float64) {
	socTemperature.WithLabelValues(zone).Set(celsius)
}

// DeleteSoCTemperature removes a zone that disappeared.
func DeleteSoCTemperature(zone string) {
	socTemperature.DeleteLabelValues(zone)
}
