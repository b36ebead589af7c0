package metrics

import "github.com/kilianp07/ridefleet/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddress serves /metrics when non-empty, e.g. ":9100".
	PrometheusAddress string `json:"prometheus_address"`
}
