// Package metrics defines the sinks that receive fleet operation metrics.
// Sinks like PromSink and InfluxSink record operation outcomes, completed
// rides and closed attendance sessions, and can be combined with
// NewMultiSink. The factory helpers return a MultiSink automatically when
// multiple sinks are configured.
package metrics
