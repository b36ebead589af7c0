package fleet

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationsTotal     *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	lockTimeouts        *prometheus.CounterVec
	attendanceAnomalies prometheus.Counter
	readRetries         prometheus.Counter
	eventsDropped       prometheus.Counter
)

func newDropCounter() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_events_dropped_total",
		Help: "Committed events a bus subscriber missed because its buffer was full",
	})
}

func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.CounterVec, prometheus.Counter, prometheus.Counter) {
	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_operations_total",
			Help: "Engine operations by outcome (ok or error kind)",
		},
		[]string{"operation", "outcome"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_operation_duration_seconds",
			Help:    "Engine operation latency including lock wait",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	timeouts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_lock_timeouts_total",
			Help: "Lock acquisitions that exceeded the bounded wait",
		},
		[]string{"scope"},
	)
	anomalies := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_attendance_anomalies_total",
			Help: "Online flag and attendance session disagreements detected",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_read_retries_total",
			Help: "Read transactions retried after a storage failure",
		},
	)
	return ops, dur, timeouts, anomalies, retries
}

func init() {
	operationsTotal, operationDuration, lockTimeouts, attendanceAnomalies, readRetries = newCollectors()
	eventsDropped = newDropCounter()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers engine metrics on reg, or on
// prometheus.DefaultRegisterer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(operationsTotal, operationDuration, lockTimeouts, attendanceAnomalies, readRetries, eventsDropped)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when it is not nil.
func ResetMetrics(reg prometheus.Registerer) {
	operationsTotal, operationDuration, lockTimeouts, attendanceAnomalies, readRetries = newCollectors()
	eventsDropped = newDropCounter()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
