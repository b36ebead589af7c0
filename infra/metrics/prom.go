package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/ridefleet/core/metrics"
)

// PromSink exposes engine operations, completed rides, attendance sessions
// and driver availability as Prometheus metrics.
type PromSink struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	rideDistance prometheus.Histogram
	rideDuration prometheus.Histogram
	sessionHours prometheus.Histogram
	online       *prometheus.GaugeVec
}

// NewPromSink registers the sink's collectors on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the sink's collectors on reg, reusing
// collectors that are already registered. A nil reg means the default
// registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridefleet_operations_total",
			Help: "Engine operations reported to the sink",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ridefleet_operation_latency_seconds",
			Help:    "Engine operation latency reported to the sink",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		rideDistance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ridefleet_ride_distance_km",
			Help:    "Distance of completed rides",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		rideDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ridefleet_ride_duration_minutes",
			Help:    "Duration of completed rides",
			Buckets: []float64{5, 10, 15, 30, 45, 60, 90, 120},
		}),
		sessionHours: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ridefleet_attendance_session_hours",
			Help:    "Length of closed attendance sessions",
			Buckets: []float64{0.5, 1, 2, 4, 6, 8, 10, 12},
		}),
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ridefleet_driver_online",
			Help: "1 while the driver is online",
		}, []string{"driver_id"}),
	}
	var err error
	if s.operations, err = register(reg, s.operations); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.rideDistance, err = register(reg, s.rideDistance); err != nil {
		return nil, err
	}
	if s.rideDuration, err = register(reg, s.rideDuration); err != nil {
		return nil, err
	}
	if s.sessionHours, err = register(reg, s.sessionHours); err != nil {
		return nil, err
	}
	if s.online, err = register(reg, s.online); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg or returns the collector registered before it.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordOperation counts the operation and observes its latency.
func (s *PromSink) RecordOperation(ev coremetrics.OperationEvent) error {
	s.operations.WithLabelValues(ev.Operation, ev.Outcome).Inc()
	s.latency.WithLabelValues(ev.Operation).Observe(ev.Duration.Seconds())
	return nil
}

// RecordRideCompletion observes distance and duration of a completed ride.
func (s *PromSink) RecordRideCompletion(ev coremetrics.RideCompletionEvent) error {
	s.rideDistance.Observe(ev.DistanceKm)
	s.rideDuration.Observe(float64(ev.DurationMin))
	return nil
}

// RecordSession observes the length of a closed session.
func (s *PromSink) RecordSession(ev coremetrics.SessionEvent) error {
	s.sessionHours.Observe(ev.Hours)
	return nil
}

// RecordAvailability sets the driver's online gauge.
func (s *PromSink) RecordAvailability(ev coremetrics.AvailabilityEvent) error {
	v := 0.0
	if ev.Online {
		v = 1
	}
	s.online.WithLabelValues(ev.DriverID).Set(v)
	return nil
}
