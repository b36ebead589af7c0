package metrics

import "time"

// OperationEvent describes one engine operation and its outcome. Outcome is
// "ok" or the error kind returned to the caller.
type OperationEvent struct {
	Operation string
	Outcome   string
	DriverID  string
	RideID    string
	Duration  time.Duration
	Time      time.Time
}

// MetricsSink records engine operations for observability purposes.
type MetricsSink interface {
	RecordOperation(ev OperationEvent) error
}

// RideCompletionEvent captures a completed ride.
type RideCompletionEvent struct {
	RideID      string
	DriverID    string
	DistanceKm  float64
	DurationMin int
	Time        time.Time
}

// RideCompletionRecorder records completed rides.
type RideCompletionRecorder interface {
	RecordRideCompletion(ev RideCompletionEvent) error
}

// SessionEvent captures a closed attendance session.
type SessionEvent struct {
	DriverID string
	Hours    float64
	Time     time.Time
}

// SessionRecorder records closed attendance sessions.
type SessionRecorder interface {
	RecordSession(ev SessionEvent) error
}

// AvailabilityEvent is emitted when a driver goes online or offline.
type AvailabilityEvent struct {
	DriverID string
	Online   bool
	Time     time.Time
}

// AvailabilityRecorder records availability changes.
type AvailabilityRecorder interface {
	RecordAvailability(ev AvailabilityEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordOperation(OperationEvent) error           { return nil }
func (NopSink) RecordRideCompletion(RideCompletionEvent) error { return nil }
func (NopSink) RecordSession(SessionEvent) error               { return nil }
func (NopSink) RecordAvailability(AvailabilityEvent) error     { return nil }

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// Close releases every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// RecordOperation forwards the event to all sinks, returning the first error.
func (m *MultiSink) RecordOperation(ev OperationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordOperation(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordRideCompletion forwards to sinks implementing RideCompletionRecorder.
func (m *MultiSink) RecordRideCompletion(ev RideCompletionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RideCompletionRecorder); ok {
			if err := rec.RecordRideCompletion(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSession forwards to sinks implementing SessionRecorder.
func (m *MultiSink) RecordSession(ev SessionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SessionRecorder); ok {
			if err := rec.RecordSession(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordAvailability forwards to sinks implementing AvailabilityRecorder.
func (m *MultiSink) RecordAvailability(ev AvailabilityEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(AvailabilityRecorder); ok {
			if err := rec.RecordAvailability(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
