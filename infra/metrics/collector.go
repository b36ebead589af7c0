package metrics

import (
	"context"

	"github.com/kilianp07/ridefleet/core/events"
	coremetrics "github.com/kilianp07/ridefleet/core/metrics"
	"github.com/kilianp07/ridefleet/infra/logger"
	"github.com/kilianp07/ridefleet/internal/eventbus"
)

// StartEventCollector subscribes to the fleet bus and forwards completed
// rides, closed sessions and availability changes to the sink recorders it
// implements. It stops when ctx is canceled or the bus closes. The returned
// channel is closed once the collector has exited.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.Event], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := collect(ev, sink); err != nil {
					log.Warnf("metrics collector %s: %v", ev.Type, err)
				}
			}
		}
	}()
	return done
}

func collect(ev events.Event, sink coremetrics.MetricsSink) error {
	switch ev.Type {
	case events.RideCompleted:
		if r, ok := sink.(coremetrics.RideCompletionRecorder); ok {
			return r.RecordRideCompletion(coremetrics.RideCompletionEvent{
				RideID:      ev.RideID,
				DriverID:    ev.DriverID,
				DistanceKm:  number(ev.Data["distance_km"]),
				DurationMin: int(number(ev.Data["duration_min"])),
				Time:        ev.Time,
			})
		}
	case events.AttendanceClosed:
		if r, ok := sink.(coremetrics.SessionRecorder); ok {
			return r.RecordSession(coremetrics.SessionEvent{DriverID: ev.DriverID, Hours: number(ev.Data["total_hours"]), Time: ev.Time})
		}
	case events.DriverOnline, events.DriverOffline, events.DriverDeactivated:
		if r, ok := sink.(coremetrics.AvailabilityRecorder); ok {
			return r.RecordAvailability(coremetrics.AvailabilityEvent{DriverID: ev.DriverID, Online: ev.Type == events.DriverOnline, Time: ev.Time})
		}
	}
	return nil
}

// number reads numeric event data whether it was built in-process or
// decoded from JSON.
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
