// Package fleet implements the ride lifecycle and the driver resources it
// coordinates: availability, attendance sessions, the odometer ledger and
// leave requests.
//
// Every mutation acquires its per-key locks (ride keys before driver keys),
// runs its checks and writes in a single store transaction and, once
// committed, appends an audit record, publishes a domain event and records
// metrics. Rejected operations leave every record unchanged.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/ridefleet/core/audit"
	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/core/keylock"
	"github.com/kilianp07/ridefleet/core/logger"
	"github.com/kilianp07/ridefleet/core/metrics"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/monitoring"
	"github.com/kilianp07/ridefleet/core/store"
	"github.com/kilianp07/ridefleet/internal/eventbus"
)

// Clock returns the current time.
type Clock func() time.Time

// Engine bundles the fleet components over one shared runtime.
type Engine struct {
	Rides      *RideLifecycle
	Drivers    *DriverRegistry
	Passengers *PassengerRegistry
	Odometer   *OdometerLedger
	Attendance *AttendanceTracker
	Leave      *LeaveWorkflow
	Fuel       *FuelLog

	rt *runtime
}

// Option customizes an Engine.
type Option func(*runtime)

// WithClock overrides the time source.
func WithClock(c Clock) Option { return func(rt *runtime) { rt.now = c } }

// WithIDGenerator overrides record id generation.
func WithIDGenerator(f func() string) Option { return func(rt *runtime) { rt.newID = f } }

// WithEventBus publishes committed changes on bus.
func WithEventBus(bus *eventbus.TypedBus[events.Event]) Option {
	return func(rt *runtime) { rt.bus = bus }
}

// WithAuditStore appends an audit record per committed change.
func WithAuditStore(s audit.Store) Option { return func(rt *runtime) { rt.audit = s } }

// WithMetricsSink forwards operation outcomes to sink.
func WithMetricsSink(sink metrics.MetricsSink) Option {
	return func(rt *runtime) { rt.sink = sink }
}

// New builds an Engine persisting to st and serializing through locks.
func New(st *store.Store, locks keylock.Locker, log logger.Logger, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, errors.New("fleet: store is required")
	}
	if locks == nil {
		return nil, errors.New("fleet: locker is required")
	}
	rt := &runtime{
		store: st,
		locks: locks,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
		sink:  metrics.NopSink{},
	}
	if rt.log == nil {
		rt.log = nopLogger{}
	}
	for _, o := range opts {
		o(rt)
	}
	att := &AttendanceTracker{rt: rt}
	odo := &OdometerLedger{rt: rt}
	e := &Engine{
		Attendance: att,
		Odometer:   odo,
		Drivers:    &DriverRegistry{rt: rt, att: att},
		Passengers: &PassengerRegistry{rt: rt},
		Rides:      &RideLifecycle{rt: rt, odo: odo},
		Leave:      &LeaveWorkflow{rt: rt},
		Fuel:       &FuelLog{rt: rt},
		rt:         rt,
	}
	return e, nil
}

// Store returns the underlying store for read-side consumers.
func (e *Engine) Store() *store.Store { return e.rt.store }

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

type runtime struct {
	store *store.Store
	locks keylock.Locker
	log   logger.Logger
	now   Clock
	newID func() string
	bus   *eventbus.TypedBus[events.Event]
	audit audit.Store
	sink  metrics.MetricsSink
}

// change collects what a transaction committed. It is reset on every attempt.
type change struct {
	op      string
	p       model.Principal
	at      time.Time
	records []audit.Record
	events  []events.Event
}

// emit queues ev for publication and an audit record describing the
// transition from -> to.
func (c *change) emit(ev events.Event, from, to string) {
	ev.Actor = c.p.ID
	ev.Time = c.at
	c.events = append(c.events, ev)
	c.records = append(c.records, audit.Record{
		Timestamp: c.at,
		Operation: c.op,
		Actor:     c.p.ID,
		Role:      c.p.Role,
		Subject:   ev.Subject,
		DriverID:  ev.DriverID,
		RideID:    ev.RideID,
		From:      from,
		To:        to,
		Details:   ev.Data,
	})
}

// mutate runs fn under keys in one transaction and tracks the outcome.
func (rt *runtime) mutate(ctx context.Context, op string, p model.Principal, keys []string, fn func(*store.Tx, *change) error) error {
	return rt.track(op, func() error {
		return rt.withLocks(ctx, op, keys, func() error {
			return rt.update(ctx, op, p, fn)
		})
	})
}

// track records the operation's outcome and latency.
func (rt *runtime) track(op string, fn func() error) error {
	began := time.Now()
	err := fn()
	outcome := "ok"
	if err != nil {
		outcome = model.Kind(err)
	}
	elapsed := time.Since(began)
	operationsTotal.WithLabelValues(op, outcome).Inc()
	operationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if serr := rt.sink.RecordOperation(metrics.OperationEvent{Operation: op, Outcome: outcome, Duration: elapsed, Time: rt.now()}); serr != nil {
		rt.log.Warnf("metrics sink: %v", serr)
	}
	return err
}

// withLocks holds keys, in order, for the duration of fn.
func (rt *runtime) withLocks(ctx context.Context, op string, keys []string, fn func() error) error {
	unlock, err := keylock.LockAll(ctx, rt.locks, keys...)
	if err != nil {
		if errors.Is(err, model.ErrTimeout) {
			lockTimeouts.WithLabelValues(op).Inc()
			rt.log.Warnf("%s: %v", op, err)
			return fmt.Errorf("%s: %w", op, err)
		}
		if model.IsDomainError(err) || isContextErr(err) {
			return err
		}
		return rt.unavailable(op, err)
	}
	defer unlock()
	return fn()
}

// update runs fn in a read-write transaction and publishes the change once
// it is committed. Storage failures are never retried.
func (rt *runtime) update(ctx context.Context, op string, p model.Principal, fn func(*store.Tx, *change) error) error {
	var c *change
	err := rt.store.Update(ctx, func(tx *store.Tx) error {
		c = &change{op: op, p: p, at: rt.now()}
		return fn(tx, c)
	})
	if err != nil {
		if model.IsDomainError(err) || isContextErr(err) {
			return err
		}
		return rt.unavailable(op, err)
	}
	rt.publish(ctx, c)
	return nil
}

// read runs fn in a read-only transaction, retrying once on storage failure.
func (rt *runtime) read(ctx context.Context, op string, fn func(*store.Tx) error) error {
	err := rt.store.View(ctx, fn)
	if err == nil || model.IsDomainError(err) || isContextErr(err) {
		return err
	}
	readRetries.Inc()
	rt.log.Warnf("%s: read failed, retrying: %v", op, err)
	err = rt.store.View(ctx, fn)
	if err == nil || model.IsDomainError(err) || isContextErr(err) {
		return err
	}
	return rt.unavailable(op, err)
}

func (rt *runtime) unavailable(op string, err error) error {
	monitoring.CaptureException(err, map[string]string{"module": "fleet", "operation": op})
	rt.log.Errorf("%s: storage failure: %v", op, err)
	return fmt.Errorf("%s: %w: %w", op, model.ErrUnavailable, err)
}

func (rt *runtime) publish(ctx context.Context, c *change) {
	if c == nil {
		return
	}
	if rt.audit != nil {
		for _, rec := range c.records {
			if err := rt.audit.Append(ctx, rec); err != nil {
				rt.log.Errorf("audit append %s: %v", rec.Operation, err)
			}
		}
	}
	for _, ev := range c.events {
		rt.log.Infof("%s %s by %s", ev.Type, ev.Subject, ev.Actor)
		if rt.bus == nil {
			continue
		}
		if missed := rt.bus.Publish(ev); missed > 0 {
			eventsDropped.Add(float64(missed))
			rt.log.Warnf("%s %s: %d subscriber(s) missed the event", ev.Type, ev.Subject, missed)
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func forbidden(p model.Principal, action string) error {
	return fmt.Errorf("%s %q may not %s: %w", p.Role, p.ID, action, model.ErrForbidden)
}
