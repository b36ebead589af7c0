package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ridefleet/core/audit"
	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/core/keylock"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/monitoring"
	"github.com/kilianp07/ridefleet/core/store"
	"github.com/kilianp07/ridefleet/internal/eventbus"
)

var (
	admin   = model.Principal{ID: "admin-1", Role: model.RoleAdmin}
	errBoom = errors.New("disk on fire")
	origin  = model.Location{Latitude: 0, Longitude: 0, Address: "Depot"}
	dest    = model.Location{Latitude: 1, Longitude: 1, Address: "Airport"}
)

func driver(id string) model.Principal    { return model.Principal{ID: id, Role: model.RoleDriver} }
func passenger(id string) model.Principal { return model.Principal{ID: id, Role: model.RolePassenger} }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// flakyBackend injects storage failures into a memory backend.
type flakyBackend struct {
	store.Backend
	mu           sync.Mutex
	updateArmed  bool
	updateSkip   int
	viewFailures int
}

// failUpdateAfter lets skip updates through and fails the next one.
func (b *flakyBackend) failUpdateAfter(skip int) {
	b.mu.Lock()
	b.updateArmed, b.updateSkip = true, skip
	b.mu.Unlock()
}

func (b *flakyBackend) failViews(n int) {
	b.mu.Lock()
	b.viewFailures = n
	b.mu.Unlock()
}

func (b *flakyBackend) Update(ctx context.Context, fn func(store.RecordTx) error) error {
	b.mu.Lock()
	fail := false
	if b.updateArmed {
		if b.updateSkip == 0 {
			b.updateArmed, fail = false, true
		} else {
			b.updateSkip--
		}
	}
	b.mu.Unlock()
	if fail {
		return errBoom
	}
	return b.Backend.Update(ctx, fn)
}

func (b *flakyBackend) View(ctx context.Context, fn func(store.RecordTx) error) error {
	b.mu.Lock()
	fail := b.viewFailures > 0
	if fail {
		b.viewFailures--
	}
	b.mu.Unlock()
	if fail {
		return errBoom
	}
	return b.Backend.View(ctx, fn)
}

type recordingMonitor struct {
	mu   sync.Mutex
	errs []error
}

func (m *recordingMonitor) CaptureException(err error, _ map[string]string) {
	m.mu.Lock()
	m.errs = append(m.errs, err)
	m.mu.Unlock()
}
func (m *recordingMonitor) RecoverPanic(any)    {}
func (m *recordingMonitor) Flush(time.Duration) {}

func (m *recordingMonitor) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errs)
}

type fixture struct {
	e       *Engine
	clock   *fakeClock
	backend *flakyBackend
	locks   *keylock.MemoryLocker
	audit   *audit.MemoryStore
	bus     *eventbus.TypedBus[events.Event]
}

// newFixture builds an engine over a memory store holding drivers d1 and d2
// (both online, odometer 0) and passengers p1 and p2.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	f := &fixture{
		clock:   &fakeClock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
		backend: &flakyBackend{Backend: store.NewMemoryBackend()},
		locks:   keylock.NewMemoryLocker(200 * time.Millisecond),
		audit:   audit.NewMemoryStore(),
		bus:     eventbus.NewTyped[events.Event](),
	}
	var n atomic.Int64
	e, err := New(store.New(f.backend), f.locks, nil,
		WithClock(f.clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", n.Add(1)) }),
		WithAuditStore(f.audit),
		WithEventBus(f.bus),
	)
	require.NoError(t, err)
	f.e = e
	_, err = e.Bootstrap(context.Background(), Seed{
		Drivers:    []model.Driver{{ID: "d1", Name: "Dana"}, {ID: "d2", Name: "Eli"}},
		Passengers: []model.Passenger{{ID: "p1", Name: "Pat"}, {ID: "p2", Name: "Quinn"}},
		Online:     []string{"d1", "d2"},
	})
	require.NoError(t, err)
	t.Cleanup(f.bus.Close)
	return f
}

func (f *fixture) requested(t *testing.T) model.Ride {
	t.Helper()
	r, err := f.e.Rides.Request(context.Background(), passenger("p1"), "p1", origin, dest)
	require.NoError(t, err)
	return r
}

func (f *fixture) assigned(t *testing.T, driverID string) model.Ride {
	t.Helper()
	r := f.requested(t)
	r, err := f.e.Rides.Assign(context.Background(), admin, r.ID, driverID)
	require.NoError(t, err)
	return r
}

func (f *fixture) started(t *testing.T, driverID string, km int64) model.Ride {
	t.Helper()
	r := f.assigned(t, driverID)
	r, err := f.e.Rides.Start(context.Background(), driver(driverID), r.ID, driverID, km)
	require.NoError(t, err)
	return r
}

func (f *fixture) driver(t *testing.T, id string) model.Driver {
	t.Helper()
	d, err := f.e.Drivers.Get(context.Background(), id)
	require.NoError(t, err)
	return d
}

func TestNew_RequiresStoreAndLocker(t *testing.T) {
	_, err := New(nil, keylock.NewMemoryLocker(time.Second), nil)
	assert.Error(t, err)
	_, err = New(store.New(store.NewMemoryBackend()), nil, nil)
	assert.Error(t, err)
}

func TestMutation_StorageFailureIsUnavailable(t *testing.T) {
	f := newFixture(t)
	mon := &recordingMonitor{}
	monitoring.Init(mon)
	t.Cleanup(func() { monitoring.Init(monitoring.NopMonitor{}) })

	f.backend.failUpdateAfter(0)
	_, err := f.e.Rides.Request(context.Background(), admin, "p1", origin, dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnavailable)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, "unavailable", model.Kind(err))
	assert.Equal(t, 1, mon.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(operationsTotal.WithLabelValues("ride.request", "unavailable")))

	rides, err := f.e.Rides.List(context.Background(), admin, model.RideFilter{})
	require.NoError(t, err)
	assert.Empty(t, rides)
}

func TestRead_RetriedOnce(t *testing.T) {
	f := newFixture(t)
	r := f.requested(t)

	f.backend.failViews(1)
	got, err := f.e.Rides.Get(context.Background(), admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(readRetries))

	f.backend.failViews(2)
	_, err = f.e.Rides.Get(context.Background(), admin, r.ID)
	assert.ErrorIs(t, err, model.ErrUnavailable)
}

func TestMutation_LockTimeout(t *testing.T) {
	f := newFixture(t)
	unlock, err := f.locks.Lock(context.Background(), keylock.DriverKey("d1"))
	require.NoError(t, err)
	defer unlock()

	_, err = f.e.Drivers.SetOnline(context.Background(), driver("d1"), "d1", false)
	require.ErrorIs(t, err, model.ErrTimeout)
	assert.Equal(t, 1.0, testutil.ToFloat64(lockTimeouts.WithLabelValues("driver.set_online")))
	assert.True(t, f.driver(t, "d1").Online)
}

func TestMutation_AuditAndEvents(t *testing.T) {
	f := newFixture(t)
	sub := f.bus.Subscribe()
	r := f.requested(t)

	select {
	case ev := <-sub:
		assert.Equal(t, events.RideRequested, ev.Type)
		assert.Equal(t, r.ID, ev.Subject)
		assert.Equal(t, "p1", ev.Actor)
		assert.Equal(t, f.clock.Now(), ev.Time)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	recs, err := f.audit.Query(context.Background(), audit.Query{RideID: r.ID})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ride.request", recs[0].Operation)
	assert.Equal(t, string(model.RideRequested), recs[0].To)
	assert.Equal(t, model.RolePassenger, recs[0].Role)
}

func TestMutation_RejectedWritesNothing(t *testing.T) {
	f := newFixture(t)
	before, err := f.audit.Query(context.Background(), audit.Query{})
	require.NoError(t, err)

	_, err = f.e.Rides.Request(context.Background(), passenger("p1"), "p2", origin, dest)
	require.ErrorIs(t, err, model.ErrForbidden)
	assert.Equal(t, 1.0, testutil.ToFloat64(operationsTotal.WithLabelValues("ride.request", "forbidden")))

	after, err := f.audit.Query(context.Background(), audit.Query{})
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}
