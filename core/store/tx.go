package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kilianp07/ridefleet/core/model"
)

// Tx exposes typed entity accessors inside a transaction. Missing entities
// are reported as model.ErrNotFound.
type Tx struct {
	rt RecordTx
}

func get[T any](ctx context.Context, tx *Tx, kind Kind, id string) (T, error) {
	var v T
	rec, err := tx.rt.Get(ctx, kind, id)
	if errors.Is(err, ErrNoRecord) {
		return v, fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
	}
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(rec.Body, &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return v, nil
}

func find[T any](ctx context.Context, tx *Tx, q Query) ([]T, error) {
	recs, err := tx.rt.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := json.Unmarshal(rec.Body, &v); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", rec.Kind, rec.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func put(ctx context.Context, tx *Tx, rec Record, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", rec.Kind, rec.ID, err)
	}
	rec.Body = body
	return tx.rt.Put(ctx, rec)
}

// Driver loads a driver by id.
func (tx *Tx) Driver(ctx context.Context, id string) (model.Driver, error) {
	return get[model.Driver](ctx, tx, KindDriver, id)
}

// PutDriver inserts or replaces d.
func (tx *Tx) PutDriver(ctx context.Context, d model.Driver) error {
	return put(ctx, tx, Record{Kind: KindDriver, ID: d.ID, DriverID: d.ID, CreatedAt: d.CreatedAt}, d)
}

// Drivers lists every driver.
func (tx *Tx) Drivers(ctx context.Context) ([]model.Driver, error) {
	return find[model.Driver](ctx, tx, Query{Kind: KindDriver})
}

// Passenger loads a passenger by id.
func (tx *Tx) Passenger(ctx context.Context, id string) (model.Passenger, error) {
	return get[model.Passenger](ctx, tx, KindPassenger, id)
}

// PutPassenger inserts or replaces p.
func (tx *Tx) PutPassenger(ctx context.Context, p model.Passenger) error {
	return put(ctx, tx, Record{Kind: KindPassenger, ID: p.ID, PassengerID: p.ID, CreatedAt: p.CreatedAt}, p)
}

// Passengers lists every passenger.
func (tx *Tx) Passengers(ctx context.Context) ([]model.Passenger, error) {
	return find[model.Passenger](ctx, tx, Query{Kind: KindPassenger})
}

// Ride loads a ride by id.
func (tx *Tx) Ride(ctx context.Context, id string) (model.Ride, error) {
	return get[model.Ride](ctx, tx, KindRide, id)
}

// PutRide inserts or replaces r.
func (tx *Tx) PutRide(ctx context.Context, r model.Ride) error {
	return put(ctx, tx, Record{
		Kind:        KindRide,
		ID:          r.ID,
		DriverID:    r.DriverID,
		RideID:      r.ID,
		PassengerID: r.PassengerID,
		Status:      string(r.Status),
		CreatedAt:   r.RequestedAt,
	}, r)
}

// Rides lists rides matching f in request order.
func (tx *Tx) Rides(ctx context.Context, f model.RideFilter) ([]model.Ride, error) {
	q := Query{Kind: KindRide, DriverID: f.DriverID, PassengerID: f.PassengerID}
	for _, s := range f.Statuses {
		q.Statuses = append(q.Statuses, string(s))
	}
	return find[model.Ride](ctx, tx, q)
}

// Entry loads a kilometer entry by id.
func (tx *Tx) Entry(ctx context.Context, id string) (model.KilometerEntry, error) {
	return get[model.KilometerEntry](ctx, tx, KindOdometer, id)
}

// PutEntry inserts or replaces e.
func (tx *Tx) PutEntry(ctx context.Context, e model.KilometerEntry) error {
	return put(ctx, tx, Record{
		Kind:      KindOdometer,
		ID:        e.ID,
		DriverID:  e.DriverID,
		RideID:    e.RideID,
		Status:    string(e.Status),
		CreatedAt: e.Date,
	}, e)
}

// Entries lists kilometer entries matching f in creation order.
func (tx *Tx) Entries(ctx context.Context, f model.EntryFilter) ([]model.KilometerEntry, error) {
	q := Query{Kind: KindOdometer, DriverID: f.DriverID, RideID: f.RideID}
	if f.Status != "" {
		q.Statuses = []string{string(f.Status)}
	}
	return find[model.KilometerEntry](ctx, tx, q)
}

// Session loads an attendance session by id.
func (tx *Tx) Session(ctx context.Context, id string) (model.AttendanceSession, error) {
	return get[model.AttendanceSession](ctx, tx, KindAttendance, id)
}

// PutSession inserts or replaces s.
func (tx *Tx) PutSession(ctx context.Context, s model.AttendanceSession) error {
	return put(ctx, tx, Record{
		Kind:      KindAttendance,
		ID:        s.ID,
		DriverID:  s.DriverID,
		Status:    string(s.Status),
		CreatedAt: s.StartTime,
	}, s)
}

// Sessions lists attendance sessions matching f in start order.
func (tx *Tx) Sessions(ctx context.Context, f model.SessionFilter) ([]model.AttendanceSession, error) {
	q := Query{Kind: KindAttendance, DriverID: f.DriverID}
	if f.Status != "" {
		q.Statuses = []string{string(f.Status)}
	}
	all, err := find[model.AttendanceSession](ctx, tx, q)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Leave loads a leave request by id.
func (tx *Tx) Leave(ctx context.Context, id string) (model.LeaveRequest, error) {
	return get[model.LeaveRequest](ctx, tx, KindLeave, id)
}

// PutLeave inserts or replaces l.
func (tx *Tx) PutLeave(ctx context.Context, l model.LeaveRequest) error {
	return put(ctx, tx, Record{
		Kind:      KindLeave,
		ID:        l.ID,
		DriverID:  l.DriverID,
		Status:    string(l.Status),
		CreatedAt: l.RequestedAt,
	}, l)
}

// Leaves lists leave requests matching f in submission order.
func (tx *Tx) Leaves(ctx context.Context, f model.LeaveFilter) ([]model.LeaveRequest, error) {
	q := Query{Kind: KindLeave, DriverID: f.DriverID}
	if f.Status != "" {
		q.Statuses = []string{string(f.Status)}
	}
	return find[model.LeaveRequest](ctx, tx, q)
}

// FuelEntry loads a fuel entry by id.
func (tx *Tx) FuelEntry(ctx context.Context, id string) (model.FuelEntry, error) {
	return get[model.FuelEntry](ctx, tx, KindFuel, id)
}

// PutFuelEntry inserts or replaces e.
func (tx *Tx) PutFuelEntry(ctx context.Context, e model.FuelEntry) error {
	return put(ctx, tx, Record{Kind: KindFuel, ID: e.ID, DriverID: e.DriverID, CreatedAt: e.Date}, e)
}

// FuelEntries lists the fuel entries of driverID, or all when empty, in
// date order.
func (tx *Tx) FuelEntries(ctx context.Context, driverID string) ([]model.FuelEntry, error) {
	return find[model.FuelEntry](ctx, tx, Query{Kind: KindFuel, DriverID: driverID})
}
