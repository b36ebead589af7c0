// Package store defines the transactional record store the fleet engine
// persists through. Backends only move opaque records; Tx layers the typed
// entity accessors on top.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNoRecord is returned by RecordTx.Get when no record matches.
var ErrNoRecord = errors.New("store: no record")

// Kind names a record collection.
type Kind string

const (
	KindDriver     Kind = "driver"
	KindPassenger  Kind = "passenger"
	KindRide       Kind = "ride"
	KindOdometer   Kind = "odometer_entry"
	KindAttendance Kind = "attendance_session"
	KindLeave      Kind = "leave_request"
	KindFuel       Kind = "fuel_entry"
)

// Record is one stored entity. The indexed columns mirror fields of the JSON
// body so backends can filter without decoding it.
type Record struct {
	Kind        Kind
	ID          string
	DriverID    string
	RideID      string
	PassengerID string
	Status      string
	CreatedAt   time.Time
	Body        []byte
}

// Query selects records of one kind. Empty fields match everything; Statuses
// matches any of the listed values. Results are ordered by CreatedAt then ID.
type Query struct {
	Kind        Kind
	DriverID    string
	RideID      string
	PassengerID string
	Statuses    []string
}

// Match reports whether rec satisfies q.
func (q Query) Match(rec Record) bool {
	if rec.Kind != q.Kind {
		return false
	}
	if q.DriverID != "" && rec.DriverID != q.DriverID {
		return false
	}
	if q.RideID != "" && rec.RideID != q.RideID {
		return false
	}
	if q.PassengerID != "" && rec.PassengerID != q.PassengerID {
		return false
	}
	if len(q.Statuses) == 0 {
		return true
	}
	for _, s := range q.Statuses {
		if rec.Status == s {
			return true
		}
	}
	return false
}

// RecordTx is the view of the store inside one transaction. Reads observe the
// transaction's own writes.
type RecordTx interface {
	Get(ctx context.Context, kind Kind, id string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Find(ctx context.Context, q Query) ([]Record, error)
}

// Backend runs functions inside transactions. Update commits every Put made by
// fn when fn returns nil and discards them otherwise. View must not write.
type Backend interface {
	Update(ctx context.Context, fn func(RecordTx) error) error
	View(ctx context.Context, fn func(RecordTx) error) error
	Close() error
}

// Store wraps a Backend with typed transactions.
type Store struct {
	backend Backend
}

// New returns a Store over b.
func New(b Backend) *Store { return &Store{backend: b} }

// Update runs fn in a read-write transaction.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	return s.backend.Update(ctx, func(rt RecordTx) error { return fn(&Tx{rt: rt}) })
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	return s.backend.View(ctx, func(rt RecordTx) error { return fn(&Tx{rt: rt}) })
}

// Close closes the backend.
func (s *Store) Close() error { return s.backend.Close() }
