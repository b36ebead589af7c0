package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/core/keylock"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/store"
)

const defaultRating = 5.0

// DriverRegistry owns driver records and their availability.
type DriverRegistry struct {
	rt  *runtime
	att *AttendanceTracker
}

// Register creates an active, offline driver. Admin only.
func (d *DriverRegistry) Register(ctx context.Context, p model.Principal, drv model.Driver) (model.Driver, error) {
	var out model.Driver
	err := d.rt.mutate(ctx, "driver.register", p, []string{keylock.DriverKey(drv.ID)}, func(tx *store.Tx, c *change) error {
		var err error
		out, err = d.registerTx(ctx, tx, c, p, drv)
		return err
	})
	return out, err
}

func (d *DriverRegistry) registerTx(ctx context.Context, tx *store.Tx, c *change, p model.Principal, drv model.Driver) (model.Driver, error) {
	if !p.IsAdmin() {
		return model.Driver{}, forbidden(p, "register drivers")
	}
	if err := drv.Validate(); err != nil {
		return model.Driver{}, err
	}
	if _, err := tx.Driver(ctx, drv.ID); err == nil {
		return model.Driver{}, fmt.Errorf("driver %s already registered: %w", drv.ID, model.ErrInvalidArgument)
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.Driver{}, err
	}
	drv.Active = true
	drv.Online = false
	drv.TotalRides = max(drv.TotalRides, 0)
	if drv.Rating == 0 {
		drv.Rating = defaultRating
	}
	drv.CreatedAt = c.at
	drv.LastStatusChange = c.at
	if err := tx.PutDriver(ctx, drv); err != nil {
		return model.Driver{}, err
	}
	c.emit(events.Event{Type: events.DriverRegistered, Subject: drv.ID, DriverID: drv.ID}, "", "active")
	return drv, nil
}

// Get returns a driver by id.
func (d *DriverRegistry) Get(ctx context.Context, id string) (model.Driver, error) {
	var out model.Driver
	err := d.rt.read(ctx, "driver.get", func(tx *store.Tx) error {
		var err error
		out, err = tx.Driver(ctx, id)
		return err
	})
	return out, err
}

// List returns every driver.
func (d *DriverRegistry) List(ctx context.Context) ([]model.Driver, error) {
	var out []model.Driver
	err := d.rt.read(ctx, "driver.list", func(tx *store.Tx) error {
		var err error
		out, err = tx.Drivers(ctx)
		return err
	})
	return out, err
}

// SetOnline sets the availability flag of driverID. The flag commits on its
// own; attendance sessions are reconciled afterwards under the same driver
// lock and a failure there does not fail the call.
func (d *DriverRegistry) SetOnline(ctx context.Context, p model.Principal, driverID string, online bool) (model.Driver, error) {
	const op = "driver.set_online"
	var out model.Driver
	err := d.rt.track(op, func() error {
		return d.rt.withLocks(ctx, op, []string{keylock.DriverKey(driverID)}, func() error {
			var changed bool
			err := d.rt.update(ctx, op, p, func(tx *store.Tx, c *change) error {
				if !p.IsAdmin() && !p.IsDriver(driverID) {
					return forbidden(p, "change availability of driver "+driverID)
				}
				drv, err := tx.Driver(ctx, driverID)
				if err != nil {
					return err
				}
				if online && !drv.Active {
					return fmt.Errorf("driver %s is deactivated: %w", driverID, model.ErrDriverUnavailable)
				}
				out = drv
				changed = drv.Online != online
				if !changed {
					return nil
				}
				from, to, typ := "offline", "online", events.DriverOnline
				if !online {
					from, to, typ = to, from, events.DriverOffline
				}
				drv.Online = online
				drv.LastStatusChange = c.at
				if err := tx.PutDriver(ctx, drv); err != nil {
					return err
				}
				out = drv
				c.emit(events.Event{Type: typ, Subject: driverID, DriverID: driverID}, from, to)
				return nil
			})
			if err != nil {
				return err
			}
			d.att.sync(ctx, p, driverID, online, changed)
			return nil
		})
	})
	return out, err
}

// Deactivate marks driverID inactive and offline and closes its session. A
// driver committed to a ride cannot be deactivated. Admin only.
func (d *DriverRegistry) Deactivate(ctx context.Context, p model.Principal, driverID string) (model.Driver, error) {
	var out model.Driver
	err := d.rt.mutate(ctx, "driver.deactivate", p, []string{keylock.DriverKey(driverID)}, func(tx *store.Tx, c *change) error {
		if !p.IsAdmin() {
			return forbidden(p, "deactivate drivers")
		}
		drv, err := tx.Driver(ctx, driverID)
		if err != nil {
			return err
		}
		if !drv.Active {
			out = drv
			return nil
		}
		if err := ensureUncommitted(ctx, tx, driverID); err != nil {
			return err
		}
		active, err := tx.Sessions(ctx, model.SessionFilter{DriverID: driverID, Status: model.SessionActive})
		if err != nil {
			return err
		}
		if err := d.att.closeTx(ctx, tx, c, active); err != nil {
			return err
		}
		drv.Active = false
		drv.Online = false
		drv.LastStatusChange = c.at
		if err := tx.PutDriver(ctx, drv); err != nil {
			return err
		}
		out = drv
		c.emit(events.Event{Type: events.DriverDeactivated, Subject: driverID, DriverID: driverID}, "active", "inactive")
		return nil
	})
	return out, err
}

// IsAvailableForAssignment reports whether driverID exists, is active and is
// online.
func (d *DriverRegistry) IsAvailableForAssignment(ctx context.Context, driverID string) (bool, error) {
	drv, err := d.Get(ctx, driverID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return drv.Active && drv.Online, nil
}

// CurrentOdometer returns the last recorded odometer reading of driverID.
func (d *DriverRegistry) CurrentOdometer(ctx context.Context, driverID string) (int64, error) {
	drv, err := d.Get(ctx, driverID)
	if err != nil {
		return 0, err
	}
	return drv.CurrentKm, nil
}

// ensureUncommitted fails when driverID holds an assigned or in-progress ride.
func ensureUncommitted(ctx context.Context, tx *store.Tx, driverID string) error {
	rides, err := tx.Rides(ctx, model.RideFilter{
		DriverID: driverID,
		Statuses: []model.RideStatus{model.RideAssigned, model.RideInProgress},
	})
	if err != nil {
		return err
	}
	if len(rides) > 0 {
		return fmt.Errorf("driver %s is committed to ride %s: %w", driverID, rides[0].ID, model.ErrDriverUnavailable)
	}
	return nil
}

// PassengerRegistry owns passenger records.
type PassengerRegistry struct {
	rt *runtime
}

// Register creates a passenger. Admin only.
func (r *PassengerRegistry) Register(ctx context.Context, p model.Principal, pass model.Passenger) (model.Passenger, error) {
	var out model.Passenger
	err := r.rt.mutate(ctx, "passenger.register", p, []string{keylock.PassengerKey(pass.ID)}, func(tx *store.Tx, c *change) error {
		var err error
		out, err = r.registerTx(ctx, tx, c, p, pass)
		return err
	})
	return out, err
}

func (r *PassengerRegistry) registerTx(ctx context.Context, tx *store.Tx, c *change, p model.Principal, pass model.Passenger) (model.Passenger, error) {
	if !p.IsAdmin() {
		return model.Passenger{}, forbidden(p, "register passengers")
	}
	if err := pass.Validate(); err != nil {
		return model.Passenger{}, err
	}
	if _, err := tx.Passenger(ctx, pass.ID); err == nil {
		return model.Passenger{}, fmt.Errorf("passenger %s already registered: %w", pass.ID, model.ErrInvalidArgument)
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.Passenger{}, err
	}
	if pass.Rating == 0 {
		pass.Rating = defaultRating
	}
	pass.CreatedAt = c.at
	if err := tx.PutPassenger(ctx, pass); err != nil {
		return model.Passenger{}, err
	}
	c.emit(events.Event{Type: events.PassengerRegistered, Subject: pass.ID}, "", "registered")
	return pass, nil
}

// Get returns a passenger. Passengers may only read themselves, drivers may
// not read passengers.
func (r *PassengerRegistry) Get(ctx context.Context, p model.Principal, id string) (model.Passenger, error) {
	if !p.IsAdmin() && !p.IsPassenger(id) {
		return model.Passenger{}, forbidden(p, "read passenger "+id)
	}
	var out model.Passenger
	err := r.rt.read(ctx, "passenger.get", func(tx *store.Tx) error {
		var err error
		out, err = tx.Passenger(ctx, id)
		return err
	})
	return out, err
}

// List returns every passenger. Admin only.
func (r *PassengerRegistry) List(ctx context.Context, p model.Principal) ([]model.Passenger, error) {
	if !p.IsAdmin() {
		return nil, forbidden(p, "list passengers")
	}
	var out []model.Passenger
	err := r.rt.read(ctx, "passenger.list", func(tx *store.Tx) error {
		var err error
		out, err = tx.Passengers(ctx)
		return err
	})
	return out, err
}
