package fleet

import (
	"context"
	"fmt"

	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/core/keylock"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/store"
)

// RideLifecycle drives rides through requested, assigned, in_progress and
// completed or cancelled. Every transition is checked against
// model.RideStatus.CanTransitionTo.
type RideLifecycle struct {
	rt  *runtime
	odo *OdometerLedger
}

// StatusChange is an admin status override. Fields beyond Status are the
// inputs of the typed operation the target maps to.
type StatusChange struct {
	Status            model.RideStatus `json:"status"`
	DriverID          string           `json:"driver_id,omitempty"`
	Km                *int64           `json:"km,omitempty"`
	ActualDurationMin *int             `json:"actual_duration_min,omitempty"`
}

// Request creates a ride in requested status for passengerID.
func (r *RideLifecycle) Request(ctx context.Context, p model.Principal, passengerID string, pickup, dropoff model.Location) (model.Ride, error) {
	id := r.rt.newID()
	var ride model.Ride
	err := r.rt.mutate(ctx, "ride.request", p, []string{keylock.RideKey(id)}, func(tx *store.Tx, c *change) error {
		var err error
		ride, err = r.requestTx(ctx, tx, c, p, id, passengerID, pickup, dropoff)
		return err
	})
	return ride, err
}

func (r *RideLifecycle) requestTx(ctx context.Context, tx *store.Tx, c *change, p model.Principal, id, passengerID string, pickup, dropoff model.Location) (model.Ride, error) {
	if !p.IsAdmin() && !p.IsPassenger(passengerID) {
		return model.Ride{}, forbidden(p, "request a ride for passenger "+passengerID)
	}
	if err := pickup.Validate(); err != nil {
		return model.Ride{}, fmt.Errorf("pickup: %w", err)
	}
	if err := dropoff.Validate(); err != nil {
		return model.Ride{}, fmt.Errorf("dropoff: %w", err)
	}
	if _, err := tx.Passenger(ctx, passengerID); err != nil {
		return model.Ride{}, err
	}
	ride := model.Ride{
		ID:          id,
		PassengerID: passengerID,
		Status:      model.RideRequested,
		Pickup:      pickup,
		Dropoff:     dropoff,
		RequestedAt: c.at,
	}
	if err := tx.PutRide(ctx, ride); err != nil {
		return model.Ride{}, err
	}
	c.emit(events.Event{Type: events.RideRequested, Subject: id, RideID: id, Data: map[string]any{"passenger_id": passengerID}},
		"", string(model.RideRequested))
	return ride, nil
}

// CreateAssigned requests and assigns a ride in one transaction. Admin only.
func (r *RideLifecycle) CreateAssigned(ctx context.Context, p model.Principal, passengerID, driverID string, pickup, dropoff model.Location) (model.Ride, error) {
	id := r.rt.newID()
	var ride model.Ride
	keys := []string{keylock.RideKey(id), keylock.DriverKey(driverID)}
	err := r.rt.mutate(ctx, "ride.create_assigned", p, keys, func(tx *store.Tx, c *change) error {
		if !p.IsAdmin() {
			return forbidden(p, "create assigned rides")
		}
		var err error
		if ride, err = r.requestTx(ctx, tx, c, p, id, passengerID, pickup, dropoff); err != nil {
			return err
		}
		return r.assignTx(ctx, tx, c, &ride, driverID)
	})
	return ride, err
}

// Assign gives a requested ride to driverID. Admin only. The driver must be
// active, online and not committed to another ride.
func (r *RideLifecycle) Assign(ctx context.Context, p model.Principal, rideID, driverID string) (model.Ride, error) {
	var ride model.Ride
	keys := []string{keylock.RideKey(rideID), keylock.DriverKey(driverID)}
	err := r.rt.mutate(ctx, "ride.assign", p, keys, func(tx *store.Tx, c *change) error {
		if !p.IsAdmin() {
			return forbidden(p, "assign rides")
		}
		var err error
		if ride, err = loadForTransition(ctx, tx, rideID, model.RideAssigned); err != nil {
			return err
		}
		return r.assignTx(ctx, tx, c, &ride, driverID)
	})
	return ride, err
}

func (r *RideLifecycle) assignTx(ctx context.Context, tx *store.Tx, c *change, ride *model.Ride, driverID string) error {
	drv, err := tx.Driver(ctx, driverID)
	if err != nil {
		return err
	}
	if !drv.Active || !drv.Online {
		return fmt.Errorf("driver %s is not active and online: %w", driverID, model.ErrDriverUnavailable)
	}
	if err := ensureUncommitted(ctx, tx, driverID); err != nil {
		return err
	}
	from := ride.Status
	at := c.at
	ride.DriverID = driverID
	ride.Status = model.RideAssigned
	ride.AssignedAt = &at
	if err := tx.PutRide(ctx, *ride); err != nil {
		return err
	}
	c.emit(events.Event{Type: events.RideAssigned, Subject: ride.ID, RideID: ride.ID, DriverID: driverID},
		string(from), string(model.RideAssigned))
	return nil
}

// Start picks up the passenger: it opens the ride's kilometer entry at
// startKm and moves the ride to in_progress.
func (r *RideLifecycle) Start(ctx context.Context, p model.Principal, rideID, driverID string, startKm int64) (model.Ride, error) {
	var ride model.Ride
	keys := []string{keylock.RideKey(rideID), keylock.DriverKey(driverID)}
	err := r.rt.mutate(ctx, "ride.start", p, keys, func(tx *store.Tx, c *change) error {
		var err error
		if ride, err = r.loadForDriver(ctx, tx, p, rideID, driverID, model.RideInProgress); err != nil {
			return err
		}
		drv, err := tx.Driver(ctx, driverID)
		if err != nil {
			return err
		}
		entry, err := r.odo.openTx(ctx, tx, c, &drv, startKm, rideID)
		if err != nil {
			return err
		}
		at := c.at
		ride.Status = model.RideInProgress
		ride.PickedUpAt = &at
		if err := tx.PutRide(ctx, ride); err != nil {
			return err
		}
		c.emit(events.Event{
			Type:     events.RideStarted,
			Subject:  rideID,
			RideID:   rideID,
			DriverID: driverID,
			Data:     map[string]any{"start_km": startKm, "entry_id": entry.ID},
		}, string(model.RideAssigned), string(model.RideInProgress))
		return nil
	})
	return ride, err
}

// Complete drops off the passenger: it closes the ride's kilometer entry at
// endKm, credits the driver and records distance and duration. When
// actualDurationMin is nil the duration is derived from the pickup time.
func (r *RideLifecycle) Complete(ctx context.Context, p model.Principal, rideID, driverID string, endKm int64, actualDurationMin *int) (model.Ride, error) {
	var ride model.Ride
	keys := []string{keylock.RideKey(rideID), keylock.DriverKey(driverID)}
	err := r.rt.mutate(ctx, "ride.complete", p, keys, func(tx *store.Tx, c *change) error {
		var err error
		if ride, err = r.loadForDriver(ctx, tx, p, rideID, driverID, model.RideCompleted); err != nil {
			return err
		}
		if actualDurationMin != nil && *actualDurationMin < 0 {
			return fmt.Errorf("negative duration %d: %w", *actualDurationMin, model.ErrInvalidArgument)
		}
		entry, err := openEntryForRide(ctx, tx, rideID, driverID)
		if err != nil {
			return err
		}
		drv, err := tx.Driver(ctx, driverID)
		if err != nil {
			return err
		}
		drv.TotalRides++
		if err := r.odo.closeTx(ctx, tx, c, &entry, &drv, endKm); err != nil {
			return err
		}
		at := c.at
		ride.Status = model.RideCompleted
		ride.CompletedAt = &at
		ride.DistanceKm = float64(entry.Distance())
		ride.ActualDurationMin = actualDurationMin
		if ride.ActualDurationMin == nil && ride.PickedUpAt != nil {
			d := int(at.Sub(*ride.PickedUpAt).Minutes())
			ride.ActualDurationMin = &d
		}
		if err := tx.PutRide(ctx, ride); err != nil {
			return err
		}
		data := map[string]any{"distance_km": ride.DistanceKm, "end_km": endKm}
		if ride.ActualDurationMin != nil {
			data["duration_min"] = *ride.ActualDurationMin
		}
		c.emit(events.Event{Type: events.RideCompleted, Subject: rideID, RideID: rideID, DriverID: driverID, Data: data},
			string(model.RideInProgress), string(model.RideCompleted))
		return nil
	})
	return ride, err
}

// Cancel ends a non-terminal ride. The admin, the owning passenger or the
// assigned driver may cancel. An open kilometer entry of an in-progress ride
// is left started; CloseEntryForRide reconciles it.
func (r *RideLifecycle) Cancel(ctx context.Context, p model.Principal, rideID string) (model.Ride, error) {
	var ride model.Ride
	err := r.rt.mutate(ctx, "ride.cancel", p, []string{keylock.RideKey(rideID)}, func(tx *store.Tx, c *change) error {
		var err error
		if ride, err = tx.Ride(ctx, rideID); err != nil {
			return err
		}
		if !canSee(p, ride) {
			return forbidden(p, "cancel ride "+rideID)
		}
		if !ride.Status.CanTransitionTo(model.RideCancelled) {
			return fmt.Errorf("ride %s: %s -> %s: %w", rideID, ride.Status, model.RideCancelled, model.ErrInvalidTransition)
		}
		var data map[string]any
		if ride.Status == model.RideInProgress {
			if entry, err := openEntryForRide(ctx, tx, rideID, ride.DriverID); err == nil {
				data = map[string]any{"open_entry_id": entry.ID}
				r.rt.log.Warnf("ride %s cancelled in progress, odometer entry %s left open", rideID, entry.ID)
			}
		}
		from := ride.Status
		at := c.at
		ride.Status = model.RideCancelled
		ride.CancelledAt = &at
		if err := tx.PutRide(ctx, ride); err != nil {
			return err
		}
		c.emit(events.Event{Type: events.RideCancelled, Subject: rideID, RideID: rideID, DriverID: ride.DriverID, Data: data},
			string(from), string(model.RideCancelled))
		return nil
	})
	return ride, err
}

// SetStatus is the admin override. The target is checked against the
// transition table before the call is routed to the typed operation.
func (r *RideLifecycle) SetStatus(ctx context.Context, p model.Principal, rideID string, sc StatusChange) (model.Ride, error) {
	if !p.IsAdmin() {
		return model.Ride{}, forbidden(p, "override ride status")
	}
	current, err := r.Get(ctx, p, rideID)
	if err != nil {
		return model.Ride{}, err
	}
	if !current.Status.CanTransitionTo(sc.Status) {
		return model.Ride{}, fmt.Errorf("ride %s: %s -> %s: %w", rideID, current.Status, sc.Status, model.ErrInvalidTransition)
	}
	switch sc.Status {
	case model.RideAssigned:
		if sc.DriverID == "" {
			return model.Ride{}, fmt.Errorf("assignment requires a driver: %w", model.ErrInvalidArgument)
		}
		return r.Assign(ctx, p, rideID, sc.DriverID)
	case model.RideInProgress:
		if sc.Km == nil {
			return model.Ride{}, fmt.Errorf("start requires an odometer reading: %w", model.ErrInvalidArgument)
		}
		return r.Start(ctx, p, rideID, current.DriverID, *sc.Km)
	case model.RideCompleted:
		if sc.Km == nil {
			return model.Ride{}, fmt.Errorf("completion requires an odometer reading: %w", model.ErrInvalidArgument)
		}
		return r.Complete(ctx, p, rideID, current.DriverID, *sc.Km, sc.ActualDurationMin)
	case model.RideCancelled:
		return r.Cancel(ctx, p, rideID)
	}
	return model.Ride{}, fmt.Errorf("ride %s: unsupported target %q: %w", rideID, sc.Status, model.ErrInvalidTransition)
}

// Get returns a ride visible to p.
func (r *RideLifecycle) Get(ctx context.Context, p model.Principal, rideID string) (model.Ride, error) {
	var ride model.Ride
	err := r.rt.read(ctx, "ride.get", func(tx *store.Tx) error {
		var err error
		ride, err = tx.Ride(ctx, rideID)
		return err
	})
	if err != nil {
		return model.Ride{}, err
	}
	if !canSee(p, ride) {
		return model.Ride{}, forbidden(p, "read ride "+rideID)
	}
	return ride, nil
}

// List returns rides matching f in request order. Drivers and passengers are
// restricted to their own rides; asking for someone else's is forbidden.
func (r *RideLifecycle) List(ctx context.Context, p model.Principal, f model.RideFilter) ([]model.Ride, error) {
	switch p.Role {
	case model.RoleAdmin:
	case model.RoleDriver:
		if f.DriverID != "" && f.DriverID != p.ID {
			return nil, forbidden(p, "list rides of driver "+f.DriverID)
		}
		f.DriverID = p.ID
	case model.RolePassenger:
		if f.PassengerID != "" && f.PassengerID != p.ID {
			return nil, forbidden(p, "list rides of passenger "+f.PassengerID)
		}
		f.PassengerID = p.ID
	default:
		return nil, forbidden(p, "list rides")
	}
	var out []model.Ride
	err := r.rt.read(ctx, "ride.list", func(tx *store.Tx) error {
		var err error
		out, err = tx.Rides(ctx, f)
		return err
	})
	return out, err
}

// Pending returns rides waiting for assignment. Admin only.
func (r *RideLifecycle) Pending(ctx context.Context, p model.Principal) ([]model.Ride, error) {
	if !p.IsAdmin() {
		return nil, forbidden(p, "list pending rides")
	}
	return r.List(ctx, p, model.RideFilter{Statuses: []model.RideStatus{model.RideRequested}})
}

// AssignedTo returns the assigned and in-progress rides of driverID.
func (r *RideLifecycle) AssignedTo(ctx context.Context, p model.Principal, driverID string) ([]model.Ride, error) {
	return r.List(ctx, p, model.RideFilter{
		DriverID: driverID,
		Statuses: []model.RideStatus{model.RideAssigned, model.RideInProgress},
	})
}

// loadForTransition loads rideID and checks it may move to target.
func loadForTransition(ctx context.Context, tx *store.Tx, rideID string, target model.RideStatus) (model.Ride, error) {
	ride, err := tx.Ride(ctx, rideID)
	if err != nil {
		return model.Ride{}, err
	}
	if !ride.Status.CanTransitionTo(target) {
		return model.Ride{}, fmt.Errorf("ride %s: %s -> %s: %w", rideID, ride.Status, target, model.ErrInvalidTransition)
	}
	return ride, nil
}

// loadForDriver is loadForTransition plus the checks that p acts for
// driverID and that the ride is assigned to driverID.
func (r *RideLifecycle) loadForDriver(ctx context.Context, tx *store.Tx, p model.Principal, rideID, driverID string, target model.RideStatus) (model.Ride, error) {
	if !p.IsAdmin() && !p.IsDriver(driverID) {
		return model.Ride{}, forbidden(p, "act for driver "+driverID)
	}
	ride, err := loadForTransition(ctx, tx, rideID, target)
	if err != nil {
		return model.Ride{}, err
	}
	if ride.DriverID != driverID {
		return model.Ride{}, fmt.Errorf("ride %s is not assigned to driver %s: %w", rideID, driverID, model.ErrForbidden)
	}
	return ride, nil
}

func canSee(p model.Principal, ride model.Ride) bool {
	return p.IsAdmin() || p.IsPassenger(ride.PassengerID) || (ride.DriverID != "" && p.IsDriver(ride.DriverID))
}
