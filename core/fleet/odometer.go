package fleet

import (
	"context"
	"fmt"

	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/core/keylock"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/store"
)

// OdometerLedger records start and end odometer readings per driver. A driver
// has at most one started entry, whether it is tied to a ride or not.
type OdometerLedger struct {
	rt *runtime
}

// OpenEntry starts a kilometer entry for driverID, optionally tied to rideID.
// A ride entry needs a ride assigned to driverID that has no started entry.
func (o *OdometerLedger) OpenEntry(ctx context.Context, p model.Principal, driverID string, startKm int64, rideID string) (model.KilometerEntry, error) {
	var entry model.KilometerEntry
	err := o.rt.mutate(ctx, "odometer.open", p, []string{keylock.DriverKey(driverID)}, func(tx *store.Tx, c *change) error {
		if !p.IsAdmin() && !p.IsDriver(driverID) {
			return forbidden(p, "open an odometer entry for driver "+driverID)
		}
		driver, err := tx.Driver(ctx, driverID)
		if err != nil {
			return err
		}
		if rideID != "" {
			if err := checkRideForEntry(ctx, tx, rideID, driverID); err != nil {
				return err
			}
		}
		entry, err = o.openTx(ctx, tx, c, &driver, startKm, rideID)
		return err
	})
	return entry, err
}

func checkRideForEntry(ctx context.Context, tx *store.Tx, rideID, driverID string) error {
	ride, err := tx.Ride(ctx, rideID)
	if err != nil {
		return err
	}
	switch ride.DriverID {
	case driverID:
	case "":
		return fmt.Errorf("ride %s has no driver: %w", rideID, model.ErrInvalidArgument)
	default:
		return fmt.Errorf("ride %s is assigned to driver %s, not %s: %w", rideID, ride.DriverID, driverID, model.ErrForbidden)
	}
	open, err := tx.Entries(ctx, model.EntryFilter{RideID: rideID, Status: model.EntryStarted})
	if err != nil {
		return err
	}
	if len(open) > 0 {
		return fmt.Errorf("ride %s has open entry %s: %w", rideID, open[0].ID, model.ErrConflictingOdometerEntry)
	}
	return nil
}

// openTx creates a started entry and moves the driver's odometer to startKm.
func (o *OdometerLedger) openTx(ctx context.Context, tx *store.Tx, c *change, driver *model.Driver, startKm int64, rideID string) (model.KilometerEntry, error) {
	if startKm < 0 {
		return model.KilometerEntry{}, fmt.Errorf("start reading %d is negative: %w", startKm, model.ErrInvalidOdometerReading)
	}
	open, err := tx.Entries(ctx, model.EntryFilter{DriverID: driver.ID, Status: model.EntryStarted})
	if err != nil {
		return model.KilometerEntry{}, err
	}
	if len(open) > 0 {
		return model.KilometerEntry{}, fmt.Errorf("driver %s has open entry %s: %w", driver.ID, open[0].ID, model.ErrConflictingOdometerEntry)
	}
	if startKm < driver.CurrentKm {
		return model.KilometerEntry{}, fmt.Errorf("start reading %d below current odometer %d of driver %s: %w",
			startKm, driver.CurrentKm, driver.ID, model.ErrInvalidOdometerReading)
	}
	entry := model.KilometerEntry{
		ID:       o.rt.newID(),
		DriverID: driver.ID,
		RideID:   rideID,
		StartKm:  startKm,
		Date:     c.at,
		Status:   model.EntryStarted,
	}
	if err := tx.PutEntry(ctx, entry); err != nil {
		return model.KilometerEntry{}, err
	}
	driver.CurrentKm = startKm
	if err := tx.PutDriver(ctx, *driver); err != nil {
		return model.KilometerEntry{}, err
	}
	c.emit(events.Event{
		Type:     events.OdometerOpened,
		Subject:  entry.ID,
		DriverID: driver.ID,
		RideID:   rideID,
		Data:     map[string]any{"start_km": startKm},
	}, "", string(model.EntryStarted))
	return entry, nil
}

// closeTx completes entry at endKm and writes the driver with its odometer
// moved to endKm.
func (o *OdometerLedger) closeTx(ctx context.Context, tx *store.Tx, c *change, entry *model.KilometerEntry, driver *model.Driver, endKm int64) error {
	if endKm < entry.StartKm {
		return fmt.Errorf("end reading %d below start reading %d of entry %s: %w",
			endKm, entry.StartKm, entry.ID, model.ErrInvalidOdometerReading)
	}
	at := c.at
	entry.EndKm = &endKm
	entry.CompletedAt = &at
	entry.Status = model.EntryCompleted
	if err := tx.PutEntry(ctx, *entry); err != nil {
		return err
	}
	driver.CurrentKm = endKm
	if err := tx.PutDriver(ctx, *driver); err != nil {
		return err
	}
	c.emit(events.Event{
		Type:     events.OdometerClosed,
		Subject:  entry.ID,
		DriverID: driver.ID,
		RideID:   entry.RideID,
		Data:     map[string]any{"start_km": entry.StartKm, "end_km": endKm, "distance_km": entry.Distance()},
	}, string(model.EntryStarted), string(model.EntryCompleted))
	return nil
}

// CloseEntry completes the started entry entryID.
func (o *OdometerLedger) CloseEntry(ctx context.Context, p model.Principal, entryID string, endKm int64) (model.KilometerEntry, error) {
	var driverID string
	err := o.rt.read(ctx, "odometer.close", func(tx *store.Tx) error {
		e, err := tx.Entry(ctx, entryID)
		driverID = e.DriverID
		return err
	})
	if err != nil {
		return model.KilometerEntry{}, err
	}
	return o.close(ctx, p, driverID, endKm, func(tx *store.Tx) (model.KilometerEntry, error) {
		return tx.Entry(ctx, entryID)
	})
}

// CloseEntryForRide completes the started entry the ride's driver holds for
// rideID.
func (o *OdometerLedger) CloseEntryForRide(ctx context.Context, p model.Principal, rideID string, endKm int64) (model.KilometerEntry, error) {
	var driverID string
	err := o.rt.read(ctx, "odometer.close", func(tx *store.Tx) error {
		ride, err := tx.Ride(ctx, rideID)
		driverID = ride.DriverID
		return err
	})
	if err != nil {
		return model.KilometerEntry{}, err
	}
	if driverID == "" {
		return model.KilometerEntry{}, fmt.Errorf("no open entry for ride %s: %w", rideID, model.ErrNotFound)
	}
	return o.close(ctx, p, driverID, endKm, func(tx *store.Tx) (model.KilometerEntry, error) {
		return openEntryForRide(ctx, tx, rideID, driverID)
	})
}

func (o *OdometerLedger) close(ctx context.Context, p model.Principal, driverID string, endKm int64, load func(*store.Tx) (model.KilometerEntry, error)) (model.KilometerEntry, error) {
	var entry model.KilometerEntry
	err := o.rt.mutate(ctx, "odometer.close", p, []string{keylock.DriverKey(driverID)}, func(tx *store.Tx, c *change) error {
		if !p.IsAdmin() && !p.IsDriver(driverID) {
			return forbidden(p, "close an odometer entry of driver "+driverID)
		}
		e, err := load(tx)
		if err != nil {
			return err
		}
		if e.Status != model.EntryStarted {
			return fmt.Errorf("entry %s is %s: %w", e.ID, e.Status, model.ErrNotFound)
		}
		driver, err := tx.Driver(ctx, driverID)
		if err != nil {
			return err
		}
		if err := o.closeTx(ctx, tx, c, &e, &driver, endKm); err != nil {
			return err
		}
		entry = e
		return nil
	})
	return entry, err
}

// openEntryForRide returns the started entry driverID holds for rideID.
func openEntryForRide(ctx context.Context, tx *store.Tx, rideID, driverID string) (model.KilometerEntry, error) {
	open, err := tx.Entries(ctx, model.EntryFilter{RideID: rideID, DriverID: driverID, Status: model.EntryStarted})
	if err != nil {
		return model.KilometerEntry{}, err
	}
	if len(open) == 0 {
		return model.KilometerEntry{}, fmt.Errorf("no open entry for ride %s: %w", rideID, model.ErrNotFound)
	}
	return open[0], nil
}

// ListByDriver returns entries of driverID, or of every driver when driverID
// is empty and p is an admin. Drivers only see their own entries.
func (o *OdometerLedger) ListByDriver(ctx context.Context, p model.Principal, driverID string) ([]model.KilometerEntry, error) {
	switch {
	case p.IsAdmin():
	case p.Role == model.RoleDriver && (driverID == "" || driverID == p.ID):
		driverID = p.ID
	default:
		return nil, forbidden(p, "list odometer entries")
	}
	var out []model.KilometerEntry
	err := o.rt.read(ctx, "odometer.list", func(tx *store.Tx) error {
		var err error
		out, err = tx.Entries(ctx, model.EntryFilter{DriverID: driverID})
		return err
	})
	return out, err
}
