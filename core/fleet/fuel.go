package fleet

import (
	"context"
	"fmt"

	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/core/keylock"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/store"
)

// FuelLog records refuelling per driver.
type FuelLog struct {
	rt *runtime
}

// Record stores a fuel entry. Drivers record for themselves, an admin must
// name the driver and is kept as AdminID. The driver must exist.
func (f *FuelLog) Record(ctx context.Context, p model.Principal, sub model.FuelSubmission) (model.FuelEntry, error) {
	if sub.DriverID == "" && p.Role == model.RoleDriver {
		sub.DriverID = p.ID
	}
	var keys []string
	if sub.DriverID != "" {
		keys = append(keys, keylock.DriverKey(sub.DriverID))
	}
	var entry model.FuelEntry
	err := f.rt.mutate(ctx, "fuel.record", p, keys, func(tx *store.Tx, c *change) error {
		switch {
		case p.Role == model.RoleDriver && !p.IsDriver(sub.DriverID):
			return forbidden(p, "record fuel for driver "+sub.DriverID)
		case p.Role != model.RoleDriver && !p.IsAdmin():
			return forbidden(p, "record fuel")
		case sub.DriverID == "":
			return fmt.Errorf("fuel entry needs a driver: %w", model.ErrInvalidArgument)
		}
		if err := sub.Validate(); err != nil {
			return err
		}
		if _, err := tx.Driver(ctx, sub.DriverID); err != nil {
			return err
		}
		entry = model.FuelEntry{
			ID:       f.rt.newID(),
			DriverID: sub.DriverID,
			Amount:   sub.Amount,
			Cost:     sub.Cost,
			Location: sub.Location,
			Date:     c.at,
			AddedBy:  p.Role,
		}
		if p.IsAdmin() {
			entry.AdminID = p.ID
		}
		if err := tx.PutFuelEntry(ctx, entry); err != nil {
			return err
		}
		c.emit(events.Event{
			Type:     events.FuelRecorded,
			Subject:  entry.ID,
			DriverID: entry.DriverID,
			Data:     map[string]any{"amount": entry.Amount, "cost": entry.Cost},
		}, "", "recorded")
		return nil
	})
	return entry, err
}

// List returns the fuel entries of driverID, or of every driver when driverID
// is empty and p is an admin. Drivers only see their own.
func (f *FuelLog) List(ctx context.Context, p model.Principal, driverID string) ([]model.FuelEntry, error) {
	switch {
	case p.IsAdmin():
	case p.Role == model.RoleDriver && (driverID == "" || driverID == p.ID):
		driverID = p.ID
	default:
		return nil, forbidden(p, "list fuel entries")
	}
	var out []model.FuelEntry
	err := f.rt.read(ctx, "fuel.list", func(tx *store.Tx) error {
		var err error
		out, err = tx.FuelEntries(ctx, driverID)
		return err
	})
	return out, err
}
