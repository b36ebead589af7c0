package fleet

import (
	"context"
	"sort"

	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/store"
)

// AttendanceTracker derives work sessions from driver availability. Sessions
// never overlap: a driver has at most one active session.
type AttendanceTracker struct {
	rt *runtime
}

// sync brings the sessions of driverID in line with its online flag. It runs
// under the driver lock held by the caller. Failures are logged but never
// returned. changed tells whether the flag just flipped.
func (a *AttendanceTracker) sync(ctx context.Context, p model.Principal, driverID string, online, changed bool) {
	err := a.rt.update(ctx, "attendance.sync", p, func(tx *store.Tx, c *change) error {
		active, err := tx.Sessions(ctx, model.SessionFilter{DriverID: driverID, Status: model.SessionActive})
		if err != nil {
			return err
		}
		switch {
		case online && len(active) == 0:
			if !changed {
				a.anomaly("driver %s online without an active session, opening one", driverID)
			}
			return a.openTx(ctx, tx, c, driverID)
		case online:
			if changed {
				a.anomaly("driver %s went online with active session %s", driverID, active[0].ID)
			}
			if len(active) > 1 {
				a.anomaly("driver %s has %d active sessions, closing all but the newest", driverID, len(active))
				return a.closeTx(ctx, tx, c, active[:len(active)-1])
			}
			return nil
		case len(active) == 0:
			if changed {
				a.anomaly("driver %s went offline without an active session", driverID)
			}
			return nil
		default:
			if !changed {
				a.anomaly("driver %s offline with %d active session(s), closing", driverID, len(active))
			}
			return a.closeTx(ctx, tx, c, active)
		}
	})
	if err != nil {
		a.rt.log.Errorf("attendance bookkeeping for driver %s: %v", driverID, err)
	}
}

func (a *AttendanceTracker) anomaly(format string, args ...any) {
	attendanceAnomalies.Inc()
	a.rt.log.Warnf(format, args...)
}

func (a *AttendanceTracker) openTx(ctx context.Context, tx *store.Tx, c *change, driverID string) error {
	s := model.AttendanceSession{
		ID:        a.rt.newID(),
		DriverID:  driverID,
		Date:      model.Day(c.at),
		StartTime: c.at,
		Status:    model.SessionActive,
	}
	if err := tx.PutSession(ctx, s); err != nil {
		return err
	}
	c.emit(events.Event{Type: events.AttendanceOpened, Subject: s.ID, DriverID: driverID}, "", string(model.SessionActive))
	return nil
}

func (a *AttendanceTracker) closeTx(ctx context.Context, tx *store.Tx, c *change, sessions []model.AttendanceSession) error {
	for _, s := range sessions {
		s.Close(c.at)
		if err := tx.PutSession(ctx, s); err != nil {
			return err
		}
		c.emit(events.Event{
			Type:     events.AttendanceClosed,
			Subject:  s.ID,
			DriverID: s.DriverID,
			Data:     map[string]any{"total_hours": *s.TotalHours},
		}, string(model.SessionActive), string(model.SessionCompleted))
	}
	return nil
}

// List returns sessions matching f, newest first. Drivers only see their own.
func (a *AttendanceTracker) List(ctx context.Context, p model.Principal, f model.SessionFilter) ([]model.AttendanceSession, error) {
	switch {
	case p.IsAdmin():
	case p.Role == model.RoleDriver && (f.DriverID == "" || f.DriverID == p.ID):
		f.DriverID = p.ID
	default:
		return nil, forbidden(p, "list attendance")
	}
	var out []model.AttendanceSession
	err := a.rt.read(ctx, "attendance.list", func(tx *store.Tx) error {
		var err error
		out, err = tx.Sessions(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

// Active returns the active session of driverID, or nil when offline.
func (a *AttendanceTracker) Active(ctx context.Context, p model.Principal, driverID string) (*model.AttendanceSession, error) {
	if !p.IsAdmin() && !p.IsDriver(driverID) {
		return nil, forbidden(p, "read attendance of driver "+driverID)
	}
	var out *model.AttendanceSession
	err := a.rt.read(ctx, "attendance.active", func(tx *store.Tx) error {
		out = nil
		active, err := tx.Sessions(ctx, model.SessionFilter{DriverID: driverID, Status: model.SessionActive})
		if err != nil {
			return err
		}
		if len(active) > 0 {
			s := active[len(active)-1]
			out = &s
		}
		return nil
	})
	return out, err
}
