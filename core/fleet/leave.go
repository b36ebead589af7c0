package fleet

import (
	"context"
	"fmt"

	"github.com/kilianp07/ridefleet/core/events"
	"github.com/kilianp07/ridefleet/core/keylock"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/store"
)

// LeaveWorkflow handles driver leave requests: a driver submits, an admin
// reviews once.
type LeaveWorkflow struct {
	rt *runtime
}

// Submit creates a pending leave request. Drivers submit for themselves, an
// admin must name the driver.
func (l *LeaveWorkflow) Submit(ctx context.Context, p model.Principal, sub model.LeaveSubmission) (model.LeaveRequest, error) {
	id := l.rt.newID()
	var req model.LeaveRequest
	err := l.rt.mutate(ctx, "leave.submit", p, []string{keylock.LeaveKey(id)}, func(tx *store.Tx, c *change) error {
		switch p.Role {
		case model.RoleDriver:
			if sub.DriverID != "" && sub.DriverID != p.ID {
				return forbidden(p, "submit leave for driver "+sub.DriverID)
			}
			sub.DriverID = p.ID
		case model.RoleAdmin:
			if sub.DriverID == "" {
				return fmt.Errorf("leave request needs a driver: %w", model.ErrInvalidArgument)
			}
		default:
			return forbidden(p, "submit leave")
		}
		if err := sub.Validate(); err != nil {
			return err
		}
		if _, err := tx.Driver(ctx, sub.DriverID); err != nil {
			return err
		}
		req = model.LeaveRequest{
			ID:          id,
			DriverID:    sub.DriverID,
			StartDate:   sub.StartDate,
			EndDate:     sub.EndDate,
			Reason:      sub.Reason,
			Status:      model.LeavePending,
			RequestedAt: c.at,
		}
		if err := tx.PutLeave(ctx, req); err != nil {
			return err
		}
		c.emit(events.Event{Type: events.LeaveSubmitted, Subject: id, DriverID: req.DriverID}, "", string(model.LeavePending))
		return nil
	})
	return req, err
}

// Review approves or rejects a pending request. Admin only; a reviewed
// request cannot be reviewed again.
func (l *LeaveWorkflow) Review(ctx context.Context, p model.Principal, id, decision, comments string) (model.LeaveRequest, error) {
	var req model.LeaveRequest
	err := l.rt.mutate(ctx, "leave.review", p, []string{keylock.LeaveKey(id)}, func(tx *store.Tx, c *change) error {
		if !p.IsAdmin() {
			return forbidden(p, "review leave")
		}
		status, err := model.ParseLeaveDecision(decision)
		if err != nil {
			return err
		}
		if req, err = tx.Leave(ctx, id); err != nil {
			return err
		}
		if req.Status != model.LeavePending {
			return fmt.Errorf("leave %s already %s: %w", id, req.Status, model.ErrInvalidTransition)
		}
		at := c.at
		req.Status = status
		req.ReviewedAt = &at
		req.ReviewedBy = p.ID
		req.Comments = comments
		if err := tx.PutLeave(ctx, req); err != nil {
			return err
		}
		c.emit(events.Event{Type: events.LeaveReviewed, Subject: id, DriverID: req.DriverID, Data: map[string]any{"comments": comments}},
			string(model.LeavePending), string(status))
		return nil
	})
	return req, err
}

// Get returns one request. Drivers may only read their own.
func (l *LeaveWorkflow) Get(ctx context.Context, p model.Principal, id string) (model.LeaveRequest, error) {
	if !p.IsAdmin() && p.Role != model.RoleDriver {
		return model.LeaveRequest{}, forbidden(p, "read leave")
	}
	var req model.LeaveRequest
	err := l.rt.read(ctx, "leave.get", func(tx *store.Tx) error {
		var err error
		req, err = tx.Leave(ctx, id)
		return err
	})
	if err != nil {
		return model.LeaveRequest{}, err
	}
	if !p.IsAdmin() && !p.IsDriver(req.DriverID) {
		return model.LeaveRequest{}, forbidden(p, "read leave "+id)
	}
	return req, nil
}

// List returns requests matching f. Drivers only see their own.
func (l *LeaveWorkflow) List(ctx context.Context, p model.Principal, f model.LeaveFilter) ([]model.LeaveRequest, error) {
	switch p.Role {
	case model.RoleAdmin:
	case model.RoleDriver:
		if f.DriverID != "" && f.DriverID != p.ID {
			return nil, forbidden(p, "list leave of driver "+f.DriverID)
		}
		f.DriverID = p.ID
	default:
		return nil, forbidden(p, "list leave")
	}
	var out []model.LeaveRequest
	err := l.rt.read(ctx, "leave.list", func(tx *store.Tx) error {
		var err error
		out, err = tx.Leaves(ctx, f)
		return err
	})
	return out, err
}
