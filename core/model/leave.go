package model

import (
	"fmt"
	"strings"
	"time"
)

// LeaveStatus is the review state of a leave request.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// ParseLeaveDecision accepts only the two review outcomes.
func ParseLeaveDecision(s string) (LeaveStatus, error) {
	switch st := LeaveStatus(s); st {
	case LeaveApproved, LeaveRejected:
		return st, nil
	}
	return "", fmt.Errorf("leave decision %q: %w", s, ErrInvalidArgument)
}

// LeaveRequest is a driver's request for time off.
type LeaveRequest struct {
	ID          string      `json:"id"`
	DriverID    string      `json:"driver_id"`
	StartDate   time.Time   `json:"start_date"`
	EndDate     time.Time   `json:"end_date"`
	Reason      string      `json:"reason"`
	Status      LeaveStatus `json:"status"`
	RequestedAt time.Time   `json:"requested_at"`
	ReviewedAt  *time.Time  `json:"reviewed_at,omitempty"`
	ReviewedBy  string      `json:"reviewed_by,omitempty"`
	Comments    string      `json:"comments,omitempty"`
}

// LeaveSubmission holds the caller-provided fields of a new request.
type LeaveSubmission struct {
	DriverID  string    `json:"driver_id,omitempty"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Reason    string    `json:"reason"`
}

// Validate checks dates and reason.
func (s LeaveSubmission) Validate() error {
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return fmt.Errorf("leave dates required: %w", ErrInvalidArgument)
	}
	if s.EndDate.Before(s.StartDate) {
		return fmt.Errorf("leave ends before it starts: %w", ErrInvalidArgument)
	}
	if strings.TrimSpace(s.Reason) == "" {
		return fmt.Errorf("leave reason required: %w", ErrInvalidArgument)
	}
	return nil
}

// LeaveFilter narrows leave queries.
type LeaveFilter struct {
	DriverID string
	Status   LeaveStatus
}
