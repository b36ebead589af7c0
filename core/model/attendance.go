package model

import "time"

// SessionStatus is the state of an attendance session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// AttendanceSession is a continuous online period of a driver.
type AttendanceSession struct {
	ID         string        `json:"id"`
	DriverID   string        `json:"driver_id"`
	Date       time.Time     `json:"date"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	TotalHours *float64      `json:"total_hours,omitempty"`
	Status     SessionStatus `json:"status"`
}

// Close ends the session at t and computes its duration in hours.
func (s *AttendanceSession) Close(t time.Time) {
	end := t
	hours := end.Sub(s.StartTime).Hours()
	if hours < 0 {
		hours = 0
	}
	s.EndTime = &end
	s.TotalHours = &hours
	s.Status = SessionCompleted
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SessionFilter narrows attendance queries. From and To bound the session
// date inclusively when set.
type SessionFilter struct {
	DriverID string
	Status   SessionStatus
	From     time.Time
	To       time.Time
}

// Match reports whether s satisfies f.
func (f SessionFilter) Match(s AttendanceSession) bool {
	if f.DriverID != "" && s.DriverID != f.DriverID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && s.Date.Before(Day(f.From)) {
		return false
	}
	if !f.To.IsZero() && s.Date.After(Day(f.To)) {
		return false
	}
	return true
}
