package events

import (
	"strings"
	"time"
)

// Type names a domain event.
type Type string

const (
	RideRequested       Type = "ride.requested"
	RideAssigned        Type = "ride.assigned"
	RideStarted         Type = "ride.started"
	RideCompleted       Type = "ride.completed"
	RideCancelled       Type = "ride.cancelled"
	DriverRegistered    Type = "driver.registered"
	DriverOnline        Type = "driver.online"
	DriverOffline       Type = "driver.offline"
	DriverDeactivated   Type = "driver.deactivated"
	PassengerRegistered Type = "passenger.registered"
	OdometerOpened      Type = "odometer.opened"
	OdometerClosed      Type = "odometer.closed"
	AttendanceOpened    Type = "attendance.opened"
	AttendanceClosed    Type = "attendance.closed"
	LeaveSubmitted      Type = "leave.submitted"
	LeaveReviewed       Type = "leave.reviewed"
	FuelRecorded        Type = "fuel.recorded"
)

// Entity returns the part of t before the first dot.
func (t Type) Entity() string {
	s := string(t)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// Event is a committed state change. Subject is the id of the entity named by
// the type's prefix.
type Event struct {
	Type     Type           `json:"type"`
	Subject  string         `json:"subject"`
	DriverID string         `json:"driver_id,omitempty"`
	RideID   string         `json:"ride_id,omitempty"`
	Actor    string         `json:"actor"`
	Time     time.Time      `json:"time"`
	Data     map[string]any `json:"data,omitempty"`
}
