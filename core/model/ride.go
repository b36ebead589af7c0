package model

import (
	"fmt"
	"time"
)

// RideStatus is the lifecycle state of a ride.
type RideStatus string

const (
	RideRequested  RideStatus = "requested"
	RideAssigned   RideStatus = "assigned"
	RideInProgress RideStatus = "in_progress"
	RideCompleted  RideStatus = "completed"
	RideCancelled  RideStatus = "cancelled"
)

// rideTransitions is the only place ride transitions are defined.
var rideTransitions = map[RideStatus][]RideStatus{
	RideRequested:  {RideAssigned, RideCancelled},
	RideAssigned:   {RideInProgress, RideCancelled},
	RideInProgress: {RideCompleted, RideCancelled},
}

// ParseRideStatus validates s as a ride status.
func ParseRideStatus(s string) (RideStatus, error) {
	switch st := RideStatus(s); st {
	case RideRequested, RideAssigned, RideInProgress, RideCompleted, RideCancelled:
		return st, nil
	}
	return "", fmt.Errorf("ride status %q: %w", s, ErrInvalidArgument)
}

// CanTransitionTo reports whether the transition s -> to is permitted.
func (s RideStatus) CanTransitionTo(to RideStatus) bool {
	for _, next := range rideTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s RideStatus) Terminal() bool { return len(rideTransitions[s]) == 0 }

// Active reports whether a ride in status s commits its driver.
func (s RideStatus) Active() bool { return s == RideAssigned || s == RideInProgress }

// Location is a geographic point with an optional address.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Address   string  `json:"address,omitempty" yaml:"address"`
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("location (%v, %v) out of range: %w", l.Latitude, l.Longitude, ErrInvalidArgument)
	}
	return nil
}

// Ride is a passenger trip request and its progress.
type Ride struct {
	ID                   string     `json:"id"`
	PassengerID          string     `json:"passenger_id"`
	DriverID             string     `json:"driver_id,omitempty"`
	Status               RideStatus `json:"status"`
	Pickup               Location   `json:"pickup"`
	Dropoff              Location   `json:"dropoff"`
	RequestedAt          time.Time  `json:"requested_at"`
	AssignedAt           *time.Time `json:"assigned_at,omitempty"`
	PickedUpAt           *time.Time `json:"picked_up_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	DistanceKm           float64    `json:"distance_km,omitempty"`
	EstimatedDurationMin int        `json:"estimated_duration_min,omitempty"`
	ActualDurationMin    *int       `json:"actual_duration_min,omitempty"`
}

// RideFilter narrows ride queries. Zero fields match everything.
type RideFilter struct {
	PassengerID string
	DriverID    string
	Statuses    []RideStatus
}
