package model

import (
	"fmt"
	"strings"
	"time"
)

// Vehicle describes the car a driver operates.
type Vehicle struct {
	Make  string `json:"make,omitempty" yaml:"make"`
	Model string `json:"model,omitempty" yaml:"model"`
	Color string `json:"color,omitempty" yaml:"color"`
}

// Driver is a registered driver and its availability state.
type Driver struct {
	ID               string    `json:"id" yaml:"id"`
	Name             string    `json:"name" yaml:"name"`
	LicensePlate     string    `json:"license_plate,omitempty" yaml:"license_plate"`
	Vehicle          Vehicle   `json:"vehicle" yaml:"vehicle"`
	Online           bool      `json:"online" yaml:"-"`
	CurrentKm        int64     `json:"current_km" yaml:"current_km"`
	Rating           float64   `json:"rating" yaml:"rating"`
	TotalRides       int       `json:"total_rides" yaml:"total_rides"`
	Active           bool      `json:"active" yaml:"-"`
	LastStatusChange time.Time `json:"last_status_change,omitempty" yaml:"-"`
	CreatedAt        time.Time `json:"created_at" yaml:"-"`
}

// Validate checks registration fields.
func (d Driver) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("driver id required: %w", ErrInvalidArgument)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("driver %s: name required: %w", d.ID, ErrInvalidArgument)
	}
	if d.CurrentKm < 0 {
		return fmt.Errorf("driver %s: negative odometer %d: %w", d.ID, d.CurrentKm, ErrInvalidOdometerReading)
	}
	return nil
}

// Passenger is a registered rider.
type Passenger struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Rating     float64   `json:"rating" yaml:"rating"`
	TotalRides int       `json:"total_rides" yaml:"total_rides"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
}

// Validate checks registration fields.
func (p Passenger) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("passenger id required: %w", ErrInvalidArgument)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("passenger %s: name required: %w", p.ID, ErrInvalidArgument)
	}
	return nil
}
