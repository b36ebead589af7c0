package model

import (
	"fmt"
	"strings"
	"time"
)

// FuelEntry is one refuelling of a driver's vehicle.
type FuelEntry struct {
	ID       string `json:"id"`
	DriverID string `json:"driver_id"`
	// Amount is in litres.
	Amount   float64   `json:"amount"`
	Cost     float64   `json:"cost"`
	Location string    `json:"location"`
	Date     time.Time `json:"date"`
	AddedBy  Role      `json:"added_by"`
	AdminID  string    `json:"admin_id,omitempty"`
}

// FuelSubmission holds the caller-provided fields of a new fuel entry.
type FuelSubmission struct {
	DriverID string  `json:"driver_id,omitempty"`
	Amount   float64 `json:"amount"`
	Cost     float64 `json:"cost"`
	Location string  `json:"location"`
}

func (s FuelSubmission) Validate() error {
	if s.Amount <= 0 {
		return fmt.Errorf("fuel amount %v must be positive: %w", s.Amount, ErrInvalidArgument)
	}
	if s.Cost < 0 {
		return fmt.Errorf("fuel cost %v is negative: %w", s.Cost, ErrInvalidArgument)
	}
	if strings.TrimSpace(s.Location) == "" {
		return fmt.Errorf("fuel location required: %w", ErrInvalidArgument)
	}
	return nil
}
