package model

import "time"

// EntryStatus is the state of a kilometer entry.
type EntryStatus string

const (
	EntryStarted   EntryStatus = "started"
	EntryCompleted EntryStatus = "completed"
)

// KilometerEntry records the odometer at the start and end of a work span,
// optionally tied to a ride.
type KilometerEntry struct {
	ID          string      `json:"id"`
	DriverID    string      `json:"driver_id"`
	RideID      string      `json:"ride_id,omitempty"`
	StartKm     int64       `json:"start_km"`
	EndKm       *int64      `json:"end_km,omitempty"`
	Date        time.Time   `json:"date"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Status      EntryStatus `json:"status"`
}

// Distance returns end-start for a completed entry and 0 otherwise.
func (e KilometerEntry) Distance() int64 {
	if e.EndKm == nil {
		return 0
	}
	return *e.EndKm - e.StartKm
}

// EntryFilter narrows kilometer entry queries.
type EntryFilter struct {
	DriverID string
	RideID   string
	Status   EntryStatus
}
