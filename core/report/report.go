// Package report derives read-only views over the fleet: dashboard counters,
// leave statistics and attendance summaries.
package report

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/ridefleet/core/fleet"
	"github.com/kilianp07/ridefleet/core/model"
)

// Dashboard holds fleet-wide counters.
type Dashboard struct {
	TotalDrivers  int                      `json:"total_drivers"`
	OnlineDrivers int                      `json:"online_drivers"`
	ActiveDrivers int                      `json:"active_drivers"`
	TotalRides    int                      `json:"total_rides"`
	RidesByStatus map[model.RideStatus]int `json:"rides_by_status"`
	PendingLeave  int                      `json:"pending_leave_requests"`
	OpenOdometers int                      `json:"open_odometer_entries"`
	TotalDistance float64                  `json:"total_distance_km"`
	FuelLitres    float64                  `json:"total_fuel_litres"`
	FuelCost      float64                  `json:"total_fuel_expenses"`
}

// BuildDashboard computes the admin dashboard.
func BuildDashboard(ctx context.Context, e *fleet.Engine, p model.Principal) (Dashboard, error) {
	if !p.IsAdmin() {
		return Dashboard{}, fmt.Errorf("dashboard: %w", model.ErrForbidden)
	}
	d := Dashboard{RidesByStatus: map[model.RideStatus]int{}}
	drivers, err := e.Drivers.List(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	d.TotalDrivers = len(drivers)
	for _, drv := range drivers {
		if drv.Online {
			d.OnlineDrivers++
		}
		if drv.Active {
			d.ActiveDrivers++
		}
	}
	rides, err := e.Rides.List(ctx, p, model.RideFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	d.TotalRides = len(rides)
	for _, r := range rides {
		d.RidesByStatus[r.Status]++
		d.TotalDistance += r.DistanceKm
	}
	leave, err := e.Leave.List(ctx, p, model.LeaveFilter{Status: model.LeavePending})
	if err != nil {
		return Dashboard{}, err
	}
	d.PendingLeave = len(leave)
	entries, err := e.Odometer.ListByDriver(ctx, p, "")
	if err != nil {
		return Dashboard{}, err
	}
	for _, en := range entries {
		if en.Status == model.EntryStarted {
			d.OpenOdometers++
		}
	}
	fuel, err := e.Fuel.List(ctx, p, "")
	if err != nil {
		return Dashboard{}, err
	}
	for _, fe := range fuel {
		d.FuelLitres += fe.Amount
		d.FuelCost += fe.Cost
	}
	return d, nil
}

// LeaveStats counts leave requests by status.
type LeaveStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// BuildLeaveStats counts the requests visible to p: every request for an
// admin, their own for a driver.
func BuildLeaveStats(ctx context.Context, e *fleet.Engine, p model.Principal) (LeaveStats, error) {
	reqs, err := e.Leave.List(ctx, p, model.LeaveFilter{})
	if err != nil {
		return LeaveStats{}, err
	}
	s := LeaveStats{Total: len(reqs)}
	for _, r := range reqs {
		switch r.Status {
		case model.LeavePending:
			s.Pending++
		case model.LeaveApproved:
			s.Approved++
		case model.LeaveRejected:
			s.Rejected++
		}
	}
	return s, nil
}

// DriverAttendance summarizes the completed sessions of one driver.
type DriverAttendance struct {
	DriverID    string  `json:"driver_id"`
	Sessions    int     `json:"sessions"`
	TotalHours  float64 `json:"total_hours"`
	MeanHours   float64 `json:"mean_hours"`
	StdDevHours float64 `json:"stddev_hours"`
	Online      bool    `json:"online"`
}

// SummarizeAttendance groups the sessions visible to p per driver. Only
// completed sessions contribute hours; an active one sets Online.
func SummarizeAttendance(ctx context.Context, e *fleet.Engine, p model.Principal, f model.SessionFilter) ([]DriverAttendance, error) {
	sessions, err := e.Attendance.List(ctx, p, f)
	if err != nil {
		return nil, err
	}
	return Summarize(sessions), nil
}

// Summarize computes per-driver attendance statistics ordered by driver id.
func Summarize(sessions []model.AttendanceSession) []DriverAttendance {
	hours := map[string][]float64{}
	online := map[string]bool{}
	for _, s := range sessions {
		if _, ok := hours[s.DriverID]; !ok {
			hours[s.DriverID] = nil
		}
		if s.Status == model.SessionActive {
			online[s.DriverID] = true
			continue
		}
		if s.TotalHours != nil {
			hours[s.DriverID] = append(hours[s.DriverID], *s.TotalHours)
		}
	}
	out := make([]DriverAttendance, 0, len(hours))
	for id, hs := range hours {
		a := DriverAttendance{DriverID: id, Sessions: len(hs), Online: online[id]}
		for _, h := range hs {
			a.TotalHours += h
		}
		if len(hs) > 0 {
			a.MeanHours = stat.Mean(hs, nil)
		}
		if len(hs) > 1 {
			a.StdDevHours = stat.StdDev(hs, nil)
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}
