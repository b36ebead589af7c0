package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/ridefleet/core/model"
)

// WriteAttendanceJSON writes sessions to w as a JSON array.
func WriteAttendanceJSON(w io.Writer, sessions []model.AttendanceSession) error {
	if sessions == nil {
		sessions = []model.AttendanceSession{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sessions)
}

// WriteAttendanceCSV writes one row per session. Active sessions show
// "active" as their end time and no hours.
func WriteAttendanceCSV(w io.Writer, sessions []model.AttendanceSession) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"driver_id", "date", "start_time", "end_time", "total_hours", "status"}); err != nil {
		return err
	}
	for _, s := range sessions {
		end, hours := "active", ""
		if s.EndTime != nil {
			end = s.EndTime.Format(time.RFC3339)
		}
		if s.TotalHours != nil {
			hours = strconv.FormatFloat(*s.TotalHours, 'f', 2, 64)
		}
		rec := []string{
			s.DriverID,
			s.Date.Format(time.DateOnly),
			s.StartTime.Format(time.RFC3339),
			end,
			hours,
			string(s.Status),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
