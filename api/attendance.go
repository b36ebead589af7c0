package api

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/report"
)

// sessionFilter reads driver_id, status, from and to (YYYY-MM-DD).
func sessionFilter(q url.Values) (model.SessionFilter, error) {
	f := model.SessionFilter{DriverID: q.Get("driver_id")}
	switch st := model.SessionStatus(q.Get("status")); st {
	case "", model.SessionActive, model.SessionCompleted:
		f.Status = st
	default:
		return f, fmt.Errorf("session status %q: %w", st, model.ErrInvalidArgument)
	}
	for _, b := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := q.Get(b.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return f, fmt.Errorf("%s %q: %w", b.name, raw, model.ErrInvalidArgument)
		}
		*b.dst = t
	}
	return f, nil
}

func (s *Server) listAttendance(w http.ResponseWriter, r *http.Request) {
	f, err := sessionFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.Attendance.List(r.Context(), principal(r), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) activeAttendance(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	driverID := ownID(p, model.RoleDriver, r.URL.Query().Get("driver_id"))
	if driverID == "" {
		s.writeError(w, r, errMissing("driver_id"))
		return
	}
	sess, err := s.engine.Attendance.Active(r.Context(), p, driverID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"driver_id": driverID, "session": sess})
}

func (s *Server) attendanceSummary(w http.ResponseWriter, r *http.Request) {
	f, err := sessionFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := report.SummarizeAttendance(r.Context(), s.engine, principal(r), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) exportAttendance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := sessionFilter(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	format := q.Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		s.writeError(w, r, fmt.Errorf("export format %q: %w", format, model.ErrInvalidArgument))
		return
	}
	sessions, err := s.engine.Attendance.List(r.Context(), principal(r), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="attendance.json"`)
		err = report.WriteAttendanceJSON(w, sessions)
	} else {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="attendance.csv"`)
		err = report.WriteAttendanceCSV(w, sessions)
	}
	if err != nil {
		s.log.Errorf("attendance export: %v", err)
	}
}
