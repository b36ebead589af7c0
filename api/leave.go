package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/report"
)

type reviewRequest struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

func (s *Server) submitLeave(w http.ResponseWriter, r *http.Request) {
	var sub model.LeaveSubmission
	if err := decode(r, &sub); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.Leave.Submit(r.Context(), principal(r), sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) listLeave(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.LeaveFilter{DriverID: q.Get("driver_id")}
	switch st := model.LeaveStatus(q.Get("status")); st {
	case "", model.LeavePending, model.LeaveApproved, model.LeaveRejected:
		f.Status = st
	default:
		s.writeError(w, r, fmt.Errorf("leave status %q: %w", st, model.ErrInvalidArgument))
		return
	}
	out, err := s.engine.Leave.List(r.Context(), principal(r), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) getLeave(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Leave.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) reviewLeave(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.Leave.Review(r.Context(), principal(r), chi.URLParam(r, "id"), req.Decision, req.Comments)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) leaveStats(w http.ResponseWriter, r *http.Request) {
	out, err := report.BuildLeaveStats(r.Context(), s.engine, principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	out, err := report.BuildDashboard(r.Context(), s.engine, principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
