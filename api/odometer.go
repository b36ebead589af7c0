package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/ridefleet/core/model"
)

type entryRequest struct {
	DriverID string `json:"driver_id"`
	RideID   string `json:"ride_id"`
	StartKm  *int64 `json:"start_km"`
	EndKm    *int64 `json:"end_km"`
}

func (s *Server) openEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	km, err := required("start_km", req.StartKm)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := principal(r)
	e, err := s.engine.Odometer.OpenEntry(r.Context(), p, ownID(p, model.RoleDriver, req.DriverID), km, req.RideID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) closeEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	km, err := required("end_km", req.EndKm)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.engine.Odometer.CloseEntry(r.Context(), principal(r), chi.URLParam(r, "id"), km)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Odometer.ListByDriver(r.Context(), principal(r), r.URL.Query().Get("driver_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}
