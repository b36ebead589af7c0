package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/ridefleet/core/model"
)

type onlineRequest struct {
	Online *bool `json:"online"`
}

func (s *Server) listDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := s.engine.Drivers.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(drivers))
}

func (s *Server) getDriver(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.Drivers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) registerDriver(w http.ResponseWriter, r *http.Request) {
	var d model.Driver
	if err := decode(r, &d); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.Drivers.Register(r.Context(), principal(r), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) setOnline(w http.ResponseWriter, r *http.Request, driverID string) {
	var req onlineRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Online == nil {
		s.writeError(w, r, errMissing("online"))
		return
	}
	d, err := s.engine.Drivers.SetOnline(r.Context(), principal(r), driverID, *req.Online)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) setDriverStatus(w http.ResponseWriter, r *http.Request) {
	s.setOnline(w, r, chi.URLParam(r, "id"))
}

func (s *Server) setOwnStatus(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p.Role != model.RoleDriver {
		s.writeError(w, r, errNotDriver)
		return
	}
	s.setOnline(w, r, p.ID)
}

func (s *Server) deactivateDriver(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.Drivers.Deactivate(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) driverAvailability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.engine.Drivers.IsAvailableForAssignment(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"driver_id": id, "available": ok})
}

func (s *Server) driverOdometer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	km, err := s.engine.Drivers.CurrentOdometer(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"driver_id": id, "current_km": km})
}

func (s *Server) listPassengers(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Passengers.List(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) getPassenger(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Passengers.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) registerPassenger(w http.ResponseWriter, r *http.Request) {
	var p model.Passenger
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.Passengers.Register(r.Context(), principal(r), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}
