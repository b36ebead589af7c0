package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/ridefleet/core/fleet"
	"github.com/kilianp07/ridefleet/core/model"
)

type rideRequest struct {
	PassengerID string         `json:"passenger_id"`
	DriverID    string         `json:"driver_id"`
	Pickup      model.Location `json:"pickup"`
	Dropoff     model.Location `json:"dropoff"`
}

type transitionRequest struct {
	DriverID          string `json:"driver_id"`
	StartKm           *int64 `json:"start_km"`
	EndKm             *int64 `json:"end_km"`
	ActualDurationMin *int   `json:"actual_duration_min"`
}

type statusRequest struct {
	Status            string `json:"status"`
	DriverID          string `json:"driver_id"`
	Km                *int64 `json:"km"`
	ActualDurationMin *int   `json:"actual_duration_min"`
}

// ownID defaults an empty id to the caller's own when the caller has role.
func ownID(p model.Principal, role model.Role, id string) string {
	if id == "" && p.Role == role {
		return p.ID
	}
	return id
}

func required(name string, v *int64) (int64, error) {
	if v == nil {
		return 0, errMissing(name)
	}
	return *v, nil
}

func (s *Server) requestRide(w http.ResponseWriter, r *http.Request) {
	var req rideRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p := principal(r)
	ride, err := s.engine.Rides.Request(r.Context(), p, ownID(p, model.RolePassenger, req.PassengerID), req.Pickup, req.Dropoff)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) createAssignedRide(w http.ResponseWriter, r *http.Request) {
	var req rideRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.engine.Rides.CreateAssigned(r.Context(), principal(r), req.PassengerID, req.DriverID, req.Pickup, req.Dropoff)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) listRides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.RideFilter{PassengerID: q.Get("passenger_id"), DriverID: q.Get("driver_id")}
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := model.ParseRideStatus(strings.TrimSpace(part))
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	rides, err := s.engine.Rides.List(r.Context(), principal(r), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rides))
}

func (s *Server) pendingRides(w http.ResponseWriter, r *http.Request) {
	rides, err := s.engine.Rides.Pending(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rides))
}

func (s *Server) assignedRides(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	rides, err := s.engine.Rides.AssignedTo(r.Context(), p, ownID(p, model.RoleDriver, r.URL.Query().Get("driver_id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rides))
}

func (s *Server) getRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.engine.Rides.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) assignRide(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.engine.Rides.Assign(r.Context(), principal(r), chi.URLParam(r, "id"), req.DriverID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) startRide(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
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
	ride, err := s.engine.Rides.Start(r.Context(), p, chi.URLParam(r, "id"), ownID(p, model.RoleDriver, req.DriverID), km)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) completeRide(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	km, err := required("end_km", req.EndKm)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := principal(r)
	ride, err := s.engine.Rides.Complete(r.Context(), p, chi.URLParam(r, "id"), ownID(p, model.RoleDriver, req.DriverID), km, req.ActualDurationMin)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) cancelRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.engine.Rides.Cancel(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) setRideStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := model.ParseRideStatus(req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ride, err := s.engine.Rides.SetStatus(r.Context(), principal(r), chi.URLParam(r, "id"), fleet.StatusChange{
		Status:            st,
		DriverID:          req.DriverID,
		Km:                req.Km,
		ActualDurationMin: req.ActualDurationMin,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) closeRideEntry(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	km, err := required("end_km", req.EndKm)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.engine.Odometer.CloseEntryForRide(r.Context(), principal(r), chi.URLParam(r, "id"), km)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
