package api

import (
	"net/http"

	"github.com/kilianp07/ridefleet/core/model"
)

func (s *Server) recordFuel(w http.ResponseWriter, r *http.Request) {
	var sub model.FuelSubmission
	if err := decode(r, &sub); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.Fuel.Record(r.Context(), principal(r), sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) listFuel(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.Fuel.List(r.Context(), principal(r), r.URL.Query().Get("driver_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}
