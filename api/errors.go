package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kilianp07/ridefleet/core/model"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errBadBody = fmt.Errorf("malformed request body: %w", model.ErrInvalidArgument)

// statusFor maps an engine error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrDriverUnavailable),
		errors.Is(err, model.ErrConflictingOdometerEntry):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidOdometerReading):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrTimeout), errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if errors.Is(err, model.ErrTimeout) {
		w.Header().Set("Retry-After", "1")
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: model.Kind(err), Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

var errNotDriver = fmt.Errorf("caller is not a driver: %w", model.ErrForbidden)

func errMissing(field string) error {
	return fmt.Errorf("%s is required: %w", field, model.ErrInvalidArgument)
}
