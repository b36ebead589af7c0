package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ridefleet/core/fleet"
	"github.com/kilianp07/ridefleet/core/keylock"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/store"
)

const testSecret = "0123456789abcdef0123"

type harness struct {
	h     http.Handler
	locks *keylock.MemoryLocker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fleet.ResetMetrics(prometheus.NewRegistry())
	locks := keylock.NewMemoryLocker(50 * time.Millisecond)
	e, err := fleet.New(store.New(store.NewMemoryBackend()), locks, nil)
	require.NoError(t, err)
	_, err = e.Bootstrap(context.Background(), fleet.Seed{
		Drivers:    []model.Driver{{ID: "d1", Name: "Dana"}, {ID: "d2", Name: "Eli"}},
		Passengers: []model.Passenger{{ID: "p1", Name: "Pat"}},
		Online:     []string{"d1"},
	})
	require.NoError(t, err)
	return &harness{h: NewRouter(e, Options{JWTSecret: testSecret}, nil), locks: locks}
}

func token(t *testing.T, id string, role model.Role) string {
	t.Helper()
	tok, err := IssueToken([]byte(testSecret), model.Principal{ID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, kind, decodeBody[errorBody](t, rec).Error)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t)
	assertError(t, h.do(t, http.MethodGet, "/rides", "", nil), http.StatusUnauthorized, "unauthorized")
	assertError(t, h.do(t, http.MethodGet, "/rides", "garbage", nil), http.StatusUnauthorized, "unauthorized")

	other, err := IssueToken([]byte("another-secret-of-length"), model.Principal{ID: "admin", Role: model.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	assertError(t, h.do(t, http.MethodGet, "/rides", other, nil), http.StatusUnauthorized, "unauthorized")

	expired, err := IssueToken([]byte(testSecret), model.Principal{ID: "admin", Role: model.RoleAdmin}, -time.Minute)
	require.NoError(t, err)
	assertError(t, h.do(t, http.MethodGet, "/rides", expired, nil), http.StatusUnauthorized, "unauthorized")

	_, err = IssueToken([]byte(testSecret), model.Principal{ID: "x", Role: "root"}, time.Hour)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestParseToken_RoundTrip(t *testing.T) {
	p := model.Principal{ID: "d1", Role: model.RoleDriver}
	tok, err := IssueToken([]byte(testSecret), p, time.Minute)
	require.NoError(t, err)
	got, err := ParseToken([]byte(testSecret), tok)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestRideLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	admin := token(t, "admin", model.RoleAdmin)
	d1 := token(t, "d1", model.RoleDriver)
	p1 := token(t, "p1", model.RolePassenger)

	rec := h.do(t, http.MethodPost, "/rides", p1, map[string]any{
		"pickup":  map[string]any{"latitude": 48.85, "longitude": 2.35},
		"dropoff": map[string]any{"latitude": 48.86, "longitude": 2.29},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ride := decodeBody[model.Ride](t, rec)
	assert.Equal(t, "p1", ride.PassengerID)
	assert.Equal(t, model.RideRequested, ride.Status)

	rec = h.do(t, http.MethodGet, "/rides/pending", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.Ride](t, rec), 1)

	rec = h.do(t, http.MethodPost, "/rides/"+ride.ID+"/assign", admin, map[string]any{"driver_id": "d1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.RideAssigned, decodeBody[model.Ride](t, rec).Status)

	rec = h.do(t, http.MethodGet, "/drivers/d1/availability", p1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"driver_id":"d1","available":false}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/rides/assigned", d1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.Ride](t, rec), 1)

	rec = h.do(t, http.MethodPost, "/rides/"+ride.ID+"/start", d1, map[string]any{"start_km": 100})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.RideInProgress, decodeBody[model.Ride](t, rec).Status)

	rec = h.do(t, http.MethodPost, "/rides/"+ride.ID+"/complete", d1, map[string]any{"end_km": 120, "actual_duration_min": 14})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decodeBody[model.Ride](t, rec)
	assert.Equal(t, model.RideCompleted, done.Status)
	assert.Equal(t, 20.0, done.DistanceKm)

	rec = h.do(t, http.MethodGet, "/drivers/d1/odometer", d1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"driver_id":"d1","current_km":120}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/km-entries", d1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]model.KilometerEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, model.EntryCompleted, entries[0].Status)

	rec = h.do(t, http.MethodGet, "/rides?status=completed,cancelled", p1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.Ride](t, rec), 1)

	rec = h.do(t, http.MethodGet, "/dashboard/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_rides":1`)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	admin := token(t, "admin", model.RoleAdmin)
	d1 := token(t, "d1", model.RoleDriver)
	p1 := token(t, "p1", model.RolePassenger)

	assertError(t, h.do(t, http.MethodGet, "/rides/missing", admin, nil), http.StatusNotFound, "not_found")
	assertError(t, h.do(t, http.MethodGet, "/dashboard/stats", p1, nil), http.StatusForbidden, "forbidden")
	assertError(t, h.do(t, http.MethodPut, "/drivers/me/status", p1, map[string]any{"online": true}), http.StatusForbidden, "forbidden")
	assertError(t, h.do(t, http.MethodPost, "/rides", p1, `{"bogus":1}`), http.StatusBadRequest, "invalid_argument")
	assertError(t, h.do(t, http.MethodGet, "/rides?status=flying", admin, nil), http.StatusBadRequest, "invalid_argument")
	assertError(t, h.do(t, http.MethodPut, "/drivers/me/status", d1, `{}`), http.StatusBadRequest, "invalid_argument")

	rec := h.do(t, http.MethodPost, "/rides", p1, map[string]any{"dropoff": map[string]any{"latitude": 1}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ride := decodeBody[model.Ride](t, rec)

	assertError(t, h.do(t, http.MethodPost, "/rides/"+ride.ID+"/assign", admin, map[string]any{"driver_id": "d2"}),
		http.StatusConflict, "driver_unavailable")
	assertError(t, h.do(t, http.MethodPost, "/rides/"+ride.ID+"/start", d1, map[string]any{"start_km": 5}),
		http.StatusConflict, "invalid_transition")
	rec = h.do(t, http.MethodPost, "/rides/"+ride.ID+"/assign", admin, map[string]any{"driver_id": "d1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assertError(t, h.do(t, http.MethodPost, "/rides/"+ride.ID+"/start", d1, map[string]any{}), http.StatusBadRequest, "invalid_argument")

	rec = h.do(t, http.MethodPost, "/km-entries", d1, map[string]any{"start_km": 40})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decodeBody[model.KilometerEntry](t, rec)
	assertError(t, h.do(t, http.MethodPost, "/rides/"+ride.ID+"/start", d1, map[string]any{"start_km": 41}),
		http.StatusConflict, "conflicting_odometer_entry")
	assertError(t, h.do(t, http.MethodPut, "/km-entries/"+entry.ID+"/complete", d1, map[string]any{"end_km": 39}),
		http.StatusUnprocessableEntity, "invalid_odometer_reading")

	rec = h.do(t, http.MethodPut, "/km-entries/"+entry.ID+"/complete", d1, map[string]any{"end_km": 45})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLockTimeoutIsRetryable(t *testing.T) {
	h := newHarness(t)
	admin := token(t, "admin", model.RoleAdmin)
	rec := h.do(t, http.MethodPost, "/rides", admin, map[string]any{"passenger_id": "p1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ride := decodeBody[model.Ride](t, rec)

	unlock, err := h.locks.Lock(context.Background(), keylock.DriverKey("d1"))
	require.NoError(t, err)
	defer unlock()

	rec = h.do(t, http.MethodPost, "/rides/"+ride.ID+"/assign", admin, map[string]any{"driver_id": "d1"})
	assertError(t, rec, http.StatusServiceUnavailable, "timeout")
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestAttendanceExport(t *testing.T) {
	h := newHarness(t)
	admin := token(t, "admin", model.RoleAdmin)
	d2 := token(t, "d2", model.RoleDriver)

	rec := h.do(t, http.MethodPut, "/drivers/me/status", d2, map[string]any{"online": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/attendance/active", d2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"active"`)

	rec = h.do(t, http.MethodGet, "/attendance/export", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance.csv")
	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rec = h.do(t, http.MethodGet, "/attendance/export?format=json&driver_id=d2", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.AttendanceSession](t, rec), 1)

	assertError(t, h.do(t, http.MethodGet, "/attendance/export?format=xml", admin, nil), http.StatusBadRequest, "invalid_argument")
	assertError(t, h.do(t, http.MethodGet, "/attendance?from=yesterday", admin, nil), http.StatusBadRequest, "invalid_argument")
	assertError(t, h.do(t, http.MethodGet, "/attendance?driver_id=d1", d2, nil), http.StatusForbidden, "forbidden")

	rec = h.do(t, http.MethodGet, "/attendance/summary", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"driver_id":"d2"`)
}

func TestLeaveOverHTTP(t *testing.T) {
	h := newHarness(t)
	admin := token(t, "admin", model.RoleAdmin)
	d1 := token(t, "d1", model.RoleDriver)

	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	rec := h.do(t, http.MethodPost, "/leave-requests", d1, map[string]any{
		"start_date": start, "end_date": start.AddDate(0, 0, 3), "reason": "holiday",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	req := decodeBody[model.LeaveRequest](t, rec)
	assert.Equal(t, model.LeavePending, req.Status)

	assertError(t, h.do(t, http.MethodPut, "/leave-requests/"+req.ID+"/review", d1, map[string]any{"decision": "approved"}),
		http.StatusForbidden, "forbidden")
	rec = h.do(t, http.MethodPut, "/leave-requests/"+req.ID+"/review", admin, map[string]any{"decision": "approved", "comments": "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.LeaveApproved, decodeBody[model.LeaveRequest](t, rec).Status)
	assertError(t, h.do(t, http.MethodPut, "/leave-requests/"+req.ID+"/review", admin, map[string]any{"decision": "rejected"}),
		http.StatusConflict, "invalid_transition")

	rec = h.do(t, http.MethodGet, "/leave-requests?status=approved", d1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.LeaveRequest](t, rec), 1)
	assertError(t, h.do(t, http.MethodGet, "/leave-requests?status=maybe", d1, nil), http.StatusBadRequest, "invalid_argument")

	rec = h.do(t, http.MethodGet, "/leave-requests/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"approved":1`)
}

func TestFuelOverHTTP(t *testing.T) {
	h := newHarness(t)
	admin := token(t, "admin", model.RoleAdmin)
	d1 := token(t, "d1", model.RoleDriver)

	rec := h.do(t, http.MethodPost, "/fuel-entries", d1, map[string]any{"amount": 42.5, "cost": 70, "location": "Depot"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decodeBody[model.FuelEntry](t, rec)
	assert.Equal(t, "d1", entry.DriverID)
	assert.Equal(t, model.RoleDriver, entry.AddedBy)

	rec = h.do(t, http.MethodPost, "/fuel-entries", admin, map[string]any{"driver_id": "d2", "amount": 10, "cost": 15, "location": "Airport"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assertError(t, h.do(t, http.MethodPost, "/fuel-entries", admin, map[string]any{"driver_id": "nobody", "amount": 1, "cost": 1, "location": "x"}),
		http.StatusNotFound, "not_found")
	assertError(t, h.do(t, http.MethodPost, "/fuel-entries", d1, map[string]any{"driver_id": "d2", "amount": 1, "cost": 1, "location": "x"}),
		http.StatusForbidden, "forbidden")
	assertError(t, h.do(t, http.MethodPost, "/fuel-entries", d1, map[string]any{"amount": 0, "cost": 1, "location": "x"}),
		http.StatusBadRequest, "invalid_argument")

	rec = h.do(t, http.MethodGet, "/fuel-entries", d1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.FuelEntry](t, rec), 1)
	assertError(t, h.do(t, http.MethodGet, "/fuel-entries?driver_id=d2", d1, nil), http.StatusForbidden, "forbidden")
	rec = h.do(t, http.MethodGet, "/fuel-entries", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.FuelEntry](t, rec), 2)

	rec = h.do(t, http.MethodGet, "/dashboard/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_fuel_expenses":85`)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrInvalidArgument, http.StatusBadRequest},
		{model.ErrForbidden, http.StatusForbidden},
		{model.ErrInvalidTransition, http.StatusConflict},
		{model.ErrDriverUnavailable, http.StatusConflict},
		{model.ErrConflictingOdometerEntry, http.StatusConflict},
		{model.ErrInvalidOdometerReading, http.StatusUnprocessableEntity},
		{model.ErrTimeout, http.StatusServiceUnavailable},
		{model.ErrUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("ride.assign: %w", model.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}
