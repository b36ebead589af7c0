package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ridefleet/core/model"
)

func TestMemoryBackend_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	st := New(NewMemoryBackend())
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.Update(ctx, func(tx *Tx) error {
		return tx.PutDriver(ctx, model.Driver{ID: "d1", Name: "Ada", CreatedAt: now})
	}))

	boom := errors.New("boom")
	err := st.Update(ctx, func(tx *Tx) error {
		d, err := tx.Driver(ctx, "d1")
		if err != nil {
			return err
		}
		d.CurrentKm = 500
		if err := tx.PutDriver(ctx, d); err != nil {
			return err
		}
		// reads observe the transaction's own writes
		again, err := tx.Driver(ctx, "d1")
		if err != nil {
			return err
		}
		assert.Equal(t, int64(500), again.CurrentKm)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, st.View(ctx, func(tx *Tx) error {
		d, err := tx.Driver(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), d.CurrentKm)
		_, err = tx.Driver(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
		return nil
	}))
}

func TestMemoryBackend_ViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	st := New(NewMemoryBackend())
	err := st.View(ctx, func(tx *Tx) error {
		return tx.PutPassenger(ctx, model.Passenger{ID: "p1", Name: "Bo"})
	})
	assert.Error(t, err)
}

func TestMemoryBackend_FindFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	st := New(NewMemoryBackend())
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rides := []model.Ride{
		{ID: "r2", PassengerID: "p1", Status: model.RideRequested, RequestedAt: base.Add(time.Minute)},
		{ID: "r1", PassengerID: "p1", DriverID: "d1", Status: model.RideAssigned, RequestedAt: base},
		{ID: "r3", PassengerID: "p2", DriverID: "d1", Status: model.RideCompleted, RequestedAt: base.Add(2 * time.Minute)},
	}
	require.NoError(t, st.Update(ctx, func(tx *Tx) error {
		for _, r := range rides {
			if err := tx.PutRide(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, st.View(ctx, func(tx *Tx) error {
		all, err := tx.Rides(ctx, model.RideFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"r1", "r2", "r3"}, []string{all[0].ID, all[1].ID, all[2].ID})

		active, err := tx.Rides(ctx, model.RideFilter{DriverID: "d1", Statuses: []model.RideStatus{model.RideAssigned, model.RideInProgress}})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "r1", active[0].ID)

		byPassenger, err := tx.Rides(ctx, model.RideFilter{PassengerID: "p1"})
		require.NoError(t, err)
		assert.Len(t, byPassenger, 2)
		return nil
	}))
}

func TestMemoryBackend_Closed(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.Close())
	err := b.View(context.Background(), func(RecordTx) error { return nil })
	assert.Error(t, err)
}

func TestTx_SessionsDateFilter(t *testing.T) {
	ctx := context.Background()
	st := New(NewMemoryBackend())
	day1 := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	require.NoError(t, st.Update(ctx, func(tx *Tx) error {
		for i, start := range []time.Time{day1, day2} {
			s := model.AttendanceSession{ID: string(rune('a' + i)), DriverID: "d1", Date: model.Day(start), StartTime: start, Status: model.SessionCompleted}
			if err := tx.PutSession(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, st.View(ctx, func(tx *Tx) error {
		got, err := tx.Sessions(ctx, model.SessionFilter{DriverID: "d1", From: day2})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "b", got[0].ID)
		return nil
	}))
}
