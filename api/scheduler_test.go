package api_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reservation-engine/api"
	"github.com/warp/reservation-engine/booking"
	"github.com/warp/reservation-engine/booking/store"
)

type fakeCloser struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCloser) CloseElapsedLocal(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func (f *fakeCloser) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestCloseScheduler_RunNow(t *testing.T) {
	closer := &fakeCloser{}
	s := api.NewCloseScheduler(closer, time.Hour, slog.New(slog.DiscardHandler))

	assert.Equal(t, 2, s.RunNow(context.Background()))
	assert.Equal(t, 1, closer.count())

	closer.err = errors.New("database is locked")
	assert.Equal(t, 0, s.RunNow(context.Background()))
	assert.Equal(t, 2, closer.count())
}

func TestCloseScheduler_ClosesOnBuildingDate(t *testing.T) {
	// GIVEN: A Tokyo booking on 2025-03-12
	// WHEN: The scheduler runs at 16:00 UTC that day, already 03-13 in Tokyo
	// THEN: The booking is closed

	ctx := context.Background()
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	clock, err := booking.NewZoneClock(map[string]string{"HQ": "Asia/Tokyo"}, "UTC")
	require.NoError(t, err)
	clock.Now = func() time.Time { return now }

	st := store.NewTxMemory()
	key := booking.RoomKey{Building: "HQ", Floor: "1", Room: "101", Config: "STD", ArrangeType: "CONFERENCE"}
	require.NoError(t, st.SaveRoomArrangement(ctx, &booking.RoomArrangement{
		Key: key, Name: "101", Capacity: 10, IsDefault: true,
		Terms: booking.Terms{Reservable: true, CostUnit: booking.CostPerHour},
	}))
	engine := booking.NewEngine(st, clock, booking.Options{Logger: slog.New(slog.DiscardHandler)})

	day := booking.Date(2025, time.March, 12)
	p := booking.SameDay(day, booking.NewTimeOfDay(9, 0, 0), booking.NewTimeOfDay(10, 0, 0))
	saved, err := engine.CreateOrUpdateReservation(ctx, booking.RequestContext{UserID: "ann"}, &booking.Reservation{
		Name:   "Standup",
		Period: p,
		Rooms:  []*booking.Allocation{booking.NewRoomAllocation(key, p)},
	})
	require.NoError(t, err)

	now = time.Date(2025, time.March, 12, 16, 0, 0, 0, time.UTC)
	s := api.NewCloseScheduler(engine, time.Hour, slog.New(slog.DiscardHandler))
	assert.Equal(t, 1, s.RunNow(ctx))

	stored, err := engine.Reservation(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusClosed, stored.Status)
}

func TestCloseScheduler_StartRunsImmediately(t *testing.T) {
	closer := &fakeCloser{}
	s := api.NewCloseScheduler(closer, time.Hour, slog.New(slog.DiscardHandler))

	s.Start()
	assert.Eventually(t, func() bool { return closer.count() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	assert.Equal(t, 1, closer.count())
}

func TestCloseScheduler_ZeroIntervalDisabled(t *testing.T) {
	closer := &fakeCloser{}
	s := api.NewCloseScheduler(closer, 0, slog.New(slog.DiscardHandler))

	assert.False(t, s.Enabled)
	s.Start()
	s.Stop()
	assert.Zero(t, closer.count())
}
