package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reservation-engine/booking"
	"github.com/warp/reservation-engine/booking/store"
)

func TestTxMemory_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()
	day := booking.Date(2025, time.March, 12)
	key := booking.RoomKey{Building: "HQ", Floor: "1", Room: "101"}
	p := booking.SameDay(day, booking.NewTimeOfDay(9, 0, 0), booking.NewTimeOfDay(10, 0, 0))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx booking.Store) error {
		r := &booking.Reservation{Period: p, Rooms: []*booking.Allocation{booking.NewRoomAllocation(key, p)}}
		r.Rooms[0].Status = booking.StatusConfirmed
		require.NoError(t, tx.SaveReservation(ctx, r))
		assert.Equal(t, booking.ReservationID(1), r.ID)

		active, err := tx.ActiveAllocations(ctx, booking.KindRoom, day, 0)
		require.NoError(t, err)
		assert.Len(t, active, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	active, err := s.ActiveAllocations(ctx, booking.KindRoom, day, 0)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = s.Reservation(ctx, 1)
	assert.ErrorIs(t, err, booking.ErrNotFound)

	// Ids are reused after a rollback.
	r := &booking.Reservation{Period: p, Rooms: []*booking.Allocation{booking.NewRoomAllocation(key, p)}}
	require.NoError(t, s.SaveReservation(ctx, r))
	assert.Equal(t, booking.ReservationID(1), r.ID)
	assert.Equal(t, booking.AllocationID(1), r.Rooms[0].ID)
}

func TestMemory_ActiveAllocationsSkipsExcludedAndEnded(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	day := booking.Date(2025, time.March, 12)
	p := booking.SameDay(day, booking.NewTimeOfDay(9, 0, 0), booking.NewTimeOfDay(10, 0, 0))

	mine := &booking.Reservation{Rooms: []*booking.Allocation{booking.NewRoomAllocation(booking.RoomKey{Room: "1"}, p)}}
	mine.Rooms[0].Status = booking.StatusConfirmed
	theirs := &booking.Reservation{Rooms: []*booking.Allocation{booking.NewRoomAllocation(booking.RoomKey{Room: "2"}, p)}}
	theirs.Rooms[0].Status = booking.StatusAwaitingApproval
	gone := &booking.Reservation{Rooms: []*booking.Allocation{booking.NewRoomAllocation(booking.RoomKey{Room: "3"}, p)}}
	gone.Rooms[0].Status = booking.StatusCancelled
	for _, r := range []*booking.Reservation{mine, theirs, gone} {
		require.NoError(t, s.SaveReservation(ctx, r))
	}

	active, err := s.ActiveAllocations(ctx, booking.KindRoom, day, mine.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "2", active[0].Room.Room)

	other, err := s.ActiveAllocations(ctx, booking.KindRoom, day.AddDate(0, 0, 1), 0)
	require.NoError(t, err)
	assert.Empty(t, other)

	elapsed, err := s.ListElapsed(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, elapsed, 3)
}
