package sqlite_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reservation-engine/booking"
	"github.com/warp/reservation-engine/store/sqlite"
)

var (
	day       = booking.Date(2025, time.March, 12)
	boardroom = booking.RoomKey{Building: "HQ", Floor: "1", Room: "101", Config: "STD", ArrangeType: "CONFERENCE"}
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func at(h, m int) booking.TimeOfDay {
	return booking.NewTimeOfDay(h, m, 0)
}

func confirmedRoom(key booking.RoomKey, p booking.TimePeriod) *booking.Reservation {
	a := booking.NewRoomAllocation(key, p)
	a.Status = booking.StatusConfirmed
	a.Cost = decimal.RequireFromString("10.00")
	return &booking.Reservation{
		Name:   "Planning",
		Status: booking.StatusConfirmed,
		Period: p,
		Rooms:  []*booking.Allocation{a},
		Cost:   decimal.RequireFromString("10.00"),
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func TestStore_RoomArrangementRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	cutoff := at(17, 0)
	room := &booking.RoomArrangement{
		Key:       boardroom,
		Name:      "Boardroom",
		Capacity:  12,
		IsDefault: true,
		Terms: booking.Terms{
			Reservable:           true,
			Cancel:               booking.LeadTime{Days: 2, Time: &cutoff},
			CostPerUnit:          decimal.RequireFromString("5"),
			CostUnit:             booking.CostPerHour,
			LateCancelPercentage: decimal.RequireFromString("50"),
			DayStart:             at(8, 0),
			DayEnd:               at(18, 0),
			SecurityGroups:       []string{"staff"},
		},
	}
	require.NoError(t, s.SaveRoomArrangement(ctx, room))

	got, err := s.RoomArrangement(ctx, boardroom)
	require.NoError(t, err)
	assert.Equal(t, "Boardroom", got.Name)
	assert.Equal(t, 12, got.Capacity)
	assert.True(t, got.CostPerUnit.Equal(decimal.NewFromInt(5)))
	require.NotNil(t, got.Cancel.Time)
	assert.Equal(t, cutoff, *got.Cancel.Time)
	assert.Equal(t, []string{"staff"}, got.SecurityGroups)

	// Saving again updates in place.
	room.Capacity = 14
	require.NoError(t, s.SaveRoomArrangement(ctx, room))
	list, err := s.ListRoomArrangements(ctx, booking.CandidateFilter{Building: "HQ", MinCapacity: 13})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 14, list[0].Capacity)

	_, err = s.RoomArrangement(ctx, booking.RoomKey{Building: "HQ", Room: "missing"})
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestStore_ListResourcesFiltersByBuilding(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, r := range []*booking.Resource{
		{ID: "projector-hq", ResourceType: "av", Mode: booking.ModeUnique, HomeBuilding: "HQ"},
		{ID: "projector-nyc", ResourceType: "av", Mode: booking.ModeUnique, HomeBuilding: "NYC"},
		{ID: "coffee", ResourceType: "catering", Mode: booking.ModeUnlimited},
	} {
		require.NoError(t, s.SaveResource(ctx, r))
	}

	list, err := s.ListResources(ctx, booking.CandidateFilter{Building: "HQ"})
	require.NoError(t, err)
	ids := make([]string, len(list))
	for i, r := range list {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"coffee", "projector-hq"}, ids)

	av, err := s.ListResources(ctx, booking.CandidateFilter{ResourceType: "av"})
	require.NoError(t, err)
	assert.Len(t, av, 2)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func TestStore_SaveAndLoadReservation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	p := booking.SameDay(day, at(9, 0), at(11, 0))
	r := confirmedRoom(boardroom, p)
	r.Attendees = []string{"ann@example.com", "guest@partner.org"}
	r.Resources = []*booking.Allocation{booking.NewResourceAllocation("chairs", 4, p)}
	r.Resources[0].Status = booking.StatusConfirmed
	r.Resources[0].Room = boardroom.Location()
	require.NoError(t, s.SaveReservation(ctx, r))
	require.NotZero(t, r.ID)
	require.NotZero(t, r.Rooms[0].ID)
	assert.Equal(t, r.ID, r.Resources[0].ReservationID)

	got, err := s.Reservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Planning", got.Name)
	assert.Equal(t, []string{"ann@example.com", "guest@partner.org"}, got.Attendees)
	assert.True(t, got.Period.Equal(p))
	assert.True(t, got.Cost.Equal(decimal.NewFromInt(10)))
	require.Len(t, got.Rooms, 1)
	require.Len(t, got.Resources, 1)
	assert.Equal(t, 4, got.Resources[0].Quantity)
	assert.Equal(t, boardroom, got.Rooms[0].Room)

	// Updating cancels the room; the allocation keeps its id.
	cancelled := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	got.Rooms[0].Status = booking.StatusCancelled
	got.Rooms[0].CancelledAt = &cancelled
	require.NoError(t, s.SaveReservation(ctx, got))

	a, err := s.Allocation(ctx, got.Rooms[0].ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, a.Status)
	require.NotNil(t, a.CancelledAt)
	assert.True(t, cancelled.Equal(*a.CancelledAt))

	_, err = s.Reservation(ctx, 999)
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestStore_MultiDayPeriodKeepsEndDate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	p := booking.TimePeriod{StartDate: day, EndDate: day.AddDate(0, 0, 2), StartTime: at(9, 0), EndTime: at(17, 0)}
	r := confirmedRoom(boardroom, p)
	require.NoError(t, s.SaveReservation(ctx, r))

	got, err := s.Reservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, day.AddDate(0, 0, 2), got.Rooms[0].Period.EndDate)

	// The middle day sees the allocation.
	active, err := s.ActiveAllocations(ctx, booking.KindRoom, day.AddDate(0, 0, 1), 0)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestStore_ActiveAllocationsSkipsExcludedAndEnded(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := booking.SameDay(day, at(9, 0), at(10, 0))

	mine := confirmedRoom(booking.RoomKey{Building: "HQ", Room: "1"}, p)
	theirs := confirmedRoom(booking.RoomKey{Building: "HQ", Room: "2"}, p)
	theirs.Rooms[0].Status = booking.StatusAwaitingApproval
	gone := confirmedRoom(booking.RoomKey{Building: "HQ", Room: "3"}, p)
	gone.Rooms[0].Status = booking.StatusCancelled
	for _, r := range []*booking.Reservation{mine, theirs, gone} {
		require.NoError(t, s.SaveReservation(ctx, r))
	}

	active, err := s.ActiveAllocations(ctx, booking.KindRoom, day, mine.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "2", active[0].Room.Room)

	none, err := s.ActiveAllocations(ctx, booking.KindResource, day, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	elapsed, err := s.ListElapsed(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, elapsed, 3)

	notYet, err := s.ListElapsed(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, notYet)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := booking.SameDay(day, at(9, 0), at(10, 0))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx booking.Store) error {
		require.NoError(t, tx.SaveReservation(ctx, confirmedRoom(boardroom, p)))

		// The write is visible inside the transaction.
		active, err := tx.ActiveAllocations(ctx, booking.KindRoom, day, 0)
		require.NoError(t, err)
		assert.Len(t, active, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	active, err := s.ActiveAllocations(ctx, booking.KindRoom, day, 0)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveRoomArrangement(ctx, &booking.RoomArrangement{Key: boardroom}))
	require.NoError(t, s.SaveReservation(ctx, confirmedRoom(boardroom, booking.AllDay(day))))

	require.NoError(t, s.Reset(ctx))

	rooms, err := s.ListRoomArrangements(ctx, booking.CandidateFilter{})
	require.NoError(t, err)
	assert.Empty(t, rooms)
	active, err := s.ActiveAllocations(ctx, booking.KindRoom, day, 0)
	require.NoError(t, err)
	assert.Empty(t, active)
}

// =============================================================================
// ENGINE ON SQLITE
// =============================================================================

func TestEngine_DoubleBookingRejectedOnSQLite(t *testing.T) {
	// GIVEN: A room confirmed 09:00-11:00 in the SQLite store
	// WHEN: A second reservation asks for 10:00-12:00
	// THEN: The second save fails with a conflict and nothing is written

	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveRoomArrangement(ctx, &booking.RoomArrangement{
		Key:      boardroom,
		Capacity: 10,
		Terms: booking.Terms{
			Reservable:  true,
			CostPerUnit: decimal.RequireFromString("5"),
			CostUnit:    booking.CostPerHour,
		},
	}))

	clock, err := booking.NewZoneClock(nil, "UTC")
	require.NoError(t, err)
	clock.Now = func() time.Time { return time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC) }
	engine := booking.NewEngine(s, clock, booking.Options{Logger: slog.New(slog.DiscardHandler)})

	rc := booking.RequestContext{UserID: "ann"}
	first := booking.SameDay(day, at(9, 0), at(11, 0))
	saved, err := engine.CreateOrUpdateReservation(ctx, rc, &booking.Reservation{
		Period: first,
		Rooms:  []*booking.Allocation{booking.NewRoomAllocation(boardroom, first)},
	})
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, saved.Status)
	assert.True(t, saved.Cost.Equal(decimal.NewFromInt(10)))

	second := booking.SameDay(day, at(10, 0), at(12, 0))
	_, err = engine.CreateOrUpdateReservation(ctx, rc, &booking.Reservation{
		Period: second,
		Rooms:  []*booking.Allocation{booking.NewRoomAllocation(boardroom, second)},
	})
	assert.ErrorIs(t, err, booking.ErrReservableNotAvailable)

	active, err := s.ActiveAllocations(ctx, booking.KindRoom, day, 0)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
