package booking_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reservation-engine/booking"
)

func refsOf(list []booking.Reservable) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.Ref().String()
	}
	return out
}

func existing(kind booking.Kind, ref string, qty int, p booking.TimePeriod) booking.Allocation {
	a := booking.Allocation{Kind: kind, Quantity: qty, Period: p, Status: booking.StatusConfirmed}
	if kind == booking.KindResource {
		a.ResourceID = ref
	}
	return a
}

// =============================================================================
// PURE EVALUATION
// =============================================================================

func TestEvaluate_LimitedResource(t *testing.T) {
	chairs := &booking.Resource{ID: "chairs", Mode: booking.ModeLimited, Quantity: 10, Terms: booking.Terms{Reservable: true}}
	p := slot(at(9, 0), at(11, 0))
	held := []booking.Allocation{
		existing(booking.KindResource, "chairs", 4, slot(at(8, 0), at(10, 0))),
		existing(booking.KindResource, "chairs", 3, slot(at(10, 30), at(12, 0))),
		// Touching only, does not count.
		existing(booking.KindResource, "chairs", 5, slot(at(11, 0), at(12, 0))),
	}

	assert.Equal(t, booking.NotAvailableReason(""), booking.Evaluate(chairs, p, 3, false, held))
	assert.Equal(t, booking.ReasonQuantityExceeded, booking.Evaluate(chairs, p, 4, false, held))
	assert.Equal(t, booking.ReasonQuantityExceeded, booking.Evaluate(chairs, p, 11, false, nil))
}

func TestEvaluate_UnlimitedResourceNeverConflicts(t *testing.T) {
	coffee := &booking.Resource{ID: "coffee", Mode: booking.ModeUnlimited, Terms: booking.Terms{Reservable: true}}
	p := slot(at(9, 0), at(11, 0))
	held := []booking.Allocation{existing(booking.KindResource, "coffee", 500, p)}

	assert.Equal(t, booking.NotAvailableReason(""), booking.Evaluate(coffee, p, 200, false, held))
}

func TestEvaluate_UniqueResourceWithBlocks(t *testing.T) {
	van := &booking.Resource{ID: "van", Mode: booking.ModeUnique, Terms: booking.Terms{Reservable: true, PreBlock: 30}}
	held := []booking.Allocation{existing(booking.KindResource, "van", 1, slot(at(9, 0), at(11, 0)))}

	// The new booking's 30 minute preparation overlaps the previous one.
	assert.Equal(t, booking.ReasonConflict, booking.Evaluate(van, slot(at(11, 15), at(12, 0)), 1, false, held))
	assert.Equal(t, booking.NotAvailableReason(""), booking.Evaluate(van, slot(at(11, 30), at(12, 0)), 1, false, held))
}

func TestEvaluate_OpenHours(t *testing.T) {
	room := &booking.RoomArrangement{
		Key:   boardroom,
		Terms: booking.Terms{Reservable: true, DayStart: at(8, 0), DayEnd: at(18, 0)},
	}

	assert.Equal(t, booking.NotAvailableReason(""), booking.Evaluate(room, slot(at(8, 0), at(18, 0)), 1, false, nil))
	assert.Equal(t, booking.ReasonOutsideOpenHours, booking.Evaluate(room, slot(at(7, 0), at(9, 0)), 1, false, nil))
	// Partial fit is enough when allowed.
	assert.Equal(t, booking.NotAvailableReason(""), booking.Evaluate(room, slot(at(7, 0), at(9, 0)), 1, true, nil))
	assert.Equal(t, booking.ReasonOutsideOpenHours, booking.Evaluate(room, slot(at(19, 0), at(20, 0)), 1, true, nil))
}

func TestAvailabilityQuery_IsImmutable(t *testing.T) {
	base := booking.NewAvailabilityQuery(booking.KindRoom, slot(at(9, 0), at(10, 0)))
	recurring := base.WithOccurrences(testDay, testDay.AddDate(0, 0, 7)).WithQuantity(3)

	assert.False(t, base.IsRecurring())
	assert.Equal(t, 1, base.Quantity())
	assert.True(t, recurring.IsRecurring())
	assert.Equal(t, 3, recurring.Quantity())

	periods := recurring.Periods()
	require.Len(t, periods, 2)
	assert.Equal(t, testDay.AddDate(0, 0, 7), periods[1].StartDate)
	assert.Equal(t, at(9, 0), periods[1].StartTime)
}

// =============================================================================
// SEARCH
// =============================================================================

func TestFindAvailable_ExcludesBookedRooms(t *testing.T) {
	f := newFixture(t, nil)
	f.addRoom(t, boardroom, 10, booking.Terms{})
	f.addRoom(t, huddle, 4, booking.Terms{})
	f.book(t, employee, roomReservation(huddle, slot(at(9, 0), at(10, 0))))

	q := booking.NewAvailabilityQuery(booking.KindRoom, slot(at(9, 30), at(10, 30)))
	free, err := f.engine.FindAvailable(f.ctx, employee, q)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{booking.RoomRef(boardroom).String()}, refsOf(free)); diff != "" {
		t.Errorf("available rooms mismatch (-want +got):\n%s", diff)
	}
}

func TestFindAvailable_RecurringIsIntersection(t *testing.T) {
	// GIVEN: Rooms A and B, A booked only on the second date of the series
	// WHEN: Searching the recurring series
	// THEN: Only B is offered

	f := newFixture(t, nil)
	f.addRoom(t, boardroom, 10, booking.Terms{})
	f.addRoom(t, huddle, 4, booking.Terms{})

	second := testDay.AddDate(0, 0, 7)
	f.book(t, employee, roomReservation(boardroom, booking.SameDay(second, at(9, 0), at(10, 0))))

	q := booking.NewAvailabilityQuery(booking.KindRoom, slot(at(9, 0), at(10, 0))).
		WithOccurrences(testDay, second, testDay.AddDate(0, 0, 14))
	free, err := f.engine.FindAvailable(f.ctx, employee, q)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{booking.RoomRef(huddle).String()}, refsOf(free)); diff != "" {
		t.Errorf("available rooms mismatch (-want +got):\n%s", diff)
	}
}

func TestFindAvailable_MultiDayRoomSearchIsEmpty(t *testing.T) {
	f := newFixture(t, nil)
	f.addRoom(t, boardroom, 10, booking.Terms{})

	p := booking.TimePeriod{StartDate: testDay, EndDate: testDay.AddDate(0, 0, 2), StartTime: at(9, 0), EndTime: at(17, 0)}
	free, err := f.engine.FindAvailable(f.ctx, employee, booking.NewAvailabilityQuery(booking.KindRoom, p))
	require.NoError(t, err)
	assert.Empty(t, free)

	// A single all-day event is still searchable.
	allDay := booking.TimePeriod{StartDate: testDay, EndDate: testDay.AddDate(0, 0, 1)}
	free, err = f.engine.FindAvailable(f.ctx, employee, booking.NewAvailabilityQuery(booking.KindRoom, allDay))
	require.NoError(t, err)
	assert.Len(t, free, 1)
}

func TestFindAvailable_ZonedQueryConvertsPerBuilding(t *testing.T) {
	// GIVEN: Tokyo building, boardroom booked 09:00-10:00 Tokyo time
	// WHEN: Searching 00:00-01:00 UTC without naming a building
	// THEN: The window is read in Tokyo time and only the huddle room is free

	f := newFixture(t, map[string]string{"HQ": "Asia/Tokyo"})
	f.addRoom(t, boardroom, 10, booking.Terms{})
	f.addRoom(t, huddle, 4, booking.Terms{})
	f.book(t, employee, roomReservation(boardroom, slot(at(9, 0), at(10, 0))))

	p := slot(at(0, 0), at(1, 0))
	p.TimeZone = "UTC"
	free, err := f.engine.FindAvailable(f.ctx, employee, booking.NewAvailabilityQuery(booking.KindRoom, p))
	require.NoError(t, err)

	if diff := cmp.Diff([]string{booking.RoomRef(huddle).String()}, refsOf(free)); diff != "" {
		t.Errorf("available rooms mismatch (-want +got):\n%s", diff)
	}
}

func TestFindAvailable_ZonedQueryCrossingMidnightIsEmpty(t *testing.T) {
	// GIVEN: Tokyo building
	// WHEN: Searching 13:00-16:00 UTC, which is 22:00-01:00 in Tokyo
	// THEN: No room is offered

	f := newFixture(t, map[string]string{"HQ": "Asia/Tokyo"})
	f.addRoom(t, boardroom, 10, booking.Terms{})

	p := slot(at(13, 0), at(16, 0))
	p.TimeZone = "UTC"
	free, err := f.engine.FindAvailable(f.ctx, employee, booking.NewAvailabilityQuery(booking.KindRoom, p))
	require.NoError(t, err)
	assert.Empty(t, free)
}

func TestFindAvailable_UntimedQueryListsEligible(t *testing.T) {
	f := newFixture(t, nil)
	f.addRoom(t, boardroom, 10, booking.Terms{})
	f.addRoom(t, huddle, 4, booking.Terms{SecurityGroups: []string{"executives"}})
	f.book(t, employee, roomReservation(boardroom, slot(at(9, 0), at(10, 0))))

	q := booking.NewAvailabilityQuery(booking.KindRoom, booking.TimePeriod{})
	free, err := f.engine.FindAvailable(f.ctx, employee, q)
	require.NoError(t, err)

	// Bookings are ignored without a time; security is not.
	if diff := cmp.Diff([]string{booking.RoomRef(boardroom).String()}, refsOf(free)); diff != "" {
		t.Errorf("eligible rooms mismatch (-want +got):\n%s", diff)
	}
}

func TestFindAvailable_FilterAndOrdering(t *testing.T) {
	f := newFixture(t, nil)
	big := booking.RoomKey{Building: "HQ", Floor: "3", Room: "301", Config: "STD", ArrangeType: "CONFERENCE"}
	f.addRoom(t, big, 40, booking.Terms{})
	f.addRoom(t, boardroom, 10, booking.Terms{})
	f.addRoom(t, huddle, 4, booking.Terms{})

	q := booking.NewAvailabilityQuery(booking.KindRoom, slot(at(9, 0), at(10, 0))).
		WithFilter(booking.CandidateFilter{Building: "HQ", MinCapacity: 5})
	free, err := f.engine.FindAvailable(f.ctx, employee, q)
	require.NoError(t, err)

	// Smallest adequate room first.
	want := []string{booking.RoomRef(boardroom).String(), booking.RoomRef(big).String()}
	if diff := cmp.Diff(want, refsOf(free)); diff != "" {
		t.Errorf("room order mismatch (-want +got):\n%s", diff)
	}
}

func TestFindAvailable_LimitedResourceQuantity(t *testing.T) {
	f := newFixture(t, nil)
	f.addRoom(t, boardroom, 10, booking.Terms{})
	f.addResource(t, "chairs", booking.ModeLimited, 5, booking.Terms{})
	f.addResource(t, "flipchart", booking.ModeUnique, 1, booking.Terms{})

	r := roomReservation(boardroom, slot(at(9, 0), at(11, 0)))
	r.Resources = []*booking.Allocation{booking.NewResourceAllocation("chairs", 4, r.Period)}
	f.book(t, employee, r)

	q := booking.NewAvailabilityQuery(booking.KindResource, slot(at(10, 0), at(11, 0))).WithQuantity(2)
	free, err := f.engine.FindAvailable(f.ctx, employee, q)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{booking.ResourceRef("flipchart").String()}, refsOf(free)); diff != "" {
		t.Errorf("available resources mismatch (-want +got):\n%s", diff)
	}

	free, err = f.engine.FindAvailable(f.ctx, employee, q.WithQuantity(1))
	require.NoError(t, err)
	assert.Len(t, free, 2)
}

func TestFindAvailable_PastSlotIsNotOffered(t *testing.T) {
	f := newFixture(t, nil)
	f.addRoom(t, boardroom, 10, booking.Terms{})

	yesterday := booking.SameDay(booking.Date(2025, time.March, 9), at(9, 0), at(10, 0))
	free, err := f.engine.FindAvailable(f.ctx, employee, booking.NewAvailabilityQuery(booking.KindRoom, yesterday))
	require.NoError(t, err)
	assert.Empty(t, free)
}
