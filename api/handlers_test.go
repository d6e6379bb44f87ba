/*
handlers_test.go - HTTP tests for the reservation API

Tests for:
- Reservation create/read/update/cancel over HTTP
- Status code mapping of booking errors (400/403/404/409)
- Approval flow with role headers
- Catalog listing and upload, scenarios, admin close-out
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reservation-engine/api"
	"github.com/warp/reservation-engine/booking"
	"github.com/warp/reservation-engine/booking/store"
	"github.com/warp/reservation-engine/catalog"
	"github.com/warp/reservation-engine/factory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// now is two days before the booked date, 08:00 UTC.
var now = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

var (
	asEmployee = map[string]string{"X-User-ID": "ann", "X-User-Email": "ann@example.com"}
	asDesk     = map[string]string{"X-User-ID": "desk", "X-User-Roles": booking.RoleServiceDesk}
	asApprover = map[string]string{"X-User-ID": "boss", "X-User-Roles": "approver"}
)

func newTestServer(t *testing.T) (*api.Handler, http.Handler) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	st := store.NewTxMemory()
	clock, err := booking.NewZoneClock(nil, "UTC")
	require.NoError(t, err)
	clock.Now = func() time.Time { return now }

	engine := booking.NewEngine(st, clock, booking.Options{
		Directory: booking.DomainDirectory{Domains: []string{"example.com"}},
		Logger:    logger,
	})
	h := api.NewHandler(engine, st, logger)
	h.Now = func() time.Time { return now }
	require.NoError(t, h.LoadScenarioByID(context.Background(), "headquarters"))

	return h, api.NewRouter(h, []string{"*"})
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func room101(start, end string) api.ReservationDTO {
	return api.ReservationDTO{
		Name:   "Planning",
		Period: api.PeriodDTO{StartDate: "2025-03-12", StartTime: start, EndTime: end},
		Rooms: []api.AllocationDTO{{
			Building: "HQ", Floor: "1", Room: "101", Config: "STD", ArrangeType: "CONFERENCE",
		}},
	}
}

func boardroom501() api.ReservationDTO {
	return api.ReservationDTO{
		Name:   "Board review",
		Period: api.PeriodDTO{StartDate: "2025-03-12", StartTime: "14:00", EndTime: "17:00"},
		Rooms: []api.AllocationDTO{{
			Building: "HQ", Floor: "5", Room: "501", Config: "STD", ArrangeType: "BOARDROOM",
		}},
	}
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func TestAPI_CreateAndGetReservation(t *testing.T) {
	// GIVEN: Conference room 101 at 5.00/hour
	// WHEN: Booking 09:00-11:00 and reading it back
	// THEN: 201 with a confirmed room costing 10.00, then 200 on GET
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/reservations", room101("09:00", "11:00"), asEmployee)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody[api.ReservationDTO](t, rec)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "10.00", created.Cost)
	require.Len(t, created.Rooms, 1)
	assert.Equal(t, string(booking.StatusConfirmed), created.Rooms[0].Status)
	assert.Equal(t, "ann", created.CreatedBy)

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/api/reservations/%d", created.ID), nil, asEmployee)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[api.ReservationDTO](t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "09:00", got.Period.StartTime)
	assert.Equal(t, "11:00", got.Period.EndTime)
}

func TestAPI_DoubleBookingIsConflict(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/reservations", room101("09:00", "11:00"), asEmployee)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/reservations", room101("10:00", "12:00"), asEmployee)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	resp := decodeBody[api.ErrorResponse](t, rec)
	assert.Equal(t, string(booking.ReasonConflict), resp.Reason)
}

func TestAPI_UpdateReservationMovesSlot(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/reservations", room101("09:00", "11:00"), asEmployee)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[api.ReservationDTO](t, rec)

	update := created
	update.Period = api.PeriodDTO{StartDate: "2025-03-12", StartTime: "13:00", EndTime: "14:00"}
	update.Rooms[0].Period = &update.Period

	rec = do(t, router, http.MethodPut, fmt.Sprintf("/api/reservations/%d", created.ID), update, asEmployee)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[api.ReservationDTO](t, rec)
	assert.Equal(t, created.Rooms[0].ID, updated.Rooms[0].ID)
	assert.Equal(t, "5.00", updated.Cost)

	// The old slot is free again.
	rec = do(t, router, http.MethodPost, "/api/reservations", room101("09:00", "11:00"), asEmployee)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAPI_CancelReservation(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/reservations", room101("09:00", "11:00"), asEmployee)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[api.ReservationDTO](t, rec)

	rec = do(t, router, http.MethodPost, fmt.Sprintf("/api/reservations/%d/cancel", created.ID),
		api.CommentRequest{Comment: "moved online"}, asEmployee)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cancelled := decodeBody[api.ReservationDTO](t, rec)
	assert.Equal(t, string(booking.StatusCancelled), cancelled.Status)
	assert.Equal(t, string(booking.StatusCancelled), cancelled.Rooms[0].Status)
	assert.NotEmpty(t, cancelled.Rooms[0].CancelledAt)
	assert.Equal(t, "0.00", cancelled.Cost)
}

func TestAPI_ErrorMapping(t *testing.T) {
	_, router := newTestServer(t)

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/reservations", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/reservations/abc", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/reservations/999", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no rooms", func(t *testing.T) {
		body := room101("09:00", "10:00")
		body.Rooms = nil
		rec := do(t, router, http.MethodPost, "/api/reservations", body, asEmployee)
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.Equal(t, string(booking.InvalidNoRooms), decodeBody[api.ErrorResponse](t, rec).Reason)
	})

	t.Run("bad time", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/reservations", room101("9am", "10:00"), asEmployee)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("boardroom without group", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/reservations", boardroom501(), asEmployee)
		require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		assert.Equal(t, string(booking.ReasonAccessDenied), decodeBody[api.ErrorResponse](t, rec).Reason)
	})
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func TestAPI_ApprovalFlow(t *testing.T) {
	// GIVEN: The boardroom requires approval
	// WHEN: The service desk books it, an employee then an approver approve
	// THEN: Awaiting approval, 403 for the employee, confirmed after approval
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/reservations", boardroom501(), asDesk)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[api.ReservationDTO](t, rec)
	require.Len(t, created.Rooms, 1)
	assert.Equal(t, string(booking.StatusAwaitingApproval), created.Rooms[0].Status)

	path := fmt.Sprintf("/api/allocations/%d/approve", created.Rooms[0].ID)

	rec = do(t, router, http.MethodPost, path, nil, asEmployee)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, path, api.CommentRequest{Comment: "ok"}, asApprover)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decodeBody[api.ReservationDTO](t, rec)
	assert.Equal(t, string(booking.StatusConfirmed), approved.Rooms[0].Status)

	// Approving twice is an illegal transition.
	rec = do(t, router, http.MethodPost, path, nil, asApprover)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestAPI_RejectAllocation(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/reservations", boardroom501(), asDesk)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[api.ReservationDTO](t, rec)

	rec = do(t, router, http.MethodPost, fmt.Sprintf("/api/allocations/%d/reject", created.Rooms[0].ID), nil, asApprover)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rejected := decodeBody[api.ReservationDTO](t, rec)
	assert.Equal(t, string(booking.StatusRejected), rejected.Rooms[0].Status)
	assert.Equal(t, "0.00", rejected.Rooms[0].Cost)
}

func TestAPI_CalculateCost(t *testing.T) {
	_, router := newTestServer(t)

	period := api.PeriodDTO{StartDate: "2025-03-12", StartTime: "09:00", EndTime: "11:30"}
	rec := do(t, router, http.MethodPost, "/api/allocations/cost", api.AllocationDTO{
		Kind: "room", Building: "HQ", Floor: "1", Room: "101", Config: "STD", ArrangeType: "CONFERENCE",
		Period: &period,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	// 2.5 hours round up to 3 billable hours.
	assert.Equal(t, "15.00", decodeBody[api.CostDTO](t, rec).Cost)

	rec = do(t, router, http.MethodPost, "/api/allocations/cost", api.AllocationDTO{
		Kind: "resource", ResourceID: "chairs", Quantity: 12, Period: &period,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "12.00", decodeBody[api.CostDTO](t, rec).Cost)

	rec = do(t, router, http.MethodPost, "/api/allocations/cost", api.AllocationDTO{Kind: "car"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// AVAILABILITY
// =============================================================================

func TestAPI_SearchAvailability(t *testing.T) {
	_, router := newTestServer(t)

	search := api.AvailabilityRequest{
		Kind:        "room",
		Period:      api.PeriodDTO{StartDate: "2025-03-12", StartTime: "09:00", EndTime: "10:00"},
		Building:    "HQ",
		MinCapacity: 8,
	}
	rooms := func(headers map[string]string) []string {
		rec := do(t, router, http.MethodPost, "/api/availability/search", search, headers)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out []string
		for _, r := range decodeBody[[]api.ReservableDTO](t, rec) {
			out = append(out, r.Room)
		}
		return out
	}

	// The boardroom is limited to executives; small rooms and desks are too small.
	assert.Equal(t, []string{"101"}, rooms(asEmployee))
	assert.ElementsMatch(t, []string{"101", "501"}, rooms(asDesk))

	rec := do(t, router, http.MethodPost, "/api/reservations", room101("09:00", "10:00"), asEmployee)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Empty(t, rooms(asEmployee))
}

func TestAPI_CheckAvailability(t *testing.T) {
	_, router := newTestServer(t)

	check := api.CheckAvailabilityRequest{
		Reservable: api.RefDTO{Kind: "resource", ResourceID: "projector-HQ"},
		Period:     api.PeriodDTO{StartDate: "2025-03-12", StartTime: "09:00", EndTime: "10:00"},
	}
	available := func() bool {
		rec := do(t, router, http.MethodPost, "/api/availability/check", check, asEmployee)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decodeBody[api.CheckAvailabilityResponse](t, rec).Available
	}

	assert.True(t, available())

	body := room101("09:00", "10:00")
	body.Resources = []api.AllocationDTO{{ResourceID: "projector-HQ", Quantity: 1}}
	rec := do(t, router, http.MethodPost, "/api/reservations", body, asEmployee)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[api.ReservationDTO](t, rec)

	assert.False(t, available())

	// Checking on behalf of the holder ignores its own allocations.
	check.ReservationID = created.ID
	assert.True(t, available())

	check.Reservable = api.RefDTO{Kind: "resource", ResourceID: "missing"}
	rec = do(t, router, http.MethodPost, "/api/availability/check", check, asEmployee)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestAPI_ListCatalog(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/rooms?building=HQ&arrange_type=DESK", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	desks := decodeBody[[]api.ReservableDTO](t, rec)
	assert.Len(t, desks, 3)

	rec = do(t, router, http.MethodGet, "/api/resources?resource_type=furniture", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resources := decodeBody[[]api.ReservableDTO](t, rec)
	require.Len(t, resources, 1)
	assert.Equal(t, "chairs", resources[0].ResourceID)
	assert.Equal(t, 30, resources[0].Quantity)

	rec = do(t, router, http.MethodGet, "/api/rooms?min_capacity=lots", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/catalog", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cat := decodeBody[factory.CatalogJSON](t, rec)
	assert.Len(t, cat.Rooms, 6)
	assert.Len(t, cat.Resources, 3)
}

func TestAPI_UploadCatalog(t *testing.T) {
	_, router := newTestServer(t)

	var upload factory.CatalogJSON
	require.NoError(t, json.Unmarshal([]byte(catalog.ConferenceRoomJSON("NYC", "3", "301", 6, "7.50")), &upload))

	rec := do(t, router, http.MethodPost, "/api/catalog", upload, asEmployee)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/catalog", upload, asDesk)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/rooms?building=NYC", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rooms := decodeBody[[]api.ReservableDTO](t, rec)
	require.Len(t, rooms, 1)
	assert.Equal(t, "301", rooms[0].Room)

	upload.Rooms[0].Capacity = -1
	rec = do(t, router, http.MethodPost, "/api/catalog", upload, asDesk)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ADMIN AND SCENARIOS
// =============================================================================

func TestAPI_CloseElapsed(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/reservations", room101("09:00", "11:00"), asEmployee)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[api.ReservationDTO](t, rec)

	rec = do(t, router, http.MethodPost, "/api/admin/close-elapsed", nil, asEmployee)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Nothing has ended yet.
	rec = do(t, router, http.MethodPost, "/api/admin/close-elapsed", nil, asDesk)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, api.CloseElapsedResponse{Date: "2025-03-10", Closed: 0}, decodeBody[api.CloseElapsedResponse](t, rec))

	rec = do(t, router, http.MethodPost, "/api/admin/close-elapsed", api.CloseElapsedRequest{Date: "2025-03-13"}, asDesk)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeBody[api.CloseElapsedResponse](t, rec).Closed)

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/api/reservations/%d", created.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	closed := decodeBody[api.ReservationDTO](t, rec)
	assert.Equal(t, string(booking.StatusClosed), closed.Rooms[0].Status)
}

func TestAPI_Scenarios(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]api.ScenarioDTO](t, rec), 3)

	rec = do(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "busy-day"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "busy-day", decodeBody[api.ScenarioDTO](t, rec).ID)

	// busy-day books the standup (id 1) and the board review (id 2).
	rec = do(t, router, http.MethodGet, "/api/reservations/2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	board := decodeBody[api.ReservationDTO](t, rec)
	assert.Equal(t, string(booking.StatusAwaitingApproval), board.Rooms[0].Status)

	rec = do(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "two-buildings"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/reservations/1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/resources?resource_type=av", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]api.ReservableDTO](t, rec), 2)
}
