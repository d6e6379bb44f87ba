/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with a realistic
  catalog and, for some, a few reservations. Each scenario demonstrates a
  specific part of the engine.

AVAILABLE SCENARIOS:
  headquarters:   One building with rooms, desks and shared resources
  busy-day:       Headquarters plus tomorrow's bookings, one pending approval
  two-buildings:  Two sites, projectors that cannot travel between them

HOW SCENARIOS WORK:
 1. Reset the store when it supports it
 2. Parse catalog JSON presets via the factory
 3. Load rooms and resources
 4. Optionally book reservations through the engine as the service desk

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "busy-day"}

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and helpers
  - catalog/presets.go: Catalog JSON definitions
*/
package api

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/warp/reservation-engine/booking"
	"github.com/warp/reservation-engine/catalog"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "headquarters",
		Name:        "Headquarters",
		Description: "Conference rooms, an approval-gated boardroom, desks and shared resources",
	},
	{
		ID:          "busy-day",
		Name:        "Busy Day",
		Description: "Headquarters with tomorrow's bookings, including one awaiting approval",
	},
	{
		ID:          "two-buildings",
		Name:        "Two Buildings",
		Description: "HQ and NYC, each with a projector that stays in its building",
	},
}

// Resetter is implemented by stores that can drop all their data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// demoCaller books scenario reservations. Service desk bypasses lead times.
var demoCaller = booking.RequestContext{
	UserID: "demo",
	Email:  "servicedesk@example.com",
	Roles:  []string{booking.RoleServiceDesk},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", errors.Newf("scenario %q", req.ScenarioID))
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		h.writeDomainError(w, r, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// LoadScenarioByID is LoadScenario without HTTP. Used for SEED_DEMO.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if resetter, ok := h.Store.(Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return errors.Wrap(err, "reset store")
		}
	}
	h.currentScenario = ""

	var err error
	switch id {
	case "headquarters":
		err = h.loadCatalog(ctx, catalog.HeadquartersJSON("HQ"))
	case "busy-day":
		err = h.loadBusyDayScenario(ctx)
	case "two-buildings":
		err = h.loadTwoBuildingsScenario(ctx)
	default:
		return errors.Newf("unknown scenario %q", id)
	}
	if err != nil {
		return errors.Wrapf(err, "scenario %s", id)
	}

	h.currentScenario = id
	h.Logger.InfoContext(ctx, "scenario loaded", "scenario", id)
	return nil
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadCatalog(ctx context.Context, js string) error {
	cat, err := h.Factory.ParseCatalog(js)
	if err != nil {
		return err
	}
	return h.Factory.Load(ctx, h.Store, cat)
}

func (h *Handler) loadBusyDayScenario(ctx context.Context) error {
	if err := h.loadCatalog(ctx, catalog.HeadquartersJSON("HQ")); err != nil {
		return err
	}

	tomorrow := booking.ClearTime(h.Now()).AddDate(0, 0, 1)
	at := func(hour int) booking.TimeOfDay { return booking.NewTimeOfDay(hour, 0, 0) }

	standup := &booking.Reservation{
		Name:        "Team standup",
		RequestedBy: "alice",
		Email:       "alice@example.com",
		Period:      booking.SameDay(tomorrow, at(9), at(10)),
		Attendees:   []string{"alice@example.com", "bob@example.com", "guest@partner.test"},
		Rooms: []*booking.Allocation{
			booking.NewRoomAllocation(booking.RoomKey{
				Building: "HQ", Floor: "1", Room: "101", Config: "STD", ArrangeType: "CONFERENCE",
			}, booking.TimePeriod{}),
		},
		Resources: []*booking.Allocation{
			booking.NewResourceAllocation("projector-HQ", 1, booking.TimePeriod{}),
			booking.NewResourceAllocation("coffee", 6, booking.TimePeriod{}),
		},
	}

	board := &booking.Reservation{
		Name:        "Board review",
		RequestedBy: "carol",
		Email:       "carol@example.com",
		Period:      booking.SameDay(tomorrow, at(14), at(17)),
		Rooms: []*booking.Allocation{
			booking.NewRoomAllocation(booking.RoomKey{
				Building: "HQ", Floor: "5", Room: "501", Config: "STD", ArrangeType: "BOARDROOM",
			}, booking.TimePeriod{}),
		},
		Resources: []*booking.Allocation{
			booking.NewResourceAllocation("chairs", 8, booking.TimePeriod{}),
		},
	}

	for _, res := range []*booking.Reservation{standup, board} {
		if _, err := h.Engine.CreateOrUpdateReservation(ctx, demoCaller, res); err != nil {
			return errors.Wrapf(err, "book %q", res.Name)
		}
	}
	return nil
}

func (h *Handler) loadTwoBuildingsScenario(ctx context.Context) error {
	for _, building := range []string{"HQ", "NYC"} {
		cat, err := h.Factory.ParseCatalog(catalog.HeadquartersJSON(building))
		if err != nil {
			return err
		}
		// Shared resources are global; keep one copy.
		if building != "HQ" {
			cat.Resources = cat.Resources[:1]
		}
		if err := h.Factory.Load(ctx, h.Store, cat); err != nil {
			return err
		}
	}
	return nil
}
