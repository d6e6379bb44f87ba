/*
handlers.go - HTTP API handlers for the reservation engine

PURPOSE:
  Exposes the booking engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to booking.Engine.

ENDPOINTS:
  Availability:
    POST   /api/availability/search          Find free rooms or resources
    POST   /api/availability/check           Is one reservable free?

  Reservations:
    POST   /api/reservations                 Create reservation
    GET    /api/reservations/{id}            Get reservation
    PUT    /api/reservations/{id}            Update reservation
    POST   /api/reservations/{id}/cancel     Cancel whole reservation
    POST   /api/reservations/recurring       Book a template on many dates

  Allocations:
    POST   /api/allocations/cost             Price an unsaved allocation
    POST   /api/allocations/{id}/cancel      Cancel one allocation
    POST   /api/allocations/{id}/approve     Approve (approver role)
    POST   /api/allocations/{id}/reject      Reject (approver role)

  Catalog:
    GET    /api/rooms                        List room arrangements
    GET    /api/resources                    List resources
    GET    /api/catalog                      Whole catalog as JSON
    POST   /api/catalog                      Upsert catalog from JSON

  Admin:
    POST   /api/admin/close-elapsed          Close allocations that ended

  Scenarios:
    GET    /api/scenarios                    List demo scenarios
    GET    /api/scenarios/current            Currently loaded scenario
    POST   /api/scenarios/load               Load a demo scenario

CALLER IDENTITY:
  Authentication happens upstream. The gateway forwards the caller as
  headers, turned into a booking.RequestContext:
    X-User-ID, X-User-Email
    X-User-Roles   comma separated (service_desk, manager, approver)
    X-User-Groups  comma separated security groups

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, illegal transitions
  - 403: Caller lacks the role for the operation
  - 404: Reservation, allocation or reservable not found
  - 409: Reservable not available (reason code in "reason")
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/warp/reservation-engine/booking"
	"github.com/warp/reservation-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *booking.Engine
	Store   booking.TxStore
	Factory *factory.CatalogFactory
	Logger  *slog.Logger

	// Now is the clock used for admin defaults. Tests replace it.
	Now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over engine and the store it runs on.
func NewHandler(engine *booking.Engine, store booking.TxStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Engine:  engine,
		Store:   store,
		Factory: factory.NewCatalogFactory(),
		Logger:  logger,
		Now:     time.Now,
	}
}

// requestContext builds the caller identity from gateway headers.
func requestContext(r *http.Request) booking.RequestContext {
	return booking.RequestContext{
		UserID: r.Header.Get("X-User-ID"),
		Email:  r.Header.Get("X-User-Email"),
		Roles:  splitList(r.Header.Get("X-User-Roles")),
		Groups: splitList(r.Header.Get("X-User-Groups")),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// AVAILABILITY HANDLERS
// =============================================================================

// SearchAvailability returns the reservables free for the requested period.
func (h *Handler) SearchAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := req.toQuery()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid availability query", err)
		return
	}

	found, err := h.Engine.FindAvailable(r.Context(), requestContext(r), q)
	if err != nil {
		h.writeDomainError(w, r, "Availability search failed", err)
		return
	}

	dtos := make([]ReservableDTO, len(found))
	for i, res := range found {
		dtos[i] = toReservableDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CheckAvailability reports whether one reservable is free.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req CheckAvailabilityRequest
	if !decode(w, r, &req) {
		return
	}
	ref, err := req.Reservable.toRef()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reservable", err)
		return
	}
	period, err := req.Period.toPeriod()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	ctx := r.Context()
	var own *booking.Reservation
	if req.ReservationID != 0 {
		if own, err = h.Engine.Reservation(ctx, booking.ReservationID(req.ReservationID)); err != nil {
			h.writeDomainError(w, r, "Reservation not found", err)
			return
		}
	}

	ok, err := h.Engine.CheckAvailable(ctx, requestContext(r), ref, own, period)
	if err != nil {
		h.writeDomainError(w, r, "Availability check failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CheckAvailabilityResponse{Available: ok})
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// CreateReservation saves a new reservation.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req ReservationDTO
	if !decode(w, r, &req) {
		return
	}
	if req.ID != 0 {
		writeError(w, http.StatusBadRequest, "Use PUT /api/reservations/{id} to update", nil)
		return
	}
	h.saveReservation(w, r, req, 0, http.StatusCreated)
}

// UpdateReservation saves changes to an existing reservation.
func (h *Handler) UpdateReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ReservationDTO
	if !decode(w, r, &req) {
		return
	}
	h.saveReservation(w, r, req, booking.ReservationID(id), http.StatusOK)
}

func (h *Handler) saveReservation(w http.ResponseWriter, r *http.Request, req ReservationDTO, id booking.ReservationID, status int) {
	res, err := req.toReservation(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reservation", err)
		return
	}
	saved, err := h.Engine.CreateOrUpdateReservation(r.Context(), requestContext(r), res)
	if err != nil {
		h.writeDomainError(w, r, "Failed to save reservation", err)
		return
	}
	writeJSON(w, status, toReservationDTO(saved))
}

// GetReservation returns a reservation with its allocations.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.Reservation(r.Context(), booking.ReservationID(id))
	if err != nil {
		h.writeDomainError(w, r, "Reservation not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// CreateRecurringReservation books the template on every requested date.
func (h *Handler) CreateRecurringReservation(w http.ResponseWriter, r *http.Request) {
	var req RecurringReservationRequest
	if !decode(w, r, &req) {
		return
	}
	template, err := req.Template.toReservation(0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid template", err)
		return
	}
	dates, err := parseDates(req.Dates)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dates", err)
		return
	}

	saved, err := h.Engine.CreateRecurringReservation(r.Context(), requestContext(r), template, dates)
	if err != nil {
		h.writeDomainError(w, r, "Failed to book series", err)
		return
	}
	dtos := make([]ReservationDTO, len(saved))
	for i, res := range saved {
		dtos[i] = toReservationDTO(res)
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// CancelReservation cancels every active allocation of a reservation.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	comment, ok := decodeComment(w, r)
	if !ok {
		return
	}
	if err := h.Engine.CancelReservation(r.Context(), requestContext(r), booking.ReservationID(id), comment); err != nil {
		h.writeDomainError(w, r, "Failed to cancel reservation", err)
		return
	}
	h.writeReservation(w, r, booking.ReservationID(id))
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// allocationAction is the shared shape of cancel/approve/reject.
type allocationAction func(r *http.Request, rc booking.RequestContext, id booking.AllocationID, comment string) error

// CancelAllocation cancels one allocation.
func (h *Handler) CancelAllocation(w http.ResponseWriter, r *http.Request) {
	h.allocationAction(w, r, "Failed to cancel allocation", func(r *http.Request, rc booking.RequestContext, id booking.AllocationID, comment string) error {
		return h.Engine.CancelAllocation(r.Context(), rc, id, comment)
	})
}

// ApproveAllocation approves a pending allocation.
func (h *Handler) ApproveAllocation(w http.ResponseWriter, r *http.Request) {
	h.allocationAction(w, r, "Failed to approve allocation", func(r *http.Request, rc booking.RequestContext, id booking.AllocationID, comment string) error {
		return h.Engine.ApproveAllocation(r.Context(), rc, id, comment)
	})
}

// RejectAllocation rejects an allocation awaiting approval.
func (h *Handler) RejectAllocation(w http.ResponseWriter, r *http.Request) {
	h.allocationAction(w, r, "Failed to reject allocation", func(r *http.Request, rc booking.RequestContext, id booking.AllocationID, comment string) error {
		return h.Engine.RejectAllocation(r.Context(), rc, id, comment)
	})
}

func (h *Handler) allocationAction(w http.ResponseWriter, r *http.Request, failure string, action allocationAction) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	comment, ok := decodeComment(w, r)
	if !ok {
		return
	}
	if err := action(r, requestContext(r), booking.AllocationID(id), comment); err != nil {
		h.writeDomainError(w, r, failure, err)
		return
	}

	// Respond with the owning reservation so clients see cascaded changes.
	a, err := h.Store.Allocation(r.Context(), booking.AllocationID(id))
	if err != nil {
		h.writeDomainError(w, r, "Allocation not found", err)
		return
	}
	h.writeReservation(w, r, a.ReservationID)
}

// CalculateCost prices an allocation with its reservable's current terms.
func (h *Handler) CalculateCost(w http.ResponseWriter, r *http.Request) {
	var req AllocationDTO
	if !decode(w, r, &req) {
		return
	}
	kind := booking.Kind(req.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid kind", errors.Newf("unknown kind %q", req.Kind))
		return
	}
	a, err := req.toAllocation(kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid allocation", err)
		return
	}
	if kind == booking.KindRoom {
		a.Quantity = 1
	}

	cost, err := h.Engine.CalculateCost(r.Context(), a)
	if err != nil {
		h.writeDomainError(w, r, "Failed to calculate cost", err)
		return
	}
	writeJSON(w, http.StatusOK, CostDTO{Cost: cost.StringFixed(2)})
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListRooms returns room arrangements matching the query string filter.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	rooms, err := h.Store.ListRoomArrangements(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list rooms", err)
		return
	}
	dtos := make([]ReservableDTO, len(rooms))
	for i, room := range rooms {
		dtos[i] = toReservableDTO(room)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListResources returns resources matching the query string filter.
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	resources, err := h.Store.ListResources(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list resources", err)
		return
	}
	dtos := make([]ReservableDTO, len(resources))
	for i, res := range resources {
		dtos[i] = toReservableDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCatalog returns the whole catalog in upload format.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rooms, err := h.Store.ListRoomArrangements(ctx, booking.CandidateFilter{})
	if err != nil {
		h.writeDomainError(w, r, "Failed to list rooms", err)
		return
	}
	resources, err := h.Store.ListResources(ctx, booking.CandidateFilter{})
	if err != nil {
		h.writeDomainError(w, r, "Failed to list resources", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(&factory.Catalog{Rooms: rooms, Resources: resources}))
}

// UploadCatalog upserts rooms and resources. Elevated callers only.
func (h *Handler) UploadCatalog(w http.ResponseWriter, r *http.Request) {
	if !requestContext(r).IsElevated() {
		writeError(w, http.StatusForbidden, "Catalog changes need the service desk or manager role", nil)
		return
	}
	var req CatalogDTO
	if !decode(w, r, &req) {
		return
	}
	cat, err := h.Factory.FromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid catalog", err)
		return
	}
	if err := h.Factory.Load(r.Context(), h.Store, cat); err != nil {
		h.writeDomainError(w, r, "Failed to save catalog", err)
		return
	}
	h.Logger.InfoContext(r.Context(), "catalog loaded",
		"rooms", len(cat.Rooms), "resources", len(cat.Resources))
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(cat))
}

func filterFromQuery(r *http.Request) (booking.CandidateFilter, error) {
	q := r.URL.Query()
	f := booking.CandidateFilter{
		Building:     q.Get("building"),
		Floor:        q.Get("floor"),
		Room:         q.Get("room"),
		ArrangeType:  q.Get("arrange_type"),
		ResourceType: q.Get("resource_type"),
		ResourceIDs:  splitList(q.Get("ids")),
	}
	if s := q.Get("min_capacity"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return f, errors.Wrap(err, "min_capacity")
		}
		f.MinCapacity = n
	}
	return f, nil
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CloseElapsedRequest optionally overrides the cut-off date.
type CloseElapsedRequest struct {
	Date string `json:"date,omitempty"`
}

// CloseElapsedResponse reports how many allocations were closed.
type CloseElapsedResponse struct {
	Date   string `json:"date"`
	Closed int    `json:"closed"`
}

// CloseElapsed closes allocations whose period ended before the given date.
func (h *Handler) CloseElapsed(w http.ResponseWriter, r *http.Request) {
	if !requestContext(r).IsElevated() {
		writeError(w, http.StatusForbidden, "Closing allocations needs the service desk or manager role", nil)
		return
	}
	var req CloseElapsedRequest
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}
	today := booking.ClearTime(h.Now())
	if req.Date != "" {
		d, err := booking.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		today = d
	}

	n, err := h.Engine.CloseElapsed(r.Context(), today)
	if err != nil {
		h.writeDomainError(w, r, "Failed to close allocations", err)
		return
	}
	writeJSON(w, http.StatusOK, CloseElapsedResponse{Date: booking.FormatDate(today), Closed: n})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeReservation(w http.ResponseWriter, r *http.Request, id booking.ReservationID) {
	res, err := h.Engine.Reservation(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Reservation not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// decodeComment reads an optional CommentRequest body.
func decodeComment(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.ContentLength == 0 {
		return "", true
	}
	var req CommentRequest
	if !decode(w, r, &req) {
		return "", false
	}
	return req.Comment, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps booking errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case booking.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case booking.IsForbidden(err):
		writeError(w, http.StatusForbidden, message, err)
	case errors.Is(err, booking.ErrReservableNotAvailable):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   message,
			Reason:  string(booking.NotAvailableReasonOf(err)),
			Details: err.Error(),
		})
	case booking.IsClientError(err), errors.Is(err, factory.ErrInvalidCatalog):
		resp := ErrorResponse{Error: message, Details: err.Error()}
		var inv *booking.InvalidReservationError
		if errors.As(err, &inv) {
			resp.Reason = string(inv.Reason)
		}
		writeJSON(w, http.StatusBadRequest, resp)
	default:
		h.Logger.ErrorContext(r.Context(), message, "error", err.Error(), "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
