/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the booking model from the external API contract.

NAMING CONVENTION:
  - *DTO: Types used in both directions or returned to clients
  - *Request: Request body types from clients

FORMATS:
  Dates are "2006-01-02", times of day "15:04", money a decimal string
  with two places ("12.50").

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are pure
  data carriers; the to* / from* helpers only parse formats.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: CatalogJSON type
*/
package api

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/warp/reservation-engine/booking"
	"github.com/warp/reservation-engine/factory"
)

// =============================================================================
// PERIODS
// =============================================================================

// PeriodDTO is a booking.TimePeriod on the wire. Omitted times mean all day.
type PeriodDTO struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	TimeZone  string `json:"time_zone,omitempty"`
}

func (p PeriodDTO) isZero() bool {
	return p == PeriodDTO{}
}

func (p PeriodDTO) toPeriod() (booking.TimePeriod, error) {
	var out booking.TimePeriod
	if p.isZero() {
		return out, nil
	}
	var err error
	if out.StartDate, err = booking.ParseDate(p.StartDate); err != nil {
		return out, errors.Wrap(err, "start_date")
	}
	if p.EndDate != "" {
		if out.EndDate, err = booking.ParseDate(p.EndDate); err != nil {
			return out, errors.Wrap(err, "end_date")
		}
	}
	if p.StartTime != "" {
		if out.StartTime, err = booking.ParseTimeOfDay(p.StartTime); err != nil {
			return out, errors.Wrap(err, "start_time")
		}
	}
	if p.EndTime != "" {
		if out.EndTime, err = booking.ParseTimeOfDay(p.EndTime); err != nil {
			return out, errors.Wrap(err, "end_time")
		}
	}
	out.TimeZone = p.TimeZone
	return out, nil
}

func toPeriodDTO(p booking.TimePeriod) PeriodDTO {
	dto := PeriodDTO{
		StartDate: booking.FormatDate(p.StartDate),
		TimeZone:  p.TimeZone,
	}
	if p.IsTimed() {
		dto.StartTime = p.StartTime.String()
		dto.EndTime = p.EndTime.String()
	}
	if !p.EndDate.IsZero() {
		dto.EndDate = booking.FormatDate(p.EndDate)
	}
	return dto
}

// =============================================================================
// RESERVABLES
// =============================================================================

// ReservableDTO describes a room arrangement or a resource.
type ReservableDTO struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`

	Building    string `json:"building,omitempty"`
	Floor       string `json:"floor,omitempty"`
	Room        string `json:"room,omitempty"`
	Config      string `json:"config,omitempty"`
	ArrangeType string `json:"arrange_type,omitempty"`
	Capacity    int    `json:"capacity,omitempty"`

	ResourceID   string `json:"resource_id,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	Mode         string `json:"mode,omitempty"`
	Quantity     int    `json:"quantity,omitempty"`

	Name             string `json:"name,omitempty"`
	ApprovalRequired bool   `json:"approval_required"`
}

func toReservableDTO(r booking.Reservable) ReservableDTO {
	terms := r.BookingTerms()
	dto := ReservableDTO{
		Kind:             string(r.Kind()),
		Ref:              r.Ref().String(),
		Building:         r.Building(),
		ApprovalRequired: terms.ApprovalRequired,
	}
	switch v := r.(type) {
	case *booking.RoomArrangement:
		dto.Floor = v.Key.Floor
		dto.Room = v.Key.Room
		dto.Config = v.Key.Config
		dto.ArrangeType = v.Key.ArrangeType
		dto.Capacity = v.Capacity
		dto.Name = v.Name
	case *booking.Resource:
		dto.ResourceID = v.ID
		dto.ResourceType = v.ResourceType
		dto.Mode = string(v.Mode)
		dto.Quantity = v.Quantity
		dto.Name = v.Name
	}
	return dto
}

// RefDTO points at one reservable.
type RefDTO struct {
	Kind        string `json:"kind"`
	Building    string `json:"building,omitempty"`
	Floor       string `json:"floor,omitempty"`
	Room        string `json:"room,omitempty"`
	Config      string `json:"config,omitempty"`
	ArrangeType string `json:"arrange_type,omitempty"`
	ResourceID  string `json:"resource_id,omitempty"`
}

func (r RefDTO) toRef() (booking.ReservableRef, error) {
	switch booking.Kind(r.Kind) {
	case booking.KindRoom:
		return booking.RoomRef(booking.RoomKey{
			Building: r.Building, Floor: r.Floor, Room: r.Room, Config: r.Config, ArrangeType: r.ArrangeType,
		}), nil
	case booking.KindResource:
		return booking.ResourceRef(r.ResourceID), nil
	default:
		return booking.ReservableRef{}, errors.Newf("unknown kind %q", r.Kind)
	}
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// AvailabilityRequest is the body of a search.
type AvailabilityRequest struct {
	Kind         string    `json:"kind"`
	Period       PeriodDTO `json:"period"`
	Occurrences  []string  `json:"occurrences,omitempty"`
	Quantity     int       `json:"quantity,omitempty"`
	AllowPartial bool      `json:"allow_partial,omitempty"`
	Exclude      int64     `json:"exclude_reservation_id,omitempty"`

	Building     string   `json:"building,omitempty"`
	Floor        string   `json:"floor,omitempty"`
	Room         string   `json:"room,omitempty"`
	ArrangeType  string   `json:"arrange_type,omitempty"`
	MinCapacity  int      `json:"min_capacity,omitempty"`
	ResourceType string   `json:"resource_type,omitempty"`
	ResourceIDs  []string `json:"resource_ids,omitempty"`
}

func (req AvailabilityRequest) toQuery() (booking.AvailabilityQuery, error) {
	period, err := req.Period.toPeriod()
	if err != nil {
		return booking.AvailabilityQuery{}, err
	}
	q := booking.NewAvailabilityQuery(booking.Kind(req.Kind), period).
		WithFilter(booking.CandidateFilter{
			Building:     req.Building,
			Floor:        req.Floor,
			Room:         req.Room,
			ArrangeType:  req.ArrangeType,
			MinCapacity:  req.MinCapacity,
			ResourceType: req.ResourceType,
			ResourceIDs:  req.ResourceIDs,
		}).
		Excluding(booking.ReservationID(req.Exclude)).
		AllowingPartial(req.AllowPartial)
	if req.Quantity > 0 {
		q = q.WithQuantity(req.Quantity)
	}
	if len(req.Occurrences) > 0 {
		dates, err := parseDates(req.Occurrences)
		if err != nil {
			return q, err
		}
		q = q.WithOccurrences(dates...)
	}
	return q, nil
}

// CheckAvailabilityRequest asks whether one reservable is free.
type CheckAvailabilityRequest struct {
	Reservable    RefDTO    `json:"reservable"`
	Period        PeriodDTO `json:"period"`
	ReservationID int64     `json:"reservation_id,omitempty"`
}

// CheckAvailabilityResponse is the answer to a CheckAvailabilityRequest.
type CheckAvailabilityResponse struct {
	Available bool `json:"available"`
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// AllocationDTO is one room or resource allocation.
type AllocationDTO struct {
	ID            int64      `json:"id,omitempty"`
	ReservationID int64      `json:"reservation_id,omitempty"`
	Kind          string     `json:"kind,omitempty"`
	Building      string     `json:"building,omitempty"`
	Floor         string     `json:"floor,omitempty"`
	Room          string     `json:"room,omitempty"`
	Config        string     `json:"config,omitempty"`
	ArrangeType   string     `json:"arrange_type,omitempty"`
	ResourceID    string     `json:"resource_id,omitempty"`
	Quantity      int        `json:"quantity,omitempty"`
	Period        *PeriodDTO `json:"period,omitempty"`
	Cost          string     `json:"cost,omitempty"`
	Status        string     `json:"status,omitempty"`
	Internal      int        `json:"internal_guests,omitempty"`
	External      int        `json:"external_guests,omitempty"`
	Comments      string     `json:"comments,omitempty"`
	CancelledAt   string     `json:"cancelled_at,omitempty"`
}

// ReservationDTO is a reservation with its allocations.
type ReservationDTO struct {
	ID          int64           `json:"id,omitempty"`
	ParentID    int64           `json:"parent_id,omitempty"`
	Name        string          `json:"name"`
	RequestedBy string          `json:"requested_by,omitempty"`
	Email       string          `json:"email,omitempty"`
	Status      string          `json:"status,omitempty"`
	Period      PeriodDTO       `json:"period"`
	TimeZone    string          `json:"time_zone,omitempty"`
	Attendees   []string        `json:"attendees,omitempty"`
	Comments    string          `json:"comments,omitempty"`
	Rooms       []AllocationDTO `json:"rooms"`
	Resources   []AllocationDTO `json:"resources,omitempty"`
	Cost        string          `json:"cost,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	ModifiedBy  string          `json:"modified_by,omitempty"`
	ModifiedAt  string          `json:"modified_at,omitempty"`
}

// RecurringReservationRequest books Template on every date in Dates.
type RecurringReservationRequest struct {
	Template ReservationDTO `json:"template"`
	Dates    []string       `json:"dates"`
}

// CommentRequest is the optional body of cancel/approve/reject calls.
type CommentRequest struct {
	Comment string `json:"comment,omitempty"`
}

// CostDTO is the price of one allocation.
type CostDTO struct {
	Cost string `json:"cost"`
}

func (dto ReservationDTO) toReservation(id booking.ReservationID) (*booking.Reservation, error) {
	period, err := dto.Period.toPeriod()
	if err != nil {
		return nil, errors.Wrap(err, "period")
	}
	r := &booking.Reservation{
		ID:          id,
		ParentID:    booking.ReservationID(dto.ParentID),
		Name:        dto.Name,
		RequestedBy: dto.RequestedBy,
		Email:       dto.Email,
		Period:      period,
		TimeZone:    dto.TimeZone,
		Attendees:   dto.Attendees,
		Comments:    dto.Comments,
	}
	for i, a := range dto.Rooms {
		alloc, err := a.toAllocation(booking.KindRoom)
		if err != nil {
			return nil, errors.Wrapf(err, "rooms[%d]", i)
		}
		r.Rooms = append(r.Rooms, alloc)
	}
	for i, a := range dto.Resources {
		alloc, err := a.toAllocation(booking.KindResource)
		if err != nil {
			return nil, errors.Wrapf(err, "resources[%d]", i)
		}
		r.Resources = append(r.Resources, alloc)
	}
	return r, nil
}

func (dto AllocationDTO) toAllocation(kind booking.Kind) (*booking.Allocation, error) {
	a := &booking.Allocation{
		ID:             booking.AllocationID(dto.ID),
		Kind:           kind,
		Quantity:       dto.Quantity,
		InternalGuests: dto.Internal,
		ExternalGuests: dto.External,
		Comments:       dto.Comments,
	}
	switch kind {
	case booking.KindRoom:
		a.Room = booking.RoomKey{
			Building: dto.Building, Floor: dto.Floor, Room: dto.Room, Config: dto.Config, ArrangeType: dto.ArrangeType,
		}
	case booking.KindResource:
		a.ResourceID = dto.ResourceID
	}
	if dto.Period != nil {
		p, err := dto.Period.toPeriod()
		if err != nil {
			return nil, errors.Wrap(err, "period")
		}
		a.Period = p
	}
	return a, nil
}

func toReservationDTO(r *booking.Reservation) ReservationDTO {
	dto := ReservationDTO{
		ID:          int64(r.ID),
		ParentID:    int64(r.ParentID),
		Name:        r.Name,
		RequestedBy: r.RequestedBy,
		Email:       r.Email,
		Status:      string(r.Status),
		Period:      toPeriodDTO(r.Period),
		TimeZone:    r.TimeZone,
		Attendees:   r.Attendees,
		Comments:    r.Comments,
		Rooms:       make([]AllocationDTO, 0, len(r.Rooms)),
		Cost:        r.Cost.StringFixed(2),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   formatTimestamp(r.CreatedAt),
		ModifiedBy:  r.ModifiedBy,
		ModifiedAt:  formatTimestamp(r.ModifiedAt),
	}
	for _, a := range r.Rooms {
		dto.Rooms = append(dto.Rooms, toAllocationDTO(a))
	}
	for _, a := range r.Resources {
		dto.Resources = append(dto.Resources, toAllocationDTO(a))
	}
	return dto
}

func toAllocationDTO(a *booking.Allocation) AllocationDTO {
	period := toPeriodDTO(a.Period)
	dto := AllocationDTO{
		ID:            int64(a.ID),
		ReservationID: int64(a.ReservationID),
		Kind:          string(a.Kind),
		Building:      a.Room.Building,
		Floor:         a.Room.Floor,
		Room:          a.Room.Room,
		Config:        a.Room.Config,
		ArrangeType:   a.Room.ArrangeType,
		ResourceID:    a.ResourceID,
		Quantity:      a.Quantity,
		Period:        &period,
		Cost:          a.Cost.StringFixed(2),
		Status:        string(a.Status),
		Internal:      a.InternalGuests,
		External:      a.ExternalGuests,
		Comments:      a.Comments,
	}
	if a.CancelledAt != nil {
		dto.CancelledAt = formatTimestamp(*a.CancelledAt)
	}
	return dto
}

// =============================================================================
// CATALOG / SCENARIOS / ERRORS
// =============================================================================

// CatalogDTO wraps factory.CatalogJSON for uploads and listings.
type CatalogDTO = factory.CatalogJSON

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseDates(ss []string) ([]time.Time, error) {
	out := make([]time.Time, len(ss))
	for i, s := range ss {
		d, err := booking.ParseDate(s)
		if err != nil {
			return nil, errors.Wrapf(err, "date %q", s)
		}
		out[i] = d
	}
	return out, nil
}
