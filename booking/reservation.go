package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESERVATION - Aggregate root over room and resource allocations
// =============================================================================

// Reservation groups one or more allocations under one id. It exclusively
// owns its allocations.
type Reservation struct {
	ID ReservationID
	// ParentID is non-zero for members of a recurring series.
	ParentID ReservationID

	Name        string
	RequestedBy string
	Email       string
	Status      Status
	Period      TimePeriod
	// TimeZone is the requestor's zone. When it differs from the building's
	// zone, the period is converted to building-local time on save.
	TimeZone  string
	Attendees []string
	Comments  string

	Rooms     []*Allocation
	Resources []*Allocation

	// Cost is the sum of active allocation costs, or the sum of penalties
	// once the whole reservation is cancelled.
	Cost decimal.Decimal

	CreatedBy  string
	CreatedAt  time.Time
	ModifiedBy string
	ModifiedAt time.Time
}

func (r *Reservation) IsRecurring() bool {
	return r.ParentID != 0
}

// Allocations returns rooms first, then resources.
func (r *Reservation) Allocations() []*Allocation {
	all := make([]*Allocation, 0, len(r.Rooms)+len(r.Resources))
	all = append(all, r.Rooms...)
	return append(all, r.Resources...)
}

// Active returns the allocations that still hold (or are about to hold)
// their reservable.
func (r *Reservation) Active() []*Allocation {
	return activeOf(r.Allocations())
}

func (r *Reservation) ActiveRooms() []*Allocation {
	return activeOf(r.Rooms)
}

func (r *Reservation) ActiveResources() []*Allocation {
	return activeOf(r.Resources)
}

// PrimaryRoom returns the first active room allocation, or nil.
func (r *Reservation) PrimaryRoom() *Allocation {
	if rooms := r.ActiveRooms(); len(rooms) > 0 {
		return rooms[0]
	}
	return nil
}

// Allocation finds an allocation by id.
func (r *Reservation) Allocation(id AllocationID) *Allocation {
	for _, a := range r.Allocations() {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func activeOf(allocs []*Allocation) []*Allocation {
	var out []*Allocation
	for _, a := range allocs {
		if a.IsActive() {
			out = append(out, a)
		}
	}
	return out
}

// CalculateCosts recomputes the cost of every active allocation and sets the
// total to their sum.
func (r *Reservation) CalculateCosts(c Catalog) error {
	total := decimal.Zero
	for _, a := range r.Active() {
		res, err := c.Lookup(a.Ref())
		if err != nil {
			return err
		}
		a.Cost = CalculateCost(res, a.Period, a.Quantity)
		total = total.Add(a.Cost)
	}
	r.Cost = total
	return nil
}

// ActiveTotal sums the costs of the active allocations.
func (r *Reservation) ActiveTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Active() {
		total = total.Add(a.Cost)
	}
	return total
}

// CancelledTotal sums the cancellation costs carried by cancelled allocations.
func (r *Reservation) CancelledTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Allocations() {
		if a.CancelledAt != nil {
			total = total.Add(a.Cost)
		}
	}
	return total
}

// CheckApprovalRequired decides the status of every undecided active
// allocation from its own reservable, then sets the reservation status to
// AwaitingApproval if any active allocation awaits approval. Terminal
// reservations are left untouched.
func (r *Reservation) CheckApprovalRequired(c Catalog) (bool, error) {
	if r.Status.IsTerminal() {
		return false, nil
	}
	for _, a := range r.Active() {
		if a.Status != "" {
			continue
		}
		res, err := c.Lookup(a.Ref())
		if err != nil {
			return false, err
		}
		next := StatusConfirmed
		if res.BookingTerms().ApprovalRequired {
			next = StatusAwaitingApproval
		}
		if err := a.Transition(next); err != nil {
			return false, err
		}
	}
	r.DeriveStatus()
	return r.Status == StatusAwaitingApproval, nil
}

// DeriveStatus recomputes a non-terminal status from the active allocations.
func (r *Reservation) DeriveStatus() {
	if r.Status.IsTerminal() {
		return
	}
	active := r.Active()
	if len(active) == 0 {
		return
	}
	r.Status = StatusConfirmed
	for _, a := range active {
		if a.Status == StatusAwaitingApproval {
			r.Status = StatusAwaitingApproval
			return
		}
	}
}

// SetGuestCounts stamps the internal/external split on every active room.
func (r *Reservation) SetGuestCounts(internal, external int) {
	for _, a := range r.ActiveRooms() {
		a.InternalGuests = internal
		a.ExternalGuests = external
	}
}

// Clone returns a deep copy.
func (r *Reservation) Clone() *Reservation {
	c := *r
	c.Attendees = append([]string(nil), r.Attendees...)
	c.Rooms = cloneAll(r.Rooms)
	c.Resources = cloneAll(r.Resources)
	return &c
}

func cloneAll(allocs []*Allocation) []*Allocation {
	if allocs == nil {
		return nil
	}
	out := make([]*Allocation, len(allocs))
	for i, a := range allocs {
		out[i] = a.Clone()
	}
	return out
}

// OnDate returns an unsaved copy moved to date, used to expand a recurring
// series. Allocations keep their times of day.
func (r *Reservation) OnDate(date time.Time) *Reservation {
	c := r.Clone()
	c.ID = 0
	c.Status = ""
	c.Period = r.Period.OnDate(date)
	for _, a := range c.Allocations() {
		a.ID = 0
		a.ReservationID = 0
		a.Status = ""
		a.CancelledAt = nil
		a.Period = a.Period.OnDate(date)
	}
	return c
}
