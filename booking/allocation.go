package booking

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION - One booked unit of a reservation
// =============================================================================

// Allocation is a room allocation (Kind == KindRoom) or a resource allocation
// (Kind == KindResource). It references its reservable but does not own it.
type Allocation struct {
	ID            AllocationID
	ReservationID ReservationID
	Kind          Kind

	// Room is the booked arrangement for room allocations and the delivery
	// location for resource allocations.
	Room       RoomKey
	ResourceID string
	Quantity   int

	Period TimePeriod
	Cost   decimal.Decimal
	Status Status

	InternalGuests int
	ExternalGuests int
	Comments       string

	CreatedBy   string
	CreatedAt   time.Time
	ModifiedBy  string
	ModifiedAt  time.Time
	CancelledAt *time.Time
}

// NewRoomAllocation builds an unsaved room allocation.
func NewRoomAllocation(key RoomKey, period TimePeriod) *Allocation {
	return &Allocation{Kind: KindRoom, Room: key, Quantity: 1, Period: period}
}

// NewResourceAllocation builds an unsaved resource allocation.
func NewResourceAllocation(resourceID string, quantity int, period TimePeriod) *Allocation {
	return &Allocation{Kind: KindResource, ResourceID: resourceID, Quantity: quantity, Period: period}
}

// Ref returns the reference to the allocated reservable.
func (a *Allocation) Ref() ReservableRef {
	switch a.Kind {
	case KindRoom:
		return RoomRef(a.Room)
	case KindResource:
		return ResourceRef(a.ResourceID)
	}
	return ReservableRef{Kind: a.Kind}
}

// IsActive is true for allocations that hold their reservable, including
// unsaved ones that have not been given a status yet.
func (a *Allocation) IsActive() bool {
	return a.Status == "" || a.Status.IsActive()
}

// IsNew reports whether the allocation has not been persisted yet.
func (a *Allocation) IsNew() bool {
	return a.ID == 0
}

func (a *Allocation) quantity() int {
	if a.Kind == KindRoom || a.Quantity < 1 {
		return 1
	}
	return a.Quantity
}

// Transition moves the allocation to next if the lifecycle allows it.
func (a *Allocation) Transition(next Status) error {
	if !a.Status.CanTransitionTo(next) {
		return &TransitionError{AllocationID: a.ID, From: a.Status, To: next}
	}
	a.Status = next
	return nil
}

// Clone returns a deep copy.
func (a *Allocation) Clone() *Allocation {
	c := *a
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

// bookingChanged reports whether the reservable, quantity or period differs
// from before. Such changes require a fresh approval decision.
func (a *Allocation) bookingChanged(before *Allocation) bool {
	return a.Ref() != before.Ref() ||
		a.quantity() != before.quantity() ||
		!a.Period.Equal(before.Period)
}

// TransitionError reports an illegal status change.
type TransitionError struct {
	AllocationID AllocationID
	From, To     Status
}

func (e *TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "created"
	}
	return fmt.Sprintf("allocation %d: cannot move from %s to %s", e.AllocationID, from, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
