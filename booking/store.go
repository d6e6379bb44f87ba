/*
store.go - Persistence collaborator interfaces

PURPOSE:
  The engine never builds queries itself. It reads reservables and active
  allocations through these interfaces, and writes reservations through the
  same Store handed to a WithTx callback, so the authoritative availability
  check and the write share one transaction.

IMPLEMENTATIONS:
  booking/store:   In-memory TxStore (tests, dev mode)
  store/sqlite:    Embedded SQLite TxStore
  store/postgres:  PostgreSQL TxStore (serializable, retried)

SEE ALSO:
  - availability.go: Consumes AllocationReader
  - service.go: Runs every mutation inside TxStore.WithTx
*/
package booking

import (
	"context"
	"time"
)

// CandidateFilter narrows the reservables considered by a search.
type CandidateFilter struct {
	Building    string
	Floor       string
	Room        string
	ArrangeType string
	MinCapacity int

	ResourceType string
	ResourceIDs  []string
}

// MatchesRoom reports whether a room arrangement passes the filter.
func (f CandidateFilter) MatchesRoom(r *RoomArrangement) bool {
	return (f.Building == "" || f.Building == r.Key.Building) &&
		(f.Floor == "" || f.Floor == r.Key.Floor) &&
		(f.Room == "" || f.Room == r.Key.Room) &&
		(f.ArrangeType == "" || f.ArrangeType == r.Key.ArrangeType) &&
		r.Capacity >= f.MinCapacity
}

// MatchesResource reports whether a resource passes the filter.
func (f CandidateFilter) MatchesResource(r *Resource) bool {
	if f.ResourceType != "" && f.ResourceType != r.ResourceType {
		return false
	}
	if f.Building != "" && r.HomeBuilding != "" && f.Building != r.HomeBuilding {
		return false
	}
	if len(f.ResourceIDs) == 0 {
		return true
	}
	for _, id := range f.ResourceIDs {
		if id == r.ID {
			return true
		}
	}
	return false
}

// ReservableReader loads reference data. Missing records yield ErrNotFound.
type ReservableReader interface {
	RoomArrangement(ctx context.Context, key RoomKey) (*RoomArrangement, error)
	Resource(ctx context.Context, id string) (*Resource, error)
	ListRoomArrangements(ctx context.Context, f CandidateFilter) ([]*RoomArrangement, error)
	ListResources(ctx context.Context, f CandidateFilter) ([]*Resource, error)
}

// AllocationReader reads the contended resource: active allocations.
type AllocationReader interface {
	// ActiveAllocations returns AwaitingApproval/Confirmed allocations of kind
	// whose period touches date, skipping those owned by exclude (0 = none).
	ActiveAllocations(ctx context.Context, kind Kind, date time.Time, exclude ReservationID) ([]Allocation, error)
}

// Store is the full persistence collaborator.
type Store interface {
	ReservableReader
	AllocationReader

	// Reservation loads a header with all of its allocations.
	Reservation(ctx context.Context, id ReservationID) (*Reservation, error)
	Allocation(ctx context.Context, id AllocationID) (*Allocation, error)

	// SaveReservation inserts or updates the header and every allocation,
	// assigning ids to new records in place.
	SaveReservation(ctx context.Context, r *Reservation) error

	// ListElapsed returns the allocations not yet closed whose last date is
	// before the given date.
	ListElapsed(ctx context.Context, before time.Time) ([]Allocation, error)
}

// CatalogWriter stores reference data.
type CatalogWriter interface {
	SaveRoomArrangement(ctx context.Context, r *RoomArrangement) error
	SaveResource(ctx context.Context, r *Resource) error
}

// TxStore runs fn atomically. Everything fn does through the given Store
// commits together or not at all.
type TxStore interface {
	Store
	CatalogWriter
	WithTx(ctx context.Context, fn func(Store) error) error
}
