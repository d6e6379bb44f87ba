// Package store provides an in-memory booking.TxStore.
package store

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/warp/reservation-engine/booking"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	rooms        map[booking.RoomKey]*booking.RoomArrangement
	resources    map[string]*booking.Resource
	reservations map[booking.ReservationID]*booking.Reservation
	owners       map[booking.AllocationID]booking.ReservationID

	lastReservation booking.ReservationID
	lastAllocation  booking.AllocationID
}

func NewMemory() *Memory {
	return &Memory{
		rooms:        make(map[booking.RoomKey]*booking.RoomArrangement),
		resources:    make(map[string]*booking.Resource),
		reservations: make(map[booking.ReservationID]*booking.Reservation),
		owners:       make(map[booking.AllocationID]booking.ReservationID),
	}
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := NewMemory()
	m.rooms = fresh.rooms
	m.resources = fresh.resources
	m.reservations = fresh.reservations
	m.owners = fresh.owners
	m.lastReservation = 0
	m.lastAllocation = 0
	return nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) SaveRoomArrangement(_ context.Context, r *booking.RoomArrangement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.rooms[r.Key] = &c
	return nil
}

func (m *Memory) SaveResource(_ context.Context, r *booking.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.resources[r.ID] = &c
	return nil
}

func (m *Memory) RoomArrangement(_ context.Context, key booking.RoomKey) (*booking.RoomArrangement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roomLocked(key)
}

func (m *Memory) Resource(_ context.Context, id string) (*booking.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resourceLocked(id)
}

func (m *Memory) ListRoomArrangements(_ context.Context, f booking.CandidateFilter) ([]*booking.RoomArrangement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRoomsLocked(f), nil
}

func (m *Memory) ListResources(_ context.Context, f booking.CandidateFilter) ([]*booking.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listResourcesLocked(f), nil
}

func (m *Memory) roomLocked(key booking.RoomKey) (*booking.RoomArrangement, error) {
	r, ok := m.rooms[key]
	if !ok {
		return nil, errors.Wrapf(booking.ErrNotFound, "room arrangement %s", key)
	}
	c := *r
	return &c, nil
}

func (m *Memory) resourceLocked(id string) (*booking.Resource, error) {
	r, ok := m.resources[id]
	if !ok {
		return nil, errors.Wrapf(booking.ErrNotFound, "resource %s", id)
	}
	c := *r
	return &c, nil
}

func (m *Memory) listRoomsLocked(f booking.CandidateFilter) []*booking.RoomArrangement {
	var out []*booking.RoomArrangement
	for _, r := range m.rooms {
		if f.MatchesRoom(r) {
			c := *r
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *booking.RoomArrangement) int {
		return cmp.Compare(a.Key.String(), b.Key.String())
	})
	return out
}

func (m *Memory) listResourcesLocked(f booking.CandidateFilter) []*booking.Resource {
	var out []*booking.Resource
	for _, r := range m.resources {
		if f.MatchesResource(r) {
			c := *r
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *booking.Resource) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (m *Memory) Reservation(_ context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reservationLocked(id)
}

func (m *Memory) Allocation(_ context.Context, id booking.AllocationID) (*booking.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allocationLocked(id)
}

func (m *Memory) ActiveAllocations(_ context.Context, kind booking.Kind, date time.Time, exclude booking.ReservationID) ([]booking.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked(kind, date, exclude), nil
}

func (m *Memory) ListElapsed(_ context.Context, before time.Time) ([]booking.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.elapsedLocked(before), nil
}

// SaveReservation outside a transaction.
func (m *Memory) SaveReservation(_ context.Context, r *booking.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveLocked(r)
	return nil
}

func (m *Memory) reservationLocked(id booking.ReservationID) (*booking.Reservation, error) {
	r, ok := m.reservations[id]
	if !ok {
		return nil, errors.Wrapf(booking.ErrNotFound, "reservation %d", id)
	}
	return r.Clone(), nil
}

func (m *Memory) allocationLocked(id booking.AllocationID) (*booking.Allocation, error) {
	owner, ok := m.owners[id]
	if !ok {
		return nil, errors.Wrapf(booking.ErrNotFound, "allocation %d", id)
	}
	a := m.reservations[owner].Allocation(id)
	if a == nil {
		return nil, errors.Wrapf(booking.ErrNotFound, "allocation %d", id)
	}
	return a.Clone(), nil
}

// ordered iterates reservations by id so results are deterministic.
func (m *Memory) ordered() []*booking.Reservation {
	ids := slices.Sorted(maps.Keys(m.reservations))
	out := make([]*booking.Reservation, len(ids))
	for i, id := range ids {
		out[i] = m.reservations[id]
	}
	return out
}

func (m *Memory) activeLocked(kind booking.Kind, date time.Time, exclude booking.ReservationID) []booking.Allocation {
	date = booking.ClearTime(date)
	var out []booking.Allocation
	for _, r := range m.ordered() {
		if exclude != 0 && r.ID == exclude {
			continue
		}
		for _, a := range r.Allocations() {
			if a.Kind != kind || !a.Status.IsActive() {
				continue
			}
			if date.Before(a.Period.StartDate) || date.After(a.Period.LastDate()) {
				continue
			}
			out = append(out, *a.Clone())
		}
	}
	return out
}

func (m *Memory) elapsedLocked(before time.Time) []booking.Allocation {
	before = booking.ClearTime(before)
	var out []booking.Allocation
	for _, r := range m.ordered() {
		for _, a := range r.Allocations() {
			if a.Status == booking.StatusClosed || a.Status == "" {
				continue
			}
			if a.Period.LastDate().Before(before) {
				out = append(out, *a.Clone())
			}
		}
	}
	return out
}

func (m *Memory) saveLocked(r *booking.Reservation) {
	if r.ID == 0 {
		m.lastReservation++
		r.ID = m.lastReservation
	}
	for _, a := range r.Allocations() {
		if a.ID == 0 {
			m.lastAllocation++
			a.ID = m.lastAllocation
		}
		a.ReservationID = r.ID
		m.owners[a.ID] = r.ID
	}
	m.reservations[r.ID] = r.Clone()
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are fully serialized, so a check-then-write inside fn cannot
// race with another one.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	reservations    map[booking.ReservationID]*booking.Reservation
	owners          map[booking.AllocationID]booking.ReservationID
	lastReservation booking.ReservationID
	lastAllocation  booking.AllocationID
}

func (tm *TxMemory) snapshot() memorySnapshot {
	reservations := make(map[booking.ReservationID]*booking.Reservation, len(tm.reservations))
	for id, r := range tm.reservations {
		reservations[id] = r.Clone()
	}
	return memorySnapshot{
		reservations:    reservations,
		owners:          maps.Clone(tm.owners),
		lastReservation: tm.lastReservation,
		lastAllocation:  tm.lastAllocation,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.reservations = s.reservations
	tm.owners = s.owners
	tm.lastReservation = s.lastReservation
	tm.lastAllocation = s.lastAllocation
}

// txMemoryView runs under the parent's write lock and never locks itself.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) RoomArrangement(_ context.Context, key booking.RoomKey) (*booking.RoomArrangement, error) {
	return tv.parent.roomLocked(key)
}

func (tv *txMemoryView) Resource(_ context.Context, id string) (*booking.Resource, error) {
	return tv.parent.resourceLocked(id)
}

func (tv *txMemoryView) ListRoomArrangements(_ context.Context, f booking.CandidateFilter) ([]*booking.RoomArrangement, error) {
	return tv.parent.listRoomsLocked(f), nil
}

func (tv *txMemoryView) ListResources(_ context.Context, f booking.CandidateFilter) ([]*booking.Resource, error) {
	return tv.parent.listResourcesLocked(f), nil
}

func (tv *txMemoryView) ActiveAllocations(_ context.Context, kind booking.Kind, date time.Time, exclude booking.ReservationID) ([]booking.Allocation, error) {
	return tv.parent.activeLocked(kind, date, exclude), nil
}

func (tv *txMemoryView) Reservation(_ context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	return tv.parent.reservationLocked(id)
}

func (tv *txMemoryView) Allocation(_ context.Context, id booking.AllocationID) (*booking.Allocation, error) {
	return tv.parent.allocationLocked(id)
}

func (tv *txMemoryView) SaveReservation(_ context.Context, r *booking.Reservation) error {
	tv.parent.saveLocked(r)
	return nil
}

func (tv *txMemoryView) ListElapsed(_ context.Context, before time.Time) ([]booking.Allocation, error) {
	return tv.parent.elapsedLocked(before), nil
}
