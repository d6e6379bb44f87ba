/*
availability.go - Availability evaluation for rooms and resources

PURPOSE:
  Decides which candidate reservables are free for a requested period. The
  evaluation is a pure function of the query, the reservable's terms and the
  active allocations read through AllocationReader, so the same code runs at
  search time and again inside the save transaction.

CONFLICT SEMANTICS:
  unique (rooms, unique resources): any overlapping active allocation,
      widened by the reservable's pre/post block minutes, is a conflict
  limited: held quantity of overlapping allocations plus the request must
      not exceed the total quantity
  unlimited: never conflicts

RECURRING SERIES:
  Each occurrence date is evaluated on its own. A reservable is offered only
  if it is free on every date (intersection).

SEE ALSO:
  - store.go: AllocationReader
  - service.go: FindAvailable, CheckAvailable and the save-time re-check
*/
package booking

import (
	"cmp"
	"context"
	"slices"
	"time"
)

// =============================================================================
// AVAILABILITY QUERY - Immutable search request
// =============================================================================

// AvailabilityQuery is built once and never mutated. The With* methods return
// modified copies.
type AvailabilityQuery struct {
	kind         Kind
	period       TimePeriod
	occurrences  []time.Time
	filter       CandidateFilter
	exclude      ReservationID
	quantity     int
	allowPartial bool
}

func NewAvailabilityQuery(kind Kind, period TimePeriod) AvailabilityQuery {
	return AvailabilityQuery{kind: kind, period: period, quantity: 1}
}

func (q AvailabilityQuery) WithFilter(f CandidateFilter) AvailabilityQuery {
	f.ResourceIDs = slices.Clone(f.ResourceIDs)
	q.filter = f
	return q
}

// WithOccurrences makes the query recurring over dates. The period's own
// start date is replaced by the listed dates.
func (q AvailabilityQuery) WithOccurrences(dates ...time.Time) AvailabilityQuery {
	q.occurrences = make([]time.Time, len(dates))
	for i, d := range dates {
		q.occurrences[i] = ClearTime(d)
	}
	return q
}

// Excluding ignores allocations owned by the reservation being edited.
func (q AvailabilityQuery) Excluding(id ReservationID) AvailabilityQuery {
	q.exclude = id
	return q
}

func (q AvailabilityQuery) WithQuantity(n int) AvailabilityQuery {
	q.quantity = max(n, 1)
	return q
}

func (q AvailabilityQuery) AllowingPartial(allow bool) AvailabilityQuery {
	q.allowPartial = allow
	return q
}

func (q AvailabilityQuery) Kind() Kind               { return q.kind }
func (q AvailabilityQuery) Period() TimePeriod       { return q.period }
func (q AvailabilityQuery) Filter() CandidateFilter  { return q.filter }
func (q AvailabilityQuery) Exclude() ReservationID   { return q.exclude }
func (q AvailabilityQuery) Quantity() int            { return max(q.quantity, 1) }
func (q AvailabilityQuery) AllowPartial() bool       { return q.allowPartial }
func (q AvailabilityQuery) IsRecurring() bool        { return len(q.occurrences) > 0 }
func (q AvailabilityQuery) Occurrences() []time.Time { return slices.Clone(q.occurrences) }

// Periods expands the query into one period per occurrence date.
func (q AvailabilityQuery) Periods() []TimePeriod {
	if len(q.occurrences) == 0 {
		return []TimePeriod{q.period}
	}
	out := make([]TimePeriod, len(q.occurrences))
	for i, d := range q.occurrences {
		out[i] = q.period.OnDate(d)
	}
	return out
}

// =============================================================================
// PURE EVALUATION
// =============================================================================

// Evaluate returns why res cannot take quantity units over period given the
// existing active allocations of res, or "" when it can.
func Evaluate(res Reservable, period TimePeriod, quantity int, allowPartial bool, existing []Allocation) NotAvailableReason {
	terms := res.BookingTerms()
	if !terms.Reservable {
		return ReasonNotReservable
	}
	if terms.hasOpenHours() {
		if allowPartial && !period.intersects(terms.DayStart, terms.DayEnd) {
			return ReasonOutsideOpenHours
		}
		if !allowPartial && !period.within(terms.DayStart, terms.DayEnd) {
			return ReasonOutsideOpenHours
		}
	}

	switch r := res.(type) {
	case *RoomArrangement:
		return uniqueConflict(period, terms, existing)
	case *Resource:
		switch r.Mode {
		case ModeUnique:
			return uniqueConflict(period, terms, existing)
		case ModeLimited:
			return limitedConflict(period, terms, quantity, r.Quantity, existing)
		case ModeUnlimited:
			return ""
		}
		return ReasonNotReservable
	}
	return ReasonNotReservable
}

func blocksOverlap(a, b TimePeriod, terms Terms) bool {
	return a.Overlaps(b, terms.PreBlock, terms.PostBlock) ||
		b.Overlaps(a, terms.PreBlock, terms.PostBlock)
}

func uniqueConflict(period TimePeriod, terms Terms, existing []Allocation) NotAvailableReason {
	for _, e := range existing {
		if blocksOverlap(e.Period, period, terms) {
			return ReasonConflict
		}
	}
	return ""
}

func limitedConflict(period TimePeriod, terms Terms, quantity, total int, existing []Allocation) NotAvailableReason {
	quantity = max(quantity, 1)
	if quantity > total {
		return ReasonQuantityExceeded
	}
	held := 0
	for _, e := range existing {
		if blocksOverlap(e.Period, period, terms) {
			held += e.quantity()
		}
	}
	if held+quantity > total {
		return ReasonQuantityExceeded
	}
	return ""
}

// =============================================================================
// AVAILABILITY - Evaluation against an AllocationReader
// =============================================================================

// Availability evaluates queries against live allocations.
type Availability struct {
	reader AllocationReader
}

func NewAvailability(reader AllocationReader) *Availability {
	return &Availability{reader: reader}
}

// Free returns the candidates that are free on every occurrence of q.
// pending holds unsaved allocations that compete with the candidates.
func (a *Availability) Free(ctx context.Context, candidates []Reservable, q AvailabilityQuery, pending []Allocation) ([]Reservable, error) {
	free := make(map[ReservableRef]bool, len(candidates))
	for _, c := range candidates {
		free[c.Ref()] = true
	}

	for _, period := range q.Periods() {
		byRef, err := a.activeByRef(ctx, q.Kind(), period, q.Exclude(), pending)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			ref := c.Ref()
			if !free[ref] {
				continue
			}
			if Evaluate(c, period, q.Quantity(), q.AllowPartial(), byRef[conflictKey(ref)]) != "" {
				free[ref] = false
			}
		}
	}

	var out []Reservable
	for _, c := range candidates {
		if free[c.Ref()] {
			out = append(out, c)
		}
	}
	return out, nil
}

// Check returns why res is not free on some occurrence of q, or "".
func (a *Availability) Check(ctx context.Context, res Reservable, q AvailabilityQuery, pending []Allocation) (NotAvailableReason, error) {
	for _, period := range q.Periods() {
		byRef, err := a.activeByRef(ctx, res.Kind(), period, q.Exclude(), pending)
		if err != nil {
			return "", err
		}
		if reason := Evaluate(res, period, q.Quantity(), q.AllowPartial(), byRef[conflictKey(res.Ref())]); reason != "" {
			return reason, nil
		}
	}
	return "", nil
}

// conflictKey maps a reference to the unit that conflicts are counted on.
// Every arrangement of a room competes for the same physical room.
func conflictKey(ref ReservableRef) ReservableRef {
	if ref.Kind == KindRoom {
		return RoomRef(ref.Room.Location())
	}
	return ref
}

// activeByRef groups the active allocations touching period's dates by
// reservable, adding pending allocations of the same kind.
func (a *Availability) activeByRef(ctx context.Context, kind Kind, period TimePeriod, exclude ReservationID, pending []Allocation) (map[ReservableRef][]Allocation, error) {
	byRef := make(map[ReservableRef][]Allocation)
	seen := make(map[AllocationID]bool)
	for d := period.StartDate; !d.After(period.LastDate()); d = d.AddDate(0, 0, 1) {
		allocs, err := a.reader.ActiveAllocations(ctx, kind, d, exclude)
		if err != nil {
			return nil, err
		}
		for _, al := range allocs {
			if seen[al.ID] {
				continue
			}
			seen[al.ID] = true
			key := conflictKey(al.Ref())
			byRef[key] = append(byRef[key], al)
		}
	}
	for _, p := range pending {
		if p.Kind == kind {
			key := conflictKey(p.Ref())
			byRef[key] = append(byRef[key], p)
		}
	}
	return byRef, nil
}

// =============================================================================
// ORDERING
// =============================================================================

// SortReservables orders rooms by building, default arrangement first,
// smallest adequate capacity, then floor, room, arrangement type and
// configuration. Resources sort by type, name and id. Rooms precede resources.
func SortReservables(list []Reservable) {
	slices.SortStableFunc(list, func(a, b Reservable) int {
		ra, aRoom := a.(*RoomArrangement)
		rb, bRoom := b.(*RoomArrangement)
		switch {
		case aRoom && bRoom:
			return compareRooms(ra, rb)
		case aRoom:
			return -1
		case bRoom:
			return 1
		}
		xa, _ := a.(*Resource)
		xb, _ := b.(*Resource)
		if xa == nil || xb == nil {
			return 0
		}
		return cmp.Or(
			cmp.Compare(xa.ResourceType, xb.ResourceType),
			cmp.Compare(xa.Name, xb.Name),
			cmp.Compare(xa.ID, xb.ID),
		)
	})
}

func compareRooms(a, b *RoomArrangement) int {
	return cmp.Or(
		cmp.Compare(a.Key.Building, b.Key.Building),
		compareDefault(a.IsDefault, b.IsDefault),
		cmp.Compare(a.Capacity, b.Capacity),
		cmp.Compare(a.Key.Floor, b.Key.Floor),
		cmp.Compare(a.Key.Room, b.Key.Room),
		cmp.Compare(a.Key.ArrangeType, b.Key.ArrangeType),
		cmp.Compare(a.Key.Config, b.Key.Config),
	)
}

func compareDefault(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return -1
	default:
		return 1
	}
}
