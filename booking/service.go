/*
service.go - Engine facade exposing the reservation operations

PURPOSE:
  Engine is the single entry point used by the HTTP layer and by any other
  caller. Every mutation runs inside TxStore.WithTx, and the authoritative
  availability check runs in that same transaction right before the write.
  Two competing bookings for the same slot therefore cannot both commit.

OPERATIONS:
  FindAvailable               Search free rooms or resources
  CheckAvailable              Is one reservable free for a reservation/period
  CreateOrUpdateReservation   Validate, price and persist a reservation
  CreateRecurringReservation  Same, for every date of a series (all or nothing)
  CancelReservation           Cancel the stored reservation and all allocations
  CancelAllocation            Cancel a single allocation
  ApproveAllocation           AwaitingApproval -> Confirmed
  RejectAllocation            AwaitingApproval -> Rejected
  CloseElapsed                Archive allocations whose dates have passed
  CloseElapsedLocal           Same, with today taken from each building clock
  CalculateCost               Price an allocation

SAVE SEQUENCE:
  1. Time-zone conversion of the requested periods into building-local time
  2. Edit-window checks on changed allocations, cancel removed ones
  3. Multi-day check
  4. Re-home resources to the room's location
  5. Lead-time, horizon and security checks for new or changed allocations
  6. Availability re-check against committed allocations and siblings
  7. Approval decision
  8. Costs
  9. Guest split (internal/external)
  10. Persist header and allocations

SEE ALSO:
  - availability.go: Evaluation used by search and by step 6
  - lifecycle.go: Edit/cancel windows and transitions
  - store.go: Persistence collaborator
*/
package booking

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Options configures an Engine.
type Options struct {
	Directory EmployeeDirectory
	Logger    *slog.Logger
	// AllowMultiDay permits bookings spanning several calendar days.
	AllowMultiDay bool
}

// Engine implements the reservation operations on top of a TxStore.
type Engine struct {
	store         TxStore
	clock         BuildingClock
	lifecycle     *Lifecycle
	directory     EmployeeDirectory
	logger        *slog.Logger
	allowMultiDay bool
}

func NewEngine(store TxStore, clock BuildingClock, opts Options) *Engine {
	e := &Engine{
		store:         store,
		clock:         clock,
		lifecycle:     NewLifecycle(clock),
		directory:     opts.Directory,
		logger:        opts.Logger,
		allowMultiDay: opts.AllowMultiDay,
	}
	if e.directory == nil {
		e.directory = DomainDirectory{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// =============================================================================
// QUERIES
// =============================================================================

// FindAvailable returns the reservables of q's kind that rc may book and that
// are free for q's period on every occurrence date.
//
// A timeless query returns every eligible candidate. A zoned period is
// converted to each candidate's building time; a room whose building-local
// period spans several days is not offered.
func (e *Engine) FindAvailable(ctx context.Context, rc RequestContext, q AvailabilityQuery) ([]Reservable, error) {
	if !q.Kind().Valid() {
		return nil, errors.Wrapf(ErrReservationInvalid, "unknown reservable kind %q", q.Kind())
	}
	candidates, err := e.candidates(ctx, e.store, q.Kind(), q.Filter())
	if err != nil {
		return nil, err
	}

	period := q.Period().Normalize()
	if !period.IsTimed() {
		var out []Reservable
		for _, c := range candidates {
			reason, err := e.checkPolicy(ctx, rc, c, c.Building(), nil)
			if err != nil {
				return nil, err
			}
			if reason == "" {
				out = append(out, c)
			}
		}
		SortReservables(out)
		return out, nil
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	// Candidates sharing a building share the building-local period.
	type group struct {
		period     TimePeriod
		candidates []Reservable
	}
	groups := make(map[string]*group)
	var order []string
	for _, c := range candidates {
		building := buildingFor(c, q.Filter().Building)
		g, ok := groups[building]
		if !ok {
			g = &group{period: period}
			if period.TimeZone != "" {
				if g.period, err = e.toBuildingZone(ctx, building, period); err != nil {
					return nil, err
				}
			}
			groups[building] = g
			order = append(order, building)
		}
		g.candidates = append(g.candidates, c)
	}

	var free []Reservable
	checked := 0
	for _, building := range order {
		g := groups[building]
		if q.Kind() == KindRoom && g.period.SpansMultipleDays() {
			e.logger.InfoContext(ctx, "multi-day room search is not supported, skipping building",
				"building", building, "period", g.period.String())
			continue
		}
		gq := q.withPeriod(g.period)
		periods := gq.Periods()
		var eligible []Reservable
		for _, c := range g.candidates {
			reason, err := e.checkPolicy(ctx, rc, c, building, periods)
			if err != nil {
				return nil, err
			}
			if reason == "" {
				eligible = append(eligible, c)
			}
		}
		checked += len(eligible)

		avail, err := NewAvailability(e.store).Free(ctx, eligible, gq, nil)
		if err != nil {
			return nil, errors.Wrap(err, "evaluate availability")
		}
		free = append(free, avail...)
	}
	SortReservables(free)

	e.logger.DebugContext(ctx, "availability search",
		"kind", q.Kind(),
		"period", period.String(),
		"buildings", len(order),
		"candidates", len(candidates),
		"eligible", checked,
		"available", len(free))
	return free, nil
}

func (q AvailabilityQuery) withPeriod(p TimePeriod) AvailabilityQuery {
	q.period = p
	return q
}

// CheckAvailable reports whether the reservable ref is free for period on
// behalf of r (whose own allocations are ignored; r may be nil).
func (e *Engine) CheckAvailable(ctx context.Context, rc RequestContext, ref ReservableRef, r *Reservation, period TimePeriod) (bool, error) {
	period = period.Normalize()
	if err := period.Validate(); err != nil {
		return false, err
	}
	res, err := e.resolve(ctx, e.store, ref)
	if err != nil {
		return false, err
	}

	q := NewAvailabilityQuery(ref.Kind, period)
	if r != nil {
		q = q.Excluding(r.ID)
		for _, a := range r.Active() {
			if a.Ref() == ref {
				q = q.WithQuantity(a.quantity())
			}
		}
	}

	building := res.Building()
	if r != nil && building == "" {
		if room := r.PrimaryRoom(); room != nil {
			building = room.Room.Building
		}
	}
	reason, err := e.checkPolicy(ctx, rc, res, building, q.Periods())
	if err != nil {
		return false, err
	}
	if reason == "" {
		reason, err = NewAvailability(e.store).Check(ctx, res, q, nil)
		if err != nil {
			return false, err
		}
	}
	if reason != "" {
		e.logger.DebugContext(ctx, "reservable not available", "reservable", ref.String(), "reason", reason)
	}
	return reason == "", nil
}

// CalculateCost prices an allocation with its reservable's current terms.
func (e *Engine) CalculateCost(ctx context.Context, a *Allocation) (decimal.Decimal, error) {
	res, err := e.resolve(ctx, e.store, a.Ref())
	if err != nil {
		return decimal.Zero, err
	}
	return CalculateCost(res, a.Period, a.Quantity), nil
}

// Reservation loads a stored reservation.
func (e *Engine) Reservation(ctx context.Context, id ReservationID) (*Reservation, error) {
	return e.store.Reservation(ctx, id)
}

// =============================================================================
// SAVE
// =============================================================================

// CreateOrUpdateReservation validates, prices and persists r. The input is not
// modified; the saved reservation is returned. On failure nothing is written.
func (e *Engine) CreateOrUpdateReservation(ctx context.Context, rc RequestContext, r *Reservation) (*Reservation, error) {
	if r == nil {
		return nil, invalid(0, InvalidNoRooms, "nil reservation")
	}
	var saved *Reservation
	err := e.store.WithTx(ctx, func(tx Store) error {
		work := r.Clone()
		if err := e.save(ctx, tx, rc, work); err != nil {
			return err
		}
		saved = work
		return nil
	})
	if err != nil {
		e.logger.WarnContext(ctx, "reservation rejected",
			"reservation_id", r.ID, "user", rc.actor(), "error", err.Error())
		return nil, err
	}
	e.logger.InfoContext(ctx, "reservation saved",
		"reservation_id", saved.ID,
		"status", saved.Status,
		"cost", saved.Cost.StringFixed(2),
		"user", rc.actor())
	return saved, nil
}

// CreateRecurringReservation books template on every date. Each occurrence is
// a separate reservation whose ParentID is the first occurrence's id. Either
// all occurrences are saved or none.
func (e *Engine) CreateRecurringReservation(ctx context.Context, rc RequestContext, template *Reservation, dates []time.Time) ([]*Reservation, error) {
	if template == nil || template.ID != 0 {
		return nil, invalid(0, InvalidRecurringNoDates, "template must be a new reservation")
	}
	if len(dates) == 0 {
		return nil, invalid(0, InvalidRecurringNoDates, "")
	}
	sorted := make([]time.Time, len(dates))
	for i, d := range dates {
		sorted[i] = ClearTime(d)
	}
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
	sorted = slices.CompactFunc(sorted, func(a, b time.Time) bool { return a.Equal(b) })

	var series []*Reservation
	err := e.store.WithTx(ctx, func(tx Store) error {
		series = series[:0]
		var parent ReservationID
		for _, d := range sorted {
			occ := template.OnDate(d)
			occ.ParentID = parent
			if err := e.save(ctx, tx, rc, occ); err != nil {
				return errors.Wrapf(err, "occurrence %s", FormatDate(d))
			}
			if parent == 0 {
				parent = occ.ID
				occ.ParentID = parent
				if err := tx.SaveReservation(ctx, occ); err != nil {
					return err
				}
			}
			series = append(series, occ)
		}
		return nil
	})
	if err != nil {
		e.logger.WarnContext(ctx, "recurring reservation rejected", "user", rc.actor(), "error", err.Error())
		return nil, err
	}
	e.logger.InfoContext(ctx, "recurring reservation saved",
		"parent_id", series[0].ID, "occurrences", len(series), "user", rc.actor())
	return series, nil
}

func (e *Engine) save(ctx context.Context, tx Store, rc RequestContext, work *Reservation) error {
	var stored *Reservation
	if work.ID != 0 {
		var err error
		if stored, err = tx.Reservation(ctx, work.ID); err != nil {
			return err
		}
		if stored.Status.IsTerminal() {
			return invalid(work.ID, InvalidAlreadyTerminated, string(stored.Status))
		}
	}
	if err := e.prepare(work, stored); err != nil {
		return err
	}

	catalog, err := e.loadCatalog(ctx, tx, work, stored)
	if err != nil {
		return err
	}

	// 1. Building-local time.
	if err := e.convertZones(ctx, work, catalog); err != nil {
		return err
	}
	for _, a := range work.Active() {
		if err := a.Period.Validate(); err != nil {
			return err
		}
	}

	// 2. Edit windows, removed allocations.
	if stored != nil {
		if err := e.applyEdits(ctx, rc, work, stored, catalog); err != nil {
			return err
		}
	}
	if len(work.ActiveRooms()) == 0 {
		return invalid(work.ID, InvalidNoRooms, "")
	}

	// 3. Multi-day.
	for _, a := range work.Active() {
		if a.Period.SpansMultipleDays() && !e.allowMultiDay {
			return invalid(work.ID, InvalidSpansMultipleDays, a.Period.String())
		}
	}

	// 4. Resources follow the room.
	room := work.PrimaryRoom()
	for _, a := range work.ActiveResources() {
		res, _ := catalog.resource(a.ResourceID)
		if !res.AllowedIn(room.Room) {
			return notAvailable(res.Ref(), a.ID, ReasonResourceNotAllowed)
		}
		a.Room = room.Room.Location()
	}

	// 5. Caller restrictions on what is being booked now.
	for _, a := range work.Active() {
		if a.Status != "" {
			continue
		}
		res := catalog[a.Ref()]
		reason, err := e.checkPolicy(ctx, rc, res, siteOf(a, res), []TimePeriod{a.Period})
		if err != nil {
			return err
		}
		if reason != "" {
			return notAvailable(res.Ref(), a.ID, reason)
		}
	}

	// 6. Authoritative availability, inside this transaction.
	if err := e.recheck(ctx, tx, work, catalog); err != nil {
		return err
	}

	// 7-8. Approval and costs.
	if _, err := work.CheckApprovalRequired(catalog); err != nil {
		return err
	}
	if err := work.CalculateCosts(catalog); err != nil {
		return err
	}

	// 9. Guest split.
	internal, external, err := countGuests(ctx, e.directory, work.Attendees)
	if err != nil {
		return err
	}
	work.SetGuestCounts(internal, external)

	e.stampAudit(rc, work, stored)

	// 10. Persist.
	if err := tx.SaveReservation(ctx, work); err != nil {
		return errors.Wrap(err, "persist reservation")
	}
	return nil
}

// prepare normalizes client input: kinds, default periods, statuses.
func (e *Engine) prepare(work, stored *Reservation) error {
	work.Status = ""
	if work.Period.StartDate.IsZero() && len(work.Rooms) > 0 {
		work.Period = work.Rooms[0].Period
	}
	for _, a := range work.Rooms {
		a.Kind = KindRoom
		a.Quantity = 1
	}
	for _, a := range work.Resources {
		a.Kind = KindResource
		if a.Quantity < 1 {
			return invalid(work.ID, InvalidQuantity, a.ResourceID)
		}
	}
	for _, a := range work.Allocations() {
		a.ReservationID = work.ID
		if a.Period.StartDate.IsZero() {
			a.Period = work.Period
		}
		a.Period = a.Period.Normalize()
		if a.ID == 0 {
			a.Status = ""
			a.CancelledAt = nil
			continue
		}
		if stored == nil || stored.Allocation(a.ID) == nil {
			return notAvailable(a.Ref(), a.ID, ReasonAllocationNotFound)
		}
	}
	work.Period = work.Period.Normalize()
	return nil
}

// convertZones rewrites periods expressed in the requestor's zone into the
// building's zone and tags every active period with the building zone.
func (e *Engine) convertZones(ctx context.Context, work *Reservation, catalog Catalog) error {
	room := work.PrimaryRoom()
	if room == nil {
		return invalid(work.ID, InvalidNoRooms, "")
	}
	res, _ := catalog.room(room.Room)
	building := res.Building()
	if building == "" {
		if work.TimeZone != "" {
			return invalid(work.ID, InvalidMissingBuilding, room.Room.String())
		}
		return nil
	}

	loc, err := e.clock.TimeZone(ctx, building)
	if err != nil {
		return errors.Wrapf(err, "time zone of building %s", building)
	}
	convert := func(p TimePeriod) (TimePeriod, error) {
		source := p.TimeZone
		if source == "" {
			source = work.TimeZone
		}
		if source == "" || source == loc.String() {
			p.TimeZone = loc.String()
			return p, nil
		}
		from, err := time.LoadLocation(source)
		if err != nil {
			return p, errors.Wrapf(ErrInvalidPeriod, "unknown time zone %q", source)
		}
		return p.ConvertZone(from, loc), nil
	}

	if work.Period, err = convert(work.Period); err != nil {
		return err
	}
	for _, a := range work.Active() {
		if a.Period, err = convert(a.Period); err != nil {
			return err
		}
	}
	return nil
}

// applyEdits enforces edit windows on changed allocations and cancels the
// ones the caller dropped from the reservation.
func (e *Engine) applyEdits(ctx context.Context, rc RequestContext, work, stored *Reservation, catalog Catalog) error {
	for _, before := range stored.Allocations() {
		after := work.Allocation(before.ID)
		if !before.Status.IsActive() {
			// Ended allocations are not editable.
			if after != nil {
				*after = *before.Clone()
			} else {
				appendAllocation(work, before.Clone())
			}
			continue
		}

		res := catalog[before.Ref()]
		if after == nil || !after.IsActive() || after.Status.IsTerminal() {
			if err := e.lifecycle.CheckCancelling(ctx, rc, before, res); err != nil {
				return err
			}
			removed := before.Clone()
			if err := e.lifecycle.Cancel(ctx, rc, removed, res, "removed from reservation"); err != nil {
				return err
			}
			if after != nil {
				*after = *removed
			} else {
				appendAllocation(work, removed)
			}
			continue
		}

		after.CreatedBy, after.CreatedAt = before.CreatedBy, before.CreatedAt
		if !after.bookingChanged(before) {
			after.Status = before.Status
			continue
		}
		if err := e.lifecycle.CheckEditing(ctx, rc, before, res); err != nil {
			return err
		}
		after.Status = ""
	}
	return nil
}

func appendAllocation(r *Reservation, a *Allocation) {
	switch a.Kind {
	case KindRoom:
		r.Rooms = append(r.Rooms, a)
	case KindResource:
		r.Resources = append(r.Resources, a)
	}
}

// recheck re-validates every active allocation against the allocations
// committed by others and against its own siblings.
func (e *Engine) recheck(ctx context.Context, tx Store, work *Reservation, catalog Catalog) error {
	avail := NewAvailability(tx)
	active := work.Active()
	for i, a := range active {
		siblings := make([]Allocation, 0, len(active)-1)
		for j, s := range active {
			if j != i {
				siblings = append(siblings, *s)
			}
		}
		res := catalog[a.Ref()]
		q := NewAvailabilityQuery(a.Kind, a.Period).
			Excluding(work.ID).
			WithQuantity(a.quantity())
		reason, err := avail.Check(ctx, res, q, siblings)
		if err != nil {
			return errors.Wrap(err, "re-check availability")
		}
		if reason != "" {
			return notAvailable(res.Ref(), a.ID, reason)
		}
	}
	return nil
}

func (e *Engine) stampAudit(rc RequestContext, work, stored *Reservation) {
	now := e.lifecycle.now().UTC()
	actor := rc.actor()
	if stored == nil {
		work.CreatedBy, work.CreatedAt = actor, now
		if work.RequestedBy == "" {
			work.RequestedBy = actor
		}
		if work.Email == "" {
			work.Email = rc.Email
		}
	} else {
		work.CreatedBy, work.CreatedAt = stored.CreatedBy, stored.CreatedAt
	}
	work.ModifiedBy, work.ModifiedAt = actor, now
	for _, a := range work.Allocations() {
		if a.ID == 0 {
			a.CreatedBy, a.CreatedAt = actor, now
		}
		if a.IsActive() {
			a.ModifiedBy, a.ModifiedAt = actor, now
		}
	}
}

// =============================================================================
// CANCEL
// =============================================================================

// CancelReservation cancels the stored version of reservation id: rooms
// first, then resources, then the header. The header cost becomes the sum of
// cancellation costs.
func (e *Engine) CancelReservation(ctx context.Context, rc RequestContext, id ReservationID, comment string) error {
	var penalty decimal.Decimal
	err := e.store.WithTx(ctx, func(tx Store) error {
		stored, err := tx.Reservation(ctx, id)
		if err != nil {
			return err
		}
		if stored.Status.IsTerminal() {
			return invalid(id, InvalidAlreadyTerminated, string(stored.Status))
		}
		catalog, err := e.loadCatalog(ctx, tx, stored)
		if err != nil {
			return err
		}
		for _, group := range [][]*Allocation{stored.ActiveRooms(), stored.ActiveResources()} {
			for _, a := range group {
				res := catalog[a.Ref()]
				if err := e.lifecycle.CheckCancelling(ctx, rc, a, res); err != nil {
					return err
				}
				if err := e.lifecycle.Cancel(ctx, rc, a, res, comment); err != nil {
					return err
				}
			}
		}
		e.endReservation(rc, stored, StatusCancelled)
		penalty = stored.Cost
		return tx.SaveReservation(ctx, stored)
	})
	if err != nil {
		e.logger.WarnContext(ctx, "cancel reservation rejected",
			"reservation_id", id, "user", rc.actor(), "error", err.Error())
		return err
	}
	e.logger.InfoContext(ctx, "reservation cancelled",
		"reservation_id", id, "penalty", penalty.StringFixed(2), "user", rc.actor())
	return nil
}

// CancelAllocation cancels a single allocation. Cancelling the last active
// room cancels the whole reservation along with its resources.
func (e *Engine) CancelAllocation(ctx context.Context, rc RequestContext, id AllocationID, comment string) error {
	err := e.store.WithTx(ctx, func(tx Store) error {
		r, target, err := e.loadAllocation(ctx, tx, id)
		if err != nil {
			return err
		}
		catalog, err := e.loadCatalog(ctx, tx, r)
		if err != nil {
			return err
		}
		res := catalog[target.Ref()]
		if err := e.lifecycle.CheckCancelling(ctx, rc, target, res); err != nil {
			return err
		}
		if err := e.lifecycle.Cancel(ctx, rc, target, res, comment); err != nil {
			return err
		}

		if target.Kind == KindRoom && len(r.ActiveRooms()) == 0 {
			for _, a := range r.ActiveResources() {
				if err := e.lifecycle.Cancel(ctx, rc, a, catalog[a.Ref()], comment); err != nil {
					return err
				}
			}
			e.endReservation(rc, r, StatusCancelled)
		} else {
			r.DeriveStatus()
			r.Cost = r.ActiveTotal()
			r.ModifiedBy, r.ModifiedAt = rc.actor(), e.lifecycle.now().UTC()
		}
		return tx.SaveReservation(ctx, r)
	})
	if err != nil {
		e.logger.WarnContext(ctx, "cancel allocation rejected",
			"allocation_id", id, "user", rc.actor(), "error", err.Error())
		return err
	}
	e.logger.InfoContext(ctx, "allocation cancelled", "allocation_id", id, "user", rc.actor())
	return nil
}

// endReservation puts the header in a terminal status and sets its cost to
// the cancellation costs it carries.
func (e *Engine) endReservation(rc RequestContext, r *Reservation, status Status) {
	r.Status = status
	r.Cost = r.CancelledTotal()
	r.ModifiedBy, r.ModifiedAt = rc.actor(), e.lifecycle.now().UTC()
}

// =============================================================================
// APPROVAL AND ARCHIVAL
// =============================================================================

// ApproveAllocation confirms an allocation awaiting approval.
func (e *Engine) ApproveAllocation(ctx context.Context, rc RequestContext, id AllocationID, comment string) error {
	err := e.store.WithTx(ctx, func(tx Store) error {
		r, target, err := e.loadAllocation(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.lifecycle.Approve(rc, target, comment); err != nil {
			return err
		}
		r.DeriveStatus()
		r.ModifiedBy, r.ModifiedAt = rc.actor(), e.lifecycle.now().UTC()
		return tx.SaveReservation(ctx, r)
	})
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "allocation approved", "allocation_id", id, "user", rc.actor())
	return nil
}

// RejectAllocation refuses an allocation awaiting approval. Rejecting the
// last active room rejects the whole reservation.
func (e *Engine) RejectAllocation(ctx context.Context, rc RequestContext, id AllocationID, comment string) error {
	err := e.store.WithTx(ctx, func(tx Store) error {
		r, target, err := e.loadAllocation(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.lifecycle.Reject(rc, target, comment); err != nil {
			return err
		}
		if target.Kind == KindRoom && len(r.ActiveRooms()) == 0 {
			for _, a := range r.ActiveResources() {
				if err := a.Transition(StatusRejected); err != nil {
					return err
				}
				a.Cost = decimal.Zero
			}
			e.endReservation(rc, r, StatusRejected)
		} else {
			r.DeriveStatus()
			r.Cost = r.ActiveTotal()
			r.ModifiedBy, r.ModifiedAt = rc.actor(), e.lifecycle.now().UTC()
		}
		return tx.SaveReservation(ctx, r)
	})
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "allocation rejected", "allocation_id", id, "user", rc.actor())
	return nil
}

// CloseElapsed archives every allocation whose last date is before today,
// and closes reservations left with nothing open. It returns the number of
// allocations closed.
func (e *Engine) CloseElapsed(ctx context.Context, today time.Time) (int, error) {
	today = ClearTime(today)
	closed, err := e.closeElapsed(ctx, today, func(Allocation) (bool, error) { return true, nil })
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		e.logger.InfoContext(ctx, "closed elapsed allocations", "count", closed, "before", FormatDate(today))
	}
	return closed, nil
}

// CloseElapsedLocal is CloseElapsed with today read from each allocation's
// building clock.
func (e *Engine) CloseElapsedLocal(ctx context.Context) (int, error) {
	now, err := e.clock.CurrentLocalTime(ctx, "")
	if err != nil {
		return 0, errors.Wrap(err, "current time")
	}
	// No building is more than a day ahead of UTC.
	cutoff := ClearTime(now.UTC()).AddDate(0, 0, 2)

	today := make(map[string]time.Time)
	closed, err := e.closeElapsed(ctx, cutoff, func(a Allocation) (bool, error) {
		building := a.Room.Building
		date, ok := today[building]
		if !ok {
			d, err := e.clock.CurrentLocalDate(ctx, building)
			if err != nil {
				return false, errors.Wrapf(err, "local date for building %s", building)
			}
			date = d
			today[building] = date
		}
		return a.Period.LastDate().Before(date), nil
	})
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		e.logger.InfoContext(ctx, "closed elapsed allocations", "count", closed, "buildings", len(today))
	}
	return closed, nil
}

// closeElapsed closes the allocations listed as elapsed before cutoff for
// which due reports true.
func (e *Engine) closeElapsed(ctx context.Context, cutoff time.Time, due func(Allocation) (bool, error)) (int, error) {
	closed := 0
	err := e.store.WithTx(ctx, func(tx Store) error {
		closed = 0
		elapsed, err := tx.ListElapsed(ctx, cutoff)
		if err != nil {
			return err
		}
		byReservation := make(map[ReservationID]map[AllocationID]bool)
		var order []ReservationID
		for _, a := range elapsed {
			ok, err := due(a)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if byReservation[a.ReservationID] == nil {
				byReservation[a.ReservationID] = make(map[AllocationID]bool)
				order = append(order, a.ReservationID)
			}
			byReservation[a.ReservationID][a.ID] = true
		}

		for _, rid := range order {
			r, err := tx.Reservation(ctx, rid)
			if err != nil {
				return err
			}
			for _, a := range r.Allocations() {
				if !byReservation[rid][a.ID] {
					continue
				}
				if err := e.lifecycle.Close(a); err != nil {
					return err
				}
				closed++
			}
			if r.Status != StatusClosed && allClosed(r) {
				r.Status = StatusClosed
			}
			if err := tx.SaveReservation(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return closed, nil
}

func allClosed(r *Reservation) bool {
	for _, a := range r.Allocations() {
		if a.Status != StatusClosed {
			return false
		}
	}
	return true
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (e *Engine) loadAllocation(ctx context.Context, tx Store, id AllocationID) (*Reservation, *Allocation, error) {
	a, err := tx.Allocation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	r, err := tx.Reservation(ctx, a.ReservationID)
	if err != nil {
		return nil, nil, err
	}
	target := r.Allocation(id)
	if target == nil {
		return nil, nil, errors.Wrapf(ErrNotFound, "allocation %d in reservation %d", id, r.ID)
	}
	return r, target, nil
}

// loadCatalog resolves every reservable referenced by the reservations.
func (e *Engine) loadCatalog(ctx context.Context, reader ReservableReader, reservations ...*Reservation) (Catalog, error) {
	catalog := make(Catalog)
	for _, r := range reservations {
		if r == nil {
			continue
		}
		for _, a := range r.Allocations() {
			if _, ok := catalog[a.Ref()]; ok {
				continue
			}
			res, err := e.resolve(ctx, reader, a.Ref())
			if err != nil {
				if IsNotFound(err) {
					return nil, invalid(r.ID, InvalidUnknownReservable, a.Ref().String())
				}
				return nil, err
			}
			catalog.Add(res)
		}
	}
	return catalog, nil
}

func (e *Engine) resolve(ctx context.Context, reader ReservableReader, ref ReservableRef) (Reservable, error) {
	switch ref.Kind {
	case KindRoom:
		return reader.RoomArrangement(ctx, ref.Room)
	case KindResource:
		return reader.Resource(ctx, ref.ResourceID)
	}
	return nil, errors.Wrapf(ErrNotFound, "%s", ref)
}

func (e *Engine) candidates(ctx context.Context, reader ReservableReader, kind Kind, f CandidateFilter) ([]Reservable, error) {
	var out []Reservable
	switch kind {
	case KindRoom:
		rooms, err := reader.ListRoomArrangements(ctx, f)
		if err != nil {
			return nil, errors.Wrap(err, "list room arrangements")
		}
		for _, r := range rooms {
			out = append(out, r)
		}
	case KindResource:
		resources, err := reader.ListResources(ctx, f)
		if err != nil {
			return nil, errors.Wrap(err, "list resources")
		}
		for _, r := range resources {
			out = append(out, r)
		}
	}
	return out, nil
}

// checkPolicy applies the caller-dependent restrictions: reservable flag
// (always), then security groups, announce lead time and booking horizon
// (skipped for elevated callers). Lead times run on building's clock.
func (e *Engine) checkPolicy(ctx context.Context, rc RequestContext, res Reservable, building string, periods []TimePeriod) (NotAvailableReason, error) {
	terms := res.BookingTerms()
	if !terms.Reservable {
		return ReasonNotReservable, nil
	}
	if rc.IsElevated() {
		return "", nil
	}
	if !terms.Allows(rc.Groups) {
		return ReasonAccessDenied, nil
	}
	if len(periods) == 0 {
		return "", nil
	}

	now, err := e.clock.CurrentLocalTime(ctx, building)
	if err != nil {
		return "", errors.Wrapf(err, "local time for %s", res.Ref())
	}
	first, last := periods[0], periods[0]
	for _, p := range periods[1:] {
		if p.Start().Before(first.Start()) {
			first = p
		}
		if p.StartDate.After(last.StartDate) {
			last = p
		}
	}
	if r := CheckLeadTime(terms.Announce, now, first.StartDate); r != LeadOK {
		return announceReason(r), nil
	}
	if !first.Start().After(wallClock(now)) {
		return ReasonAnnounceTimeExpired, nil
	}
	if exceedsMaxDaysAhead(terms.MaxDaysAhead, now, last.StartDate) {
		return ReasonMaxDaysAheadExceeded, nil
	}
	return "", nil
}

func (e *Engine) toBuildingZone(ctx context.Context, building string, p TimePeriod) (TimePeriod, error) {
	loc, err := e.clock.TimeZone(ctx, building)
	if err != nil {
		return p, errors.Wrapf(err, "time zone of building %s", building)
	}
	from, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return p, errors.Wrapf(ErrInvalidPeriod, "unknown time zone %q", p.TimeZone)
	}
	return p.ConvertZone(from, loc), nil
}
