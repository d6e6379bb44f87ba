/*
lifecycle.go - Allocation lifecycle manager

PURPOSE:
  Guards and performs the state transitions of a single allocation:

    Created -> {AwaitingApproval | Confirmed} -> {Cancelled | Rejected} -> Closed

  Edit and cancel are allowed for elevated callers unconditionally (once the
  allocation is known to exist), and for everyone else only while the slot
  is in the future on the building's clock and the announce (edit) or cancel
  lead time has not expired.

LOCAL TIME:
  Lead times are always evaluated on the building clock of the allocation:
  the reservable's own building, or for a resource without a home building
  the building of the room it was delivered to. Only when neither is known
  does the check fall back to the generic current time.

SEE ALSO:
  - leadtime.go: Day/time cutoff rule
  - cost.go: Cancellation penalty
  - service.go: Calls these checks inside the save/cancel transactions
*/
package booking

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Lifecycle performs allocation state transitions.
type Lifecycle struct {
	clock BuildingClock
	// now stamps audit fields.
	now func() time.Time
}

func NewLifecycle(clock BuildingClock) *Lifecycle {
	return &Lifecycle{clock: clock, now: time.Now}
}

func (l *Lifecycle) localNow(ctx context.Context, a *Allocation, res Reservable) (time.Time, error) {
	now, err := l.clock.CurrentLocalTime(ctx, siteOf(a, res))
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "local time for %s", res.Ref())
	}
	return now, nil
}

// siteOf is the building whose clock governs a.
func siteOf(a *Allocation, res Reservable) string {
	if a == nil {
		return res.Building()
	}
	return buildingFor(res, a.Room.Building)
}

// buildingFor returns res's building, or fallback when res has none.
func buildingFor(res Reservable, fallback string) string {
	if b := res.Building(); b != "" {
		return b
	}
	return fallback
}

// wallClock drops the zone from a local time, matching how periods are stored.
func wallClock(t time.Time) time.Time {
	return ClearTime(t).Add(TimeOfDayOf(t).Duration())
}

// checkWindow applies the lead requirement to a stored allocation.
func (l *Lifecycle) checkWindow(ctx context.Context, stored *Allocation, res Reservable, lead LeadTime) (LeadResult, error) {
	now, err := l.localNow(ctx, stored, res)
	if err != nil {
		return LeadOK, err
	}
	if r := CheckLeadTime(lead, now, stored.Period.StartDate); r != LeadOK {
		return r, nil
	}
	if !stored.Period.Start().After(wallClock(now)) {
		return LeadTimeExpired, nil
	}
	return LeadOK, nil
}

// CheckEditing verifies that stored may still be modified by rc.
func (l *Lifecycle) CheckEditing(ctx context.Context, rc RequestContext, stored *Allocation, res Reservable) error {
	if stored == nil || !stored.Status.IsActive() {
		return notAvailable(refOf(stored, res), idOf(stored), ReasonAllocationNotFound)
	}
	if rc.IsElevated() {
		return nil
	}
	r, err := l.checkWindow(ctx, stored, res, res.BookingTerms().Announce)
	if err != nil {
		return err
	}
	if r != LeadOK {
		return notAvailable(res.Ref(), stored.ID, announceReason(r))
	}
	return nil
}

// CheckCancelling verifies that stored may still be cancelled by rc.
func (l *Lifecycle) CheckCancelling(ctx context.Context, rc RequestContext, stored *Allocation, res Reservable) error {
	if stored == nil || !stored.Status.IsActive() {
		return notAvailable(refOf(stored, res), idOf(stored), ReasonAllocationNotFound)
	}
	if rc.IsElevated() {
		return nil
	}
	r, err := l.checkWindow(ctx, stored, res, res.BookingTerms().Cancel)
	if err != nil {
		return err
	}
	if r != LeadOK {
		return notAvailable(res.Ref(), stored.ID, cancelReason(r))
	}
	return nil
}

// IsLateCancellation reports whether cancelling a now falls inside the
// reservable's cancellation window.
func (l *Lifecycle) IsLateCancellation(ctx context.Context, a *Allocation, res Reservable) (bool, error) {
	r, err := l.checkWindow(ctx, a, res, res.BookingTerms().Cancel)
	if err != nil {
		return false, err
	}
	return r != LeadOK, nil
}

// Cancel moves a to Cancelled and replaces its cost with the cancellation
// cost. Callers run CheckCancelling first.
func (l *Lifecycle) Cancel(ctx context.Context, rc RequestContext, a *Allocation, res Reservable, comment string) error {
	late, err := l.IsLateCancellation(ctx, a, res)
	if err != nil {
		return err
	}
	if err := a.Transition(StatusCancelled); err != nil {
		return err
	}
	a.Cost = CancellationCost(a.Cost, res.BookingTerms().LateCancelPercentage, late)
	now := l.now().UTC()
	a.CancelledAt = &now
	l.stamp(rc, a, comment)
	return nil
}

// Approve confirms an allocation awaiting approval.
func (l *Lifecycle) Approve(rc RequestContext, a *Allocation, comment string) error {
	if !rc.CanApprove() {
		return errors.Wrapf(ErrForbidden, "%s cannot approve allocation %d", rc.actor(), a.ID)
	}
	if a.Status != StatusAwaitingApproval {
		return &TransitionError{AllocationID: a.ID, From: a.Status, To: StatusConfirmed}
	}
	if err := a.Transition(StatusConfirmed); err != nil {
		return err
	}
	l.stamp(rc, a, comment)
	return nil
}

// Reject refuses an allocation awaiting approval. A rejected allocation never
// held its reservable, so it costs nothing.
func (l *Lifecycle) Reject(rc RequestContext, a *Allocation, comment string) error {
	if !rc.CanApprove() {
		return errors.Wrapf(ErrForbidden, "%s cannot reject allocation %d", rc.actor(), a.ID)
	}
	if a.Status != StatusAwaitingApproval {
		return &TransitionError{AllocationID: a.ID, From: a.Status, To: StatusRejected}
	}
	if err := a.Transition(StatusRejected); err != nil {
		return err
	}
	a.Cost = decimal.Zero
	l.stamp(rc, a, comment)
	return nil
}

// Close archives an allocation whose slot has elapsed.
func (l *Lifecycle) Close(a *Allocation) error {
	if err := a.Transition(StatusClosed); err != nil {
		return err
	}
	a.ModifiedAt = l.now().UTC()
	return nil
}

func (l *Lifecycle) stamp(rc RequestContext, a *Allocation, comment string) {
	a.ModifiedBy = rc.actor()
	a.ModifiedAt = l.now().UTC()
	if comment = strings.TrimSpace(comment); comment != "" {
		if a.Comments != "" {
			a.Comments += "\n"
		}
		a.Comments += comment
	}
}

func refOf(a *Allocation, res Reservable) ReservableRef {
	if res != nil {
		return res.Ref()
	}
	if a != nil {
		return a.Ref()
	}
	return ReservableRef{}
}

func idOf(a *Allocation) AllocationID {
	if a == nil {
		return 0
	}
	return a.ID
}
