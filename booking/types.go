/*
Package booking provides the availability and allocation engine for room and
resource reservations.

PURPOSE:
  This package decides whether a room arrangement or a resource is free for a
  requested time period, reserves it with the correct conflict semantics,
  computes costs (including late-cancellation penalties) and decides whether
  a booking must wait for approval before it is confirmed.

KEY CONCEPTS IN THIS FILE (types.go):
  - ReservationID / AllocationID: Store-assigned identifiers
  - Status: Allocation and reservation lifecycle states
  - Kind: Tag for the two reservable variants (room, resource)

LIFECYCLE:
  Created -> {AwaitingApproval | Confirmed} -> {Cancelled | Rejected} -> Closed

  Allocations are never physically deleted. Cancelling or rejecting is a
  status transition (soft delete), and Closed archives elapsed bookings.

DESIGN PRINCIPLES:
  1. Precision: Money uses decimal.Decimal, rounded to 2 places half-up
  2. Explicit context: The caller's identity travels in a RequestContext
  3. Atomic check-then-act: Availability is re-validated inside the same
     store transaction that persists the allocation
  4. Building-local time: Lead times are evaluated on the reservable's
     building clock, never the server's

SEE ALSO:
  - period.go: TimePeriod primitive
  - reservable.go: Reservable interface and its variants
  - availability.go: Availability evaluation
  - lifecycle.go: Edit/cancel checks and state transitions
  - service.go: Engine facade exposing the public operations
*/
package booking

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ReservationID identifies a reservation header. Zero means "not yet saved".
type ReservationID int64

// AllocationID identifies a single room or resource allocation.
type AllocationID int64

// =============================================================================
// KIND - Reservable variant tag
// =============================================================================

// Kind tags the reservable variant. Every switch over Kind must handle both.
type Kind string

const (
	KindRoom     Kind = "room"
	KindResource Kind = "resource"
)

func (k Kind) Valid() bool {
	return k == KindRoom || k == KindResource
}

// =============================================================================
// STATUS - Allocation lifecycle
// =============================================================================

type Status string

const (
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusConfirmed        Status = "confirmed"
	StatusCancelled        Status = "cancelled"
	StatusRejected         Status = "rejected"
	StatusClosed           Status = "closed"
)

// IsActive returns true for statuses that hold the reservable.
func (s Status) IsActive() bool {
	return s == StatusAwaitingApproval || s == StatusConfirmed
}

// IsTerminal returns true for explicitly ended statuses.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRejected || s == StatusClosed
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle step.
// The empty status is the "created" state of a new allocation.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case "":
		return next == StatusAwaitingApproval || next == StatusConfirmed
	case StatusAwaitingApproval:
		return next == StatusConfirmed || next == StatusRejected ||
			next == StatusCancelled || next == StatusClosed || next == StatusAwaitingApproval
	case StatusConfirmed:
		// An edit that moves a booking onto an approval-gated reservable sends it back.
		// Rejected is reached when the room it depends on is rejected.
		return next == StatusAwaitingApproval || next == StatusCancelled ||
			next == StatusRejected || next == StatusClosed || next == StatusConfirmed
	case StatusCancelled, StatusRejected:
		return next == StatusClosed
	default:
		return false
	}
}
