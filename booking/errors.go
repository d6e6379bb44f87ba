/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All domain error types in one place. Every failure raised by a lifecycle
  operation is a domain validation failure that the caller can show to the
  user; infrastructure failures from the store are wrapped and passed through.

ERROR CATEGORIES:
  1. Not available - availability, lead-time or quantity checks failed
  2. Invalid reservation - structural problems with the aggregate
  3. Lookup and authorization - missing records, missing roles

USAGE:
  Callers branch on the sentinel and read details from the structured error:

    var na *booking.NotAvailableError
    if errors.As(err, &na) {
        highlight(na.Ref, na.AllocationID)
    }

SEE ALSO:
  - lifecycle.go: Raises NotAvailableError on edit/cancel window violations
  - service.go: Raises InvalidReservationError while saving
*/
package booking

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrReservableNotAvailable is returned when an availability, lead-time
	// or quantity check fails.
	ErrReservableNotAvailable = errors.New("reservable not available")

	// ErrReservationInvalid is returned for structural problems with a reservation.
	ErrReservationInvalid = errors.New("reservation invalid")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller lacks the role for an operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidPeriod is returned when a time period is malformed.
	ErrInvalidPeriod = errors.New("invalid time period")

	// ErrInvalidTransition is returned for an illegal status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotAvailableReason is a stable reason code for a NotAvailableError.
type NotAvailableReason string

const (
	ReasonAllocationNotFound   NotAvailableReason = "allocation_not_found"
	ReasonAnnounceDaysExpired  NotAvailableReason = "announce_days_expired"
	ReasonAnnounceTimeExpired  NotAvailableReason = "announce_time_expired"
	ReasonCancelDaysExpired    NotAvailableReason = "cancel_days_expired"
	ReasonCancelTimeExpired    NotAvailableReason = "cancel_time_expired"
	ReasonMaxDaysAheadExceeded NotAvailableReason = "max_days_ahead_exceeded"
	ReasonQuantityExceeded     NotAvailableReason = "quantity_exceeded"
	ReasonResourceNotAllowed   NotAvailableReason = "resource_not_allowed"
	ReasonConflict             NotAvailableReason = "conflict"
	ReasonNotReservable        NotAvailableReason = "not_reservable"
	ReasonOutsideOpenHours     NotAvailableReason = "outside_open_hours"
	ReasonAccessDenied         NotAvailableReason = "access_denied"
)

// NotAvailableError identifies which reservable (and allocation, if known)
// failed and why.
type NotAvailableError struct {
	Ref          ReservableRef
	AllocationID AllocationID
	Reason       NotAvailableReason
}

func (e *NotAvailableError) Error() string {
	if e.AllocationID != 0 {
		return fmt.Sprintf("%s not available for allocation %d: %s", e.Ref, e.AllocationID, e.Reason)
	}
	return fmt.Sprintf("%s not available: %s", e.Ref, e.Reason)
}

func (e *NotAvailableError) Unwrap() error {
	return ErrReservableNotAvailable
}

// InvalidReason is a stable reason code for an InvalidReservationError.
type InvalidReason string

const (
	InvalidNoRooms           InvalidReason = "no_rooms"
	InvalidSpansMultipleDays InvalidReason = "spans_multiple_days"
	InvalidMissingBuilding   InvalidReason = "missing_building"
	InvalidPeriod            InvalidReason = "invalid_period"
	InvalidAlreadyTerminated InvalidReason = "already_terminated"
	InvalidUnknownReservable InvalidReason = "unknown_reservable"
	InvalidQuantity          InvalidReason = "invalid_quantity"
	InvalidRecurringNoDates  InvalidReason = "recurring_without_dates"
)

type InvalidReservationError struct {
	ReservationID ReservationID
	Reason        InvalidReason
	Detail        string
}

func (e *InvalidReservationError) Error() string {
	msg := fmt.Sprintf("reservation %d invalid: %s", e.ReservationID, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *InvalidReservationError) Unwrap() error {
	return ErrReservationInvalid
}

func notAvailable(ref ReservableRef, id AllocationID, reason NotAvailableReason) error {
	return &NotAvailableError{Ref: ref, AllocationID: id, Reason: reason}
}

func invalid(id ReservationID, reason InvalidReason, detail string) error {
	return &InvalidReservationError{ReservationID: id, Reason: reason, Detail: detail}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input or
// a business rule the request cannot satisfy.
func IsClientError(err error) bool {
	return errors.Is(err, ErrReservableNotAvailable) ||
		errors.Is(err, ErrReservationInvalid) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsForbidden returns true if the caller lacked the required role.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// NotAvailableReasonOf extracts the reason code, or "" when err is not a
// NotAvailableError.
func NotAvailableReasonOf(err error) NotAvailableReason {
	var na *NotAvailableError
	if errors.As(err, &na) {
		return na.Reason
	}
	return ""
}
