package booking

import "time"

// =============================================================================
// LEAD TIME
// =============================================================================

// LeadResult classifies an action against a LeadTime requirement.
type LeadResult int

const (
	LeadOK LeadResult = iota
	LeadDaysExpired
	LeadTimeExpired
)

// CheckLeadTime evaluates acting at now (building-local wall clock) on a slot
// that starts on slotDate. A slot in the past always fails on days.
func CheckLeadTime(lead LeadTime, now time.Time, slotDate time.Time) LeadResult {
	diff := daysBetween(ClearTime(now), slotDate)
	if diff < 0 || diff < lead.Days {
		return LeadDaysExpired
	}
	if diff == lead.Days && lead.Time != nil && TimeOfDayOf(now) > *lead.Time {
		return LeadTimeExpired
	}
	return LeadOK
}

func announceReason(r LeadResult) NotAvailableReason {
	switch r {
	case LeadDaysExpired:
		return ReasonAnnounceDaysExpired
	case LeadTimeExpired:
		return ReasonAnnounceTimeExpired
	}
	return ""
}

func cancelReason(r LeadResult) NotAvailableReason {
	switch r {
	case LeadDaysExpired:
		return ReasonCancelDaysExpired
	case LeadTimeExpired:
		return ReasonCancelTimeExpired
	}
	return ""
}

// exceedsMaxDaysAhead reports whether slotDate lies beyond the booking horizon.
func exceedsMaxDaysAhead(maxDays int, now time.Time, slotDate time.Time) bool {
	return maxDays > 0 && daysBetween(ClearTime(now), slotDate) > maxDays
}
