package booking

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// =============================================================================
// TIME OF DAY
// =============================================================================

// TimeOfDay is an offset from local midnight. EndOfDay (24:00) closes an
// all-day period.
type TimeOfDay time.Duration

const EndOfDay = TimeOfDay(24 * time.Hour)

func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour +
		time.Duration(minute)*time.Minute +
		time.Duration(second)*time.Second)
}

// TimeOfDayOf extracts the wall-clock time of t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
}

// ParseTimeOfDay accepts "15:04", "15:04:05" and "24:00".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" || s == "24:00:00" {
		return EndOfDay, nil
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidPeriod, "bad time of day %q", s)
}

func (t TimeOfDay) Duration() time.Duration { return time.Duration(t) }

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	sec := int(d % time.Minute / time.Second)
	if sec != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// =============================================================================
// DATES
// =============================================================================

const dateLayout = "2006-01-02"

// Date builds a civil date. Civil dates are kept at midnight UTC so that
// day arithmetic never crosses a DST transition.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ClearTime truncates t to its civil date, read in t's own location.
func ClearTime(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidPeriod, "bad date %q", s)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// daysBetween counts whole civil days from a to b (negative if b is earlier).
func daysBetween(a, b time.Time) int {
	return int(math.Round(ClearTime(b).Sub(ClearTime(a)).Hours() / 24))
}

// =============================================================================
// TIME PERIOD
// =============================================================================

// TimePeriod is a date plus start/end time span expressed in wall-clock time.
// A zero EndDate means the period ends on StartDate. A zero StartTime and
// EndTime on a single day means "no time given".
type TimePeriod struct {
	StartDate time.Time
	EndDate   time.Time
	StartTime TimeOfDay
	EndTime   TimeOfDay
	// TimeZone names the IANA zone the wall-clock values are expressed in.
	// Empty means building-local.
	TimeZone string
}

// SameDay builds a single-day period.
func SameDay(date time.Time, start, end TimeOfDay) TimePeriod {
	return TimePeriod{StartDate: ClearTime(date), StartTime: start, EndTime: end}
}

// AllDay builds a period covering the whole of date.
func AllDay(date time.Time) TimePeriod {
	return SameDay(date, 0, EndOfDay)
}

// LastDate returns the civil date the period ends on.
func (p TimePeriod) LastDate() time.Time {
	if p.EndDate.IsZero() {
		return p.StartDate
	}
	return p.EndDate
}

// Start returns the wall-clock start as a UTC-anchored instant.
func (p TimePeriod) Start() time.Time {
	return p.StartDate.Add(p.StartTime.Duration())
}

// End returns the wall-clock end as a UTC-anchored instant.
func (p TimePeriod) End() time.Time {
	return p.LastDate().Add(p.EndTime.Duration())
}

// StartIn returns the real instant the period starts at in loc.
func (p TimePeriod) StartIn(loc *time.Location) time.Time {
	d := p.StartDate
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).Add(p.StartTime.Duration())
}

// EndIn returns the real instant the period ends at in loc.
func (p TimePeriod) EndIn(loc *time.Location) time.Time {
	d := p.LastDate()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).Add(p.EndTime.Duration())
}

// IsTimed reports whether the period carries a date and a time span.
func (p TimePeriod) IsTimed() bool {
	if p.StartDate.IsZero() {
		return false
	}
	return p.SpansMultipleDays() || p.StartTime != 0 || p.EndTime != 0
}

func (p TimePeriod) MinutesDifference() float64 {
	return p.End().Sub(p.Start()).Minutes()
}

func (p TimePeriod) HoursDifference() float64 {
	return p.End().Sub(p.Start()).Hours()
}

// DaysDifference counts calendar days spanned. A period within one calendar
// day always counts as 1.
func (p TimePeriod) DaysDifference() int {
	if p.StartDate.IsZero() {
		return 0
	}
	n := daysBetween(p.StartDate, p.LastDate()) + 1
	if p.SpansMultipleDays() && p.EndTime == 0 {
		// Ending at midnight does not occupy the last date.
		n--
	}
	return max(n, 1)
}

func (p TimePeriod) SpansMultipleDays() bool {
	return !p.EndDate.IsZero() && p.EndDate.After(p.StartDate)
}

// IsAllDay is true for 00:00-24:00 on one date, or for midnight to midnight
// across exactly one day boundary.
func (p TimePeriod) IsAllDay() bool {
	if p.StartTime != 0 {
		return false
	}
	if !p.SpansMultipleDays() {
		return p.EndTime == EndOfDay
	}
	return p.EndTime == 0 && daysBetween(p.StartDate, p.EndDate) == 1
}

// Normalize rewrites the midnight-to-midnight all-day form as 00:00-24:00.
func (p TimePeriod) Normalize() TimePeriod {
	if p.SpansMultipleDays() && p.IsAllDay() {
		p.EndDate = time.Time{}
		p.EndTime = EndOfDay
	}
	return p
}

// Equal compares dates by instant and times by value.
func (p TimePeriod) Equal(other TimePeriod) bool {
	return p.StartDate.Equal(other.StartDate) &&
		p.LastDate().Equal(other.LastDate()) &&
		p.StartTime == other.StartTime &&
		p.EndTime == other.EndTime &&
		p.TimeZone == other.TimeZone
}

// Overlaps reports whether [start-pre, end+post] of p intersects [start, end]
// of other. Touching endpoints do not overlap.
func (p TimePeriod) Overlaps(other TimePeriod, preBlockMinutes, postBlockMinutes int) bool {
	start := p.Start().Add(-time.Duration(preBlockMinutes) * time.Minute)
	end := p.End().Add(time.Duration(postBlockMinutes) * time.Minute)
	return start.Before(other.End()) && other.Start().Before(end)
}

// within reports whether p lies inside the open hours [open, close].
func (p TimePeriod) within(open, close TimeOfDay) bool {
	if p.SpansMultipleDays() {
		return open == 0 && close >= EndOfDay
	}
	return p.StartTime >= open && p.EndTime <= close
}

// intersects reports whether p shares any time with [open, close] on its day.
func (p TimePeriod) intersects(open, close TimeOfDay) bool {
	if p.SpansMultipleDays() {
		return true
	}
	return p.StartTime < close && open < p.EndTime
}

// OnDate moves the period to start on date, keeping times and span length.
func (p TimePeriod) OnDate(date time.Time) TimePeriod {
	span := 0
	if !p.EndDate.IsZero() {
		span = daysBetween(p.StartDate, p.EndDate)
	}
	p.StartDate = ClearTime(date)
	if span > 0 {
		p.EndDate = p.StartDate.AddDate(0, 0, span)
	} else {
		p.EndDate = time.Time{}
	}
	return p
}

// ConvertZone re-expresses the period, read as wall-clock time in from, as
// wall-clock time in to.
func (p TimePeriod) ConvertZone(from, to *time.Location) TimePeriod {
	start := p.StartIn(from).In(to)
	end := p.EndIn(from).In(to)

	out := TimePeriod{
		StartDate: ClearTime(start),
		StartTime: TimeOfDayOf(start),
		TimeZone:  to.String(),
	}
	endDate := ClearTime(end)
	endTime := TimeOfDayOf(end)
	if endTime == 0 && endDate.After(out.StartDate) && daysBetween(out.StartDate, endDate) == 1 && out.StartTime != 0 {
		endDate = out.StartDate
		endTime = EndOfDay
	}
	if endDate.After(out.StartDate) {
		out.EndDate = endDate
	}
	out.EndTime = endTime
	return out
}

// Validate checks the structural invariants of a timed period.
func (p TimePeriod) Validate() error {
	if p.StartDate.IsZero() {
		return errors.Wrap(ErrInvalidPeriod, "start date is required")
	}
	if !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
		return errors.Wrapf(ErrInvalidPeriod, "end date %s before start date %s",
			FormatDate(p.EndDate), FormatDate(p.StartDate))
	}
	if p.StartTime < 0 || p.EndTime > EndOfDay || p.StartTime >= EndOfDay {
		return errors.Wrapf(ErrInvalidPeriod, "time of day out of range: %s-%s", p.StartTime, p.EndTime)
	}
	if !p.SpansMultipleDays() && p.StartTime >= p.EndTime {
		return errors.Wrapf(ErrInvalidPeriod, "start time %s not before end time %s", p.StartTime, p.EndTime)
	}
	if p.TimeZone != "" {
		if _, err := time.LoadLocation(p.TimeZone); err != nil {
			return errors.Wrapf(ErrInvalidPeriod, "unknown time zone %q", p.TimeZone)
		}
	}
	return nil
}

func (p TimePeriod) String() string {
	s := FormatDate(p.StartDate) + " " + p.StartTime.String() + "-"
	if p.SpansMultipleDays() {
		s += FormatDate(p.EndDate) + " "
	}
	s += p.EndTime.String()
	if p.TimeZone != "" {
		s += " " + p.TimeZone
	}
	return s
}
