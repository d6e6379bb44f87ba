package booking

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// =============================================================================
// REQUEST CONTEXT - Explicit caller identity
// =============================================================================

// Roles understood by the engine.
const (
	RoleServiceDesk = "service_desk"
	RoleManager     = "manager"
	RoleApprover    = "approver"
)

// RequestContext identifies the caller of a lifecycle operation. It is passed
// explicitly to every operation.
type RequestContext struct {
	UserID string
	Email  string
	Roles  []string
	Groups []string
}

func (rc RequestContext) HasRole(role string) bool {
	return slices.Contains(rc.Roles, role)
}

// IsElevated is true for service-desk and manager callers. Elevated callers
// bypass lead-time, booking-horizon and security-group restrictions. They
// never bypass existence or availability checks.
func (rc RequestContext) IsElevated() bool {
	return rc.HasRole(RoleServiceDesk) || rc.HasRole(RoleManager)
}

// CanApprove is true for callers allowed to approve or reject allocations.
func (rc RequestContext) CanApprove() bool {
	return rc.IsElevated() || rc.HasRole(RoleApprover)
}

func (rc RequestContext) actor() string {
	if rc.UserID != "" {
		return rc.UserID
	}
	return rc.Email
}

// =============================================================================
// BUILDING CLOCK - Local time at a building
// =============================================================================

// BuildingClock resolves the current date and time at a building. The empty
// building resolves to the generic current time.
type BuildingClock interface {
	CurrentLocalDate(ctx context.Context, building string) (time.Time, error)
	CurrentLocalTime(ctx context.Context, building string) (time.Time, error)
	TimeZone(ctx context.Context, building string) (*time.Location, error)
}

// ZoneClock is a BuildingClock backed by a building to zone table.
type ZoneClock struct {
	Zones   map[string]*time.Location
	Default *time.Location
	Now     func() time.Time
}

// NewZoneClock builds a ZoneClock from IANA zone names.
func NewZoneClock(zones map[string]string, defaultZone string) (*ZoneClock, error) {
	def := time.UTC
	if defaultZone != "" {
		loc, err := time.LoadLocation(defaultZone)
		if err != nil {
			return nil, errors.Wrapf(err, "default zone %q", defaultZone)
		}
		def = loc
	}
	zc := &ZoneClock{Zones: make(map[string]*time.Location, len(zones)), Default: def, Now: time.Now}
	for building, name := range zones {
		loc, err := time.LoadLocation(strings.TrimSpace(name))
		if err != nil {
			return nil, errors.Wrapf(err, "zone for building %q", building)
		}
		zc.Zones[building] = loc
	}
	return zc, nil
}

func (z *ZoneClock) TimeZone(_ context.Context, building string) (*time.Location, error) {
	if loc, ok := z.Zones[building]; ok {
		return loc, nil
	}
	if z.Default != nil {
		return z.Default, nil
	}
	return time.UTC, nil
}

func (z *ZoneClock) CurrentLocalTime(ctx context.Context, building string) (time.Time, error) {
	loc, err := z.TimeZone(ctx, building)
	if err != nil {
		return time.Time{}, err
	}
	now := time.Now
	if z.Now != nil {
		now = z.Now
	}
	return now().In(loc), nil
}

func (z *ZoneClock) CurrentLocalDate(ctx context.Context, building string) (time.Time, error) {
	t, err := z.CurrentLocalTime(ctx, building)
	if err != nil {
		return time.Time{}, err
	}
	return ClearTime(t), nil
}

// =============================================================================
// EMPLOYEE DIRECTORY - Internal/external guest classification
// =============================================================================

// EmployeeDirectory tells employees apart from external guests.
type EmployeeDirectory interface {
	IsEmployee(ctx context.Context, email string) (bool, error)
}

// DomainDirectory treats addresses in any of Domains as employees.
type DomainDirectory struct {
	Domains []string
}

func (d DomainDirectory) IsEmployee(_ context.Context, email string) (bool, error) {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false, nil
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	for _, candidate := range d.Domains {
		if strings.EqualFold(strings.TrimSpace(candidate), domain) {
			return true, nil
		}
	}
	return false, nil
}

// countGuests splits attendees into employees and external guests.
func countGuests(ctx context.Context, dir EmployeeDirectory, attendees []string) (internal, external int, err error) {
	for _, email := range attendees {
		if strings.TrimSpace(email) == "" {
			continue
		}
		ok, err := dir.IsEmployee(ctx, email)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "classify attendee %q", email)
		}
		if ok {
			internal++
		} else {
			external++
		}
	}
	return internal, external, nil
}
