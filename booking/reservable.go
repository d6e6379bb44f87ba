package booking

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// =============================================================================
// TERMS - Capability set shared by every reservable
// =============================================================================

// CostUnit selects how the raw billable units of a booking are measured.
type CostUnit string

const (
	CostPerReservation CostUnit = "reservation"
	CostPerMinute      CostUnit = "minute"
	CostPerHour        CostUnit = "hour"
	CostPerHalfDay     CostUnit = "half_day"
	CostPerDay         CostUnit = "day"
)

func (u CostUnit) Valid() bool {
	switch u {
	case CostPerReservation, CostPerMinute, CostPerHour, CostPerHalfDay, CostPerDay:
		return true
	}
	return false
}

// LeadTime is a "days ahead plus same-day cutoff" requirement. Acting on a
// slot fewer than Days days ahead is a violation; acting exactly Days days
// ahead after Time (building-local) is also a violation.
type LeadTime struct {
	Days int
	Time *TimeOfDay
}

// Terms carries the rules an administrator configures on a reservable.
type Terms struct {
	Reservable       bool
	Announce         LeadTime
	Cancel           LeadTime
	MaxDaysAhead     int // 0 = no limit
	ApprovalRequired bool

	CostPerUnit          decimal.Decimal
	CostUnit             CostUnit
	LateCancelPercentage decimal.Decimal

	// Turnaround minutes blocked before and after every booking.
	PreBlock  int
	PostBlock int

	// Open hours. Both zero means always open.
	DayStart TimeOfDay
	DayEnd   TimeOfDay

	// Empty means anyone may book.
	SecurityGroups []string
}

func (t Terms) hasOpenHours() bool {
	return t.DayStart != 0 || t.DayEnd != 0
}

// Allows reports whether a caller in groups passes the security restriction.
func (t Terms) Allows(groups []string) bool {
	if len(t.SecurityGroups) == 0 {
		return true
	}
	for _, g := range groups {
		if slices.Contains(t.SecurityGroups, g) {
			return true
		}
	}
	return false
}

// =============================================================================
// RESERVABLE - Tagged union over RoomArrangement and Resource
// =============================================================================

// Reservable is the capability set the engine needs from a bookable thing.
// Implemented by *RoomArrangement and *Resource only.
type Reservable interface {
	Kind() Kind
	Ref() ReservableRef
	// Building returns the building the reservable lives in, or "" when it
	// has no site association.
	Building() string
	BookingTerms() Terms
}

// RoomKey is the composite identity of a room arrangement.
type RoomKey struct {
	Building    string `json:"building"`
	Floor       string `json:"floor"`
	Room        string `json:"room"`
	Config      string `json:"config"`
	ArrangeType string `json:"arrange_type"`
}

// Location drops the configuration part of the key.
func (k RoomKey) Location() RoomKey {
	return RoomKey{Building: k.Building, Floor: k.Floor, Room: k.Room}
}

func (k RoomKey) SameLocation(other RoomKey) bool {
	return k.Location() == other.Location()
}

func (k RoomKey) String() string {
	s := k.Building + "-" + k.Floor + "-" + k.Room
	if k.Config != "" || k.ArrangeType != "" {
		s += "/" + k.Config + "/" + k.ArrangeType
	}
	return s
}

// ReservableRef is a comparable reference to either variant. Exactly one of
// Room and ResourceID is meaningful, selected by Kind.
type ReservableRef struct {
	Kind       Kind
	Room       RoomKey
	ResourceID string
}

func RoomRef(key RoomKey) ReservableRef {
	return ReservableRef{Kind: KindRoom, Room: key}
}

func ResourceRef(id string) ReservableRef {
	return ReservableRef{Kind: KindResource, ResourceID: id}
}

func (r ReservableRef) String() string {
	switch r.Kind {
	case KindRoom:
		return "room " + r.Room.String()
	case KindResource:
		return "resource " + r.ResourceID
	default:
		return fmt.Sprintf("unknown reservable %q", r.Kind)
	}
}

// RoomArrangement is one bookable configuration of a room.
type RoomArrangement struct {
	Key       RoomKey
	Name      string
	Capacity  int
	IsDefault bool
	Terms
}

func (r *RoomArrangement) Kind() Kind          { return KindRoom }
func (r *RoomArrangement) Ref() ReservableRef  { return RoomRef(r.Key) }
func (r *RoomArrangement) Building() string    { return r.Key.Building }
func (r *RoomArrangement) BookingTerms() Terms { return r.Terms }

// ResourceMode selects the conflict semantics of a resource.
type ResourceMode string

const (
	// ModeUnique resources can be held by one booking at a time.
	ModeUnique ResourceMode = "unique"
	// ModeLimited resources have a total quantity shared by concurrent bookings.
	ModeLimited ResourceMode = "limited"
	// ModeUnlimited resources are not capacity-bound (catering, services).
	ModeUnlimited ResourceMode = "unlimited"
)

func (m ResourceMode) Valid() bool {
	return m == ModeUnique || m == ModeLimited || m == ModeUnlimited
}

// Resource is a piece of equipment or a service booked alongside a room.
type Resource struct {
	ID           string
	Name         string
	ResourceType string
	Mode         ResourceMode
	Quantity     int
	// HomeBuilding restricts the resource to rooms in that building. Empty
	// means the resource may travel anywhere.
	HomeBuilding string
	Terms
}

func (r *Resource) Kind() Kind          { return KindResource }
func (r *Resource) Ref() ReservableRef  { return ResourceRef(r.ID) }
func (r *Resource) Building() string    { return r.HomeBuilding }
func (r *Resource) BookingTerms() Terms { return r.Terms }

// AllowedIn reports whether the resource may be delivered to room.
func (r *Resource) AllowedIn(room RoomKey) bool {
	return r.HomeBuilding == "" || r.HomeBuilding == room.Building
}

// =============================================================================
// CATALOG - Resolved reservables for one operation
// =============================================================================

// Catalog maps references to the reservables an operation has loaded.
type Catalog map[ReservableRef]Reservable

func (c Catalog) Add(r Reservable) {
	c[r.Ref()] = r
}

// Lookup returns the reservable or a NotFound error.
func (c Catalog) Lookup(ref ReservableRef) (Reservable, error) {
	r, ok := c[ref]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", ref)
	}
	return r, nil
}

func (c Catalog) room(key RoomKey) (*RoomArrangement, bool) {
	r, ok := c[RoomRef(key)].(*RoomArrangement)
	return r, ok
}

func (c Catalog) resource(id string) (*Resource, bool) {
	r, ok := c[ResourceRef(id)].(*Resource)
	return r, ok
}
