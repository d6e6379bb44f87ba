/*
Package factory provides JSON to Go reservable conversion.

PURPOSE:
  Converts JSON catalog definitions into booking.RoomArrangement and
  booking.Resource values. Facility administrators describe rooms and
  resources in JSON, and the factory creates the proper Go structs.

JSON SCHEMA:
  {
    "rooms": [{
      "building": "HQ", "floor": "1", "room": "101",
      "config": "STD", "arrange_type": "CONFERENCE",
      "name": "Boardroom", "capacity": 12, "default": true,
      "terms": {
        "cost_per_unit": "5.00", "cost_unit": "hour",
        "cancel": {"days": 2, "time": "17:00"},
        "late_cancel_percentage": "50",
        "day_start": "08:00", "day_end": "18:00"
      }
    }],
    "resources": [{
      "id": "projector-1", "name": "Projector", "resource_type": "av",
      "mode": "unique", "building": "HQ",
      "terms": {"approval_required": true}
    }]
  }

DEFAULTS:
  - "reservable" is true unless set to false
  - "cost_unit" is "reservation"
  - "mode" is "unique"; "quantity" is 1 for unique resources

USAGE:
  f := factory.NewCatalogFactory()
  cat, err := f.ParseCatalog(catalog.HeadquartersJSON())
  if err != nil { ... }
  err = f.Load(ctx, store, cat)

SEE ALSO:
  - booking/reservable.go: Reservable type definitions
  - catalog/presets.go: Ready-made catalog presets
*/
package factory

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/warp/reservation-engine/booking"
)

// ErrInvalidCatalog marks every validation failure of a catalog document.
var ErrInvalidCatalog = errors.New("invalid catalog")

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a set of reservables.
type CatalogJSON struct {
	Rooms     []RoomJSON     `json:"rooms,omitempty"`
	Resources []ResourceJSON `json:"resources,omitempty"`
}

// RoomJSON is one room arrangement.
type RoomJSON struct {
	Building    string    `json:"building"`
	Floor       string    `json:"floor"`
	Room        string    `json:"room"`
	Config      string    `json:"config,omitempty"`
	ArrangeType string    `json:"arrange_type,omitempty"`
	Name        string    `json:"name,omitempty"`
	Capacity    int       `json:"capacity"`
	IsDefault   bool      `json:"default,omitempty"`
	Terms       TermsJSON `json:"terms"`
}

// ResourceJSON is one resource.
type ResourceJSON struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	ResourceType string    `json:"resource_type,omitempty"`
	Mode         string    `json:"mode,omitempty"` // unique, limited, unlimited
	Quantity     int       `json:"quantity,omitempty"`
	Building     string    `json:"building,omitempty"`
	Terms        TermsJSON `json:"terms"`
}

// TermsJSON represents booking terms. Times of day are "15:04".
type TermsJSON struct {
	Reservable           *bool            `json:"reservable,omitempty"`
	Announce             *LeadTimeJSON    `json:"announce,omitempty"`
	Cancel               *LeadTimeJSON    `json:"cancel,omitempty"`
	MaxDaysAhead         int              `json:"max_days_ahead,omitempty"`
	ApprovalRequired     bool             `json:"approval_required,omitempty"`
	CostPerUnit          *decimal.Decimal `json:"cost_per_unit,omitempty"`
	CostUnit             string           `json:"cost_unit,omitempty"`
	LateCancelPercentage *decimal.Decimal `json:"late_cancel_percentage,omitempty"`
	PreBlock             int              `json:"pre_block,omitempty"`
	PostBlock            int              `json:"post_block,omitempty"`
	DayStart             string           `json:"day_start,omitempty"`
	DayEnd               string           `json:"day_end,omitempty"`
	SecurityGroups       []string         `json:"security_groups,omitempty"`
}

// LeadTimeJSON is a days-ahead requirement with an optional same-day cutoff.
type LeadTimeJSON struct {
	Days int    `json:"days"`
	Time string `json:"time,omitempty"`
}

// Catalog is the parsed form of a CatalogJSON.
type Catalog struct {
	Rooms     []*booking.RoomArrangement
	Resources []*booking.Resource
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// CatalogFactory converts JSON catalogs to Go structs.
type CatalogFactory struct{}

// NewCatalogFactory creates a new catalog factory.
func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// ParseCatalog parses a JSON string into reservables.
func (f *CatalogFactory) ParseCatalog(jsonStr string) (*Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to parse catalog JSON"), ErrInvalidCatalog)
	}
	return f.FromJSON(cj)
}

// FromJSON validates cj and converts it.
func (f *CatalogFactory) FromJSON(cj CatalogJSON) (*Catalog, error) {
	cat := &Catalog{}
	seenRooms := make(map[booking.RoomKey]bool)
	for i, rj := range cj.Rooms {
		room, err := parseRoom(rj)
		if err != nil {
			return nil, errors.Wrapf(err, "rooms[%d]", i)
		}
		if seenRooms[room.Key] {
			return nil, invalidf("rooms[%d]: duplicate room %s", i, room.Key)
		}
		seenRooms[room.Key] = true
		cat.Rooms = append(cat.Rooms, room)
	}

	seenResources := make(map[string]bool)
	for i, rj := range cj.Resources {
		res, err := parseResource(rj)
		if err != nil {
			return nil, errors.Wrapf(err, "resources[%d]", i)
		}
		if seenResources[res.ID] {
			return nil, invalidf("resources[%d]: duplicate resource %s", i, res.ID)
		}
		seenResources[res.ID] = true
		cat.Resources = append(cat.Resources, res)
	}
	return cat, nil
}

// Load writes every reservable of cat.
func (f *CatalogFactory) Load(ctx context.Context, w booking.CatalogWriter, cat *Catalog) error {
	for _, r := range cat.Rooms {
		if err := w.SaveRoomArrangement(ctx, r); err != nil {
			return errors.Wrapf(err, "load room %s", r.Key)
		}
	}
	for _, r := range cat.Resources {
		if err := w.SaveResource(ctx, r); err != nil {
			return errors.Wrapf(err, "load resource %s", r.ID)
		}
	}
	return nil
}

// ToJSON converts reservables back to their JSON form.
func (f *CatalogFactory) ToJSON(cat *Catalog) CatalogJSON {
	var cj CatalogJSON
	for _, r := range cat.Rooms {
		cj.Rooms = append(cj.Rooms, RoomJSON{
			Building:    r.Key.Building,
			Floor:       r.Key.Floor,
			Room:        r.Key.Room,
			Config:      r.Key.Config,
			ArrangeType: r.Key.ArrangeType,
			Name:        r.Name,
			Capacity:    r.Capacity,
			IsDefault:   r.IsDefault,
			Terms:       termsToJSON(r.Terms),
		})
	}
	for _, r := range cat.Resources {
		cj.Resources = append(cj.Resources, ResourceJSON{
			ID:           r.ID,
			Name:         r.Name,
			ResourceType: r.ResourceType,
			Mode:         string(r.Mode),
			Quantity:     r.Quantity,
			Building:     r.HomeBuilding,
			Terms:        termsToJSON(r.Terms),
		})
	}
	return cj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func invalidf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidCatalog)
}

func parseRoom(rj RoomJSON) (*booking.RoomArrangement, error) {
	if rj.Building == "" || rj.Room == "" {
		return nil, invalidf("building and room are required")
	}
	if rj.Capacity < 0 {
		return nil, invalidf("negative capacity %d", rj.Capacity)
	}
	terms, err := parseTerms(rj.Terms)
	if err != nil {
		return nil, err
	}
	key := booking.RoomKey{
		Building:    rj.Building,
		Floor:       rj.Floor,
		Room:        rj.Room,
		Config:      rj.Config,
		ArrangeType: rj.ArrangeType,
	}
	name := rj.Name
	if name == "" {
		name = key.String()
	}
	return &booking.RoomArrangement{
		Key:       key,
		Name:      name,
		Capacity:  rj.Capacity,
		IsDefault: rj.IsDefault,
		Terms:     terms,
	}, nil
}

func parseResource(rj ResourceJSON) (*booking.Resource, error) {
	if rj.ID == "" {
		return nil, invalidf("resource id is required")
	}
	mode := booking.ModeUnique
	if rj.Mode != "" {
		mode = booking.ResourceMode(rj.Mode)
	}
	if !mode.Valid() {
		return nil, invalidf("unknown resource mode %q", rj.Mode)
	}

	quantity := rj.Quantity
	switch mode {
	case booking.ModeUnique:
		quantity = 1
	case booking.ModeLimited:
		if quantity < 1 {
			return nil, invalidf("limited resource %s needs a positive quantity", rj.ID)
		}
	case booking.ModeUnlimited:
		quantity = 0
	}

	terms, err := parseTerms(rj.Terms)
	if err != nil {
		return nil, err
	}
	name := rj.Name
	if name == "" {
		name = rj.ID
	}
	return &booking.Resource{
		ID:           rj.ID,
		Name:         name,
		ResourceType: rj.ResourceType,
		Mode:         mode,
		Quantity:     quantity,
		HomeBuilding: rj.Building,
		Terms:        terms,
	}, nil
}

func parseTerms(tj TermsJSON) (booking.Terms, error) {
	t := booking.Terms{
		Reservable:       tj.Reservable == nil || *tj.Reservable,
		MaxDaysAhead:     tj.MaxDaysAhead,
		ApprovalRequired: tj.ApprovalRequired,
		CostUnit:         booking.CostPerReservation,
		PreBlock:         tj.PreBlock,
		PostBlock:        tj.PostBlock,
		SecurityGroups:   tj.SecurityGroups,
	}
	if tj.MaxDaysAhead < 0 || tj.PreBlock < 0 || tj.PostBlock < 0 {
		return t, invalidf("max_days_ahead, pre_block and post_block must not be negative")
	}

	if tj.CostUnit != "" {
		t.CostUnit = booking.CostUnit(tj.CostUnit)
		if !t.CostUnit.Valid() {
			return t, invalidf("unknown cost unit %q", tj.CostUnit)
		}
	}
	if tj.CostPerUnit != nil {
		if tj.CostPerUnit.IsNegative() {
			return t, invalidf("negative cost_per_unit")
		}
		t.CostPerUnit = *tj.CostPerUnit
	}
	if tj.LateCancelPercentage != nil {
		p := *tj.LateCancelPercentage
		if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100)) {
			return t, invalidf("late_cancel_percentage %s out of range", p)
		}
		t.LateCancelPercentage = p
	}

	var err error
	if t.Announce, err = parseLeadTime(tj.Announce); err != nil {
		return t, errors.Wrap(err, "announce")
	}
	if t.Cancel, err = parseLeadTime(tj.Cancel); err != nil {
		return t, errors.Wrap(err, "cancel")
	}

	if tj.DayStart != "" || tj.DayEnd != "" {
		if t.DayStart, err = parseTime(tj.DayStart); err != nil {
			return t, err
		}
		if t.DayEnd, err = parseTime(tj.DayEnd); err != nil {
			return t, err
		}
		if t.DayEnd <= t.DayStart {
			return t, invalidf("day_end %s must be after day_start %s", t.DayEnd, t.DayStart)
		}
	}
	return t, nil
}

func parseLeadTime(lj *LeadTimeJSON) (booking.LeadTime, error) {
	if lj == nil {
		return booking.LeadTime{}, nil
	}
	if lj.Days < 0 {
		return booking.LeadTime{}, invalidf("negative days %d", lj.Days)
	}
	lt := booking.LeadTime{Days: lj.Days}
	if lj.Time != "" {
		t, err := parseTime(lj.Time)
		if err != nil {
			return lt, err
		}
		lt.Time = &t
	}
	return lt, nil
}

func parseTime(s string) (booking.TimeOfDay, error) {
	if s == "" {
		return 0, invalidf("time of day is required")
	}
	t, err := booking.ParseTimeOfDay(s)
	if err != nil {
		return 0, errors.Mark(err, ErrInvalidCatalog)
	}
	return t, nil
}

func termsToJSON(t booking.Terms) TermsJSON {
	reservable := t.Reservable
	tj := TermsJSON{
		Reservable:       &reservable,
		MaxDaysAhead:     t.MaxDaysAhead,
		ApprovalRequired: t.ApprovalRequired,
		CostUnit:         string(t.CostUnit),
		PreBlock:         t.PreBlock,
		PostBlock:        t.PostBlock,
		SecurityGroups:   t.SecurityGroups,
	}
	if !t.CostPerUnit.IsZero() {
		c := t.CostPerUnit
		tj.CostPerUnit = &c
	}
	if !t.LateCancelPercentage.IsZero() {
		p := t.LateCancelPercentage
		tj.LateCancelPercentage = &p
	}
	tj.Announce = leadTimeToJSON(t.Announce)
	tj.Cancel = leadTimeToJSON(t.Cancel)
	if t.DayStart != 0 || t.DayEnd != 0 {
		tj.DayStart = t.DayStart.String()
		tj.DayEnd = t.DayEnd.String()
	}
	return tj
}

func leadTimeToJSON(lt booking.LeadTime) *LeadTimeJSON {
	if lt.Days == 0 && lt.Time == nil {
		return nil
	}
	lj := &LeadTimeJSON{Days: lt.Days}
	if lt.Time != nil {
		lj.Time = lt.Time.String()
	}
	return lj
}
