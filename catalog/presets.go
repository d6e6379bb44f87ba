/*
Package catalog provides ready-made JSON definitions for common reservables.

PURPOSE:
  Convenience functions that produce catalog JSON for typical facility
  setups. They construct JSON directly so that this package does not
  depend on the factory package.

AVAILABLE PRESETS:
  ConferenceRoomJSON:  Hourly-priced meeting room with a 2-day/17:00 cancel window
  ExecutiveRoomJSON:   Approval-gated boardroom restricted to a security group
  DeskJSON:            Free hot desk, bookable for whole days
  ProjectorJSON:       Unique AV equipment tied to a building
  ChairsJSON:          Limited pool of extra chairs
  CateringJSON:        Unlimited catering service priced per reservation
  HeadquartersJSON:    A small demo building combining all of the above

USAGE:
  cat, err := factory.NewCatalogFactory().ParseCatalog(catalog.HeadquartersJSON("HQ"))

SEE ALSO:
  - factory/catalog.go: JSON schema and parser
*/
package catalog

import "encoding/json"

type object = map[string]any

func marshal(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// =============================================================================
// ROOMS
// =============================================================================

func conferenceRoom(building, floor, room string, capacity int, hourlyRate string) object {
	return object{
		"building":     building,
		"floor":        floor,
		"room":         room,
		"config":       "STD",
		"arrange_type": "CONFERENCE",
		"name":         "Conference " + room,
		"capacity":     capacity,
		"default":      true,
		"terms": object{
			"cost_per_unit":          hourlyRate,
			"cost_unit":              "hour",
			"cancel":                 object{"days": 2, "time": "17:00"},
			"late_cancel_percentage": "50",
			"max_days_ahead":         180,
			"post_block":             15,
			"day_start":              "07:00",
			"day_end":                "20:00",
		},
	}
}

func executiveRoom(building, floor, room string, capacity int) object {
	return object{
		"building":     building,
		"floor":        floor,
		"room":         room,
		"config":       "STD",
		"arrange_type": "BOARDROOM",
		"name":         "Executive " + room,
		"capacity":     capacity,
		"default":      true,
		"terms": object{
			"cost_per_unit":          "40.00",
			"cost_unit":              "half_day",
			"announce":               object{"days": 1, "time": "12:00"},
			"cancel":                 object{"days": 2, "time": "17:00"},
			"late_cancel_percentage": "100",
			"approval_required":      true,
			"pre_block":              30,
			"post_block":             30,
			"security_groups":        []string{"executives", "assistants"},
		},
	}
}

func desk(building, floor, room string) object {
	return object{
		"building":     building,
		"floor":        floor,
		"room":         room,
		"arrange_type": "DESK",
		"name":         "Desk " + room,
		"capacity":     1,
		"default":      true,
		"terms": object{
			"cost_unit":      "day",
			"max_days_ahead": 14,
		},
	}
}

// ConferenceRoomJSON returns a catalog with one hourly conference room.
func ConferenceRoomJSON(building, floor, room string, capacity int, hourlyRate string) string {
	return marshal(object{"rooms": []object{conferenceRoom(building, floor, room, capacity, hourlyRate)}})
}

// ExecutiveRoomJSON returns a catalog with one approval-gated boardroom.
func ExecutiveRoomJSON(building, floor, room string, capacity int) string {
	return marshal(object{"rooms": []object{executiveRoom(building, floor, room, capacity)}})
}

// DeskJSON returns a catalog with one free desk.
func DeskJSON(building, floor, room string) string {
	return marshal(object{"rooms": []object{desk(building, floor, room)}})
}

// =============================================================================
// RESOURCES
// =============================================================================

func projector(id, building string) object {
	return object{
		"id":            id,
		"name":          "Projector",
		"resource_type": "av",
		"mode":          "unique",
		"building":      building,
		"terms": object{
			"cost_per_unit": "15.00",
			"cost_unit":     "reservation",
			"pre_block":     15,
		},
	}
}

func chairs(id string, quantity int) object {
	return object{
		"id":            id,
		"name":          "Extra chairs",
		"resource_type": "furniture",
		"mode":          "limited",
		"quantity":      quantity,
		"terms": object{
			"cost_per_unit": "1.00",
			"cost_unit":     "reservation",
		},
	}
}

func catering(id string) object {
	return object{
		"id":            id,
		"name":          "Coffee and pastries",
		"resource_type": "catering",
		"mode":          "unlimited",
		"terms": object{
			"cost_per_unit":          "4.50",
			"cost_unit":              "reservation",
			"announce":               object{"days": 1, "time": "15:00"},
			"cancel":                 object{"days": 1, "time": "15:00"},
			"late_cancel_percentage": "100",
		},
	}
}

// ProjectorJSON returns a catalog with one projector that stays in building.
func ProjectorJSON(id, building string) string {
	return marshal(object{"resources": []object{projector(id, building)}})
}

// ChairsJSON returns a catalog with a pool of quantity chairs.
func ChairsJSON(id string, quantity int) string {
	return marshal(object{"resources": []object{chairs(id, quantity)}})
}

// CateringJSON returns a catalog with one catering service.
func CateringJSON(id string) string {
	return marshal(object{"resources": []object{catering(id)}})
}

// =============================================================================
// DEMO BUILDING
// =============================================================================

// HeadquartersJSON returns a small building: two conference rooms, an
// executive boardroom, three desks and the shared resources.
func HeadquartersJSON(building string) string {
	return marshal(object{
		"rooms": []object{
			conferenceRoom(building, "1", "101", 10, "5.00"),
			conferenceRoom(building, "1", "102", 4, "2.50"),
			executiveRoom(building, "5", "501", 16),
			desk(building, "2", "D1"),
			desk(building, "2", "D2"),
			desk(building, "2", "D3"),
		},
		"resources": []object{
			projector("projector-"+building, building),
			chairs("chairs", 30),
			catering("coffee"),
		},
	})
}
