package enums

import (
	"fmt"
	"strings"
)

// Location identifies one of the two physical storage points.
type Location string

const (
	Location1 Location = "location1"
	Location2 Location = "location2"
)

var validLocations = []Location{
	Location1,
	Location2,
}

// String implements fmt.Stringer.
func (l Location) String() string {
	return string(l)
}

// IsValid reports whether the value is a known Location.
func (l Location) IsValid() bool {
	for _, candidate := range validLocations {
		if candidate == l {
			return true
		}
	}
	return false
}

// Column returns the items table column holding the quantity for this location.
func (l Location) Column() string {
	switch l {
	case Location1:
		return "location1_qty"
	case Location2:
		return "location2_qty"
	default:
		return ""
	}
}

// ParseLocation accepts the canonical names plus the short forms loc1/loc2.
func ParseLocation(value string) (Location, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "location1", "loc1":
		return Location1, nil
	case "location2", "loc2":
		return Location2, nil
	}
	return "", fmt.Errorf("invalid location %q", value)
}
