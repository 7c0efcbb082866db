package model

import "github.com/google/uuid"

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Unresolved is the sentinel pair carried by a location whose place id has
// not been geocoded yet.
var Unresolved = Coordinates{}

// IsUnresolved reports whether c is still the Unresolved sentinel.
func (c Coordinates) IsUnresolved() bool {
	return c == Unresolved
}

// Location is the listing view of a place and every group held there.
type Location struct {
	ID string `json:"location_id"`
	Coordinates
	Groups map[uuid.UUID]Group `json:"groups"`
}
