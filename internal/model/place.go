package model

import "time"

// Place is a geocoded external place id, kept so a location is only ever
// looked up once, even across restarts.
type Place struct {
	ID          string      `json:"place_id"`
	Coordinates Coordinates `json:"coordinates"`
	ResolvedAt  time.Time   `json:"resolved_at"`
}
