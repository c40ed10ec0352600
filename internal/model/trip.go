package model

import "time"

// TripStatus represents the current pipeline stage of a trip.
type TripStatus string

const (
	TripStatusPending   TripStatus = "pending"
	TripStatusGeocoding TripStatus = "geocoding"
	TripStatusRouting   TripStatus = "routing"
	TripStatusEnriching TripStatus = "enriching"
	TripStatusRendering TripStatus = "rendering"
	TripStatusComplete  TripStatus = "complete"
	TripStatusError     TripStatus = "error"
)

// Stages lists the pipeline stages in execution order. The orchestrator
// walks this list strictly in sequence; there is no skipping or re-entry
// short of a full restart.
var Stages = []TripStatus{
	TripStatusGeocoding,
	TripStatusRouting,
	TripStatusEnriching,
	TripStatusRendering,
}

// Terminal reports whether the status accepts no further transitions.
func (s TripStatus) Terminal() bool {
	return s == TripStatusComplete || s == TripStatusError
}

// Next returns the stage that follows s, or complete when s is the last
// stage. Calling Next on pending returns the first stage.
func (s TripStatus) Next() TripStatus {
	if s == TripStatusPending {
		return Stages[0]
	}
	for i, stage := range Stages {
		if stage == s {
			if i == len(Stages)-1 {
				return TripStatusComplete
			}
			return Stages[i+1]
		}
	}
	return TripStatusError
}

// PlaceCategory classifies a place as typed by the user.
type PlaceCategory string

const (
	CategoryHotel      PlaceCategory = "hotel"
	CategoryAttraction PlaceCategory = "attraction"
	CategoryRestaurant PlaceCategory = "restaurant"
)

// ValidCategory reports whether c is one of the three accepted categories.
func ValidCategory(c PlaceCategory) bool {
	switch c {
	case CategoryHotel, CategoryAttraction, CategoryRestaurant:
		return true
	}
	return false
}

// Trip is a day-by-day itinerary submitted for processing. It is created
// on submission and mutated only by the pipeline orchestrator, one stage
// at a time, until it reaches complete or error.
type Trip struct {
	ID           string        `json:"id" yaml:"id"`
	Title        string        `json:"title" yaml:"title"`
	StartDate    string        `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate      string        `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Status       TripStatus    `json:"status" yaml:"-"`
	ErrorMessage string        `json:"error_message,omitempty" yaml:"-"`
	Days         []Day         `json:"days" yaml:"days"`
	Enriched     *EnrichedData `json:"enriched_data,omitempty" yaml:"-"`
	CreatedAt    time.Time     `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time     `json:"updated_at" yaml:"-"`
}

// Day is one itinerary day with free-text start/end locations and an
// ordered list of places.
type Day struct {
	DayNumber     int     `json:"day_number" yaml:"day_number"`
	StartLocation string  `json:"start_location,omitempty" yaml:"start_location,omitempty"`
	EndLocation   string  `json:"end_location,omitempty" yaml:"end_location,omitempty"`
	Places        []Place `json:"places" yaml:"places"`
}

// Place is a single itinerary entry exactly as the user typed it. The
// user-typed fields are immutable; coordinates are written once per
// pipeline run (a re-run overwrites).
type Place struct {
	Name        string        `json:"name" yaml:"name"`
	Category    PlaceCategory `json:"category" yaml:"category"`
	OrderIndex  int           `json:"order_index" yaml:"order_index"`
	CityHint    string        `json:"city,omitempty" yaml:"city,omitempty"`
	CountryHint string        `json:"country,omitempty" yaml:"country,omitempty"`
	Latitude    *float64      `json:"latitude,omitempty" yaml:"-"`
	Longitude   *float64      `json:"longitude,omitempty" yaml:"-"`
}

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeocodeCacheEntry is a persisted geocoding result keyed by the exact
// normalized query string. Entries never expire within a run and persist
// across runs.
type GeocodeCacheEntry struct {
	Query       string     `json:"query"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	DisplayName string     `json:"display_name,omitempty"`
	Source      string     `json:"source,omitempty"`
	Confidence  Confidence `json:"confidence,omitempty"`
	CachedAt    time.Time  `json:"cached_at"`
}
