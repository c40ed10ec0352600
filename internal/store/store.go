package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/lefei1980/travel-book-generator/internal/model"
)

// ErrTripNotFound is returned by trip lookups and updates when no trip
// has the given ID.
var ErrTripNotFound = eris.New("trip not found")

// TripFilter specifies criteria for listing trips.
type TripFilter struct {
	Status model.TripStatus `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for trips and the geocode cache.
type Store interface {
	// Trips
	CreateTrip(ctx context.Context, trip model.Trip) (*model.Trip, error)
	GetTrip(ctx context.Context, tripID string) (*model.Trip, error)
	ListTrips(ctx context.Context, filter TripFilter) ([]model.Trip, error)
	UpdateTripStatus(ctx context.Context, tripID string, status model.TripStatus) error
	UpdateTripError(ctx context.Context, tripID string, message string) error
	UpdateTripDays(ctx context.Context, tripID string, days []model.Day) error
	SaveEnriched(ctx context.Context, tripID string, data *model.EnrichedData) error

	// Geocode cache
	GetGeocodeCache(ctx context.Context, query string) (*model.GeocodeCacheEntry, error)
	PutGeocodeCache(ctx context.Context, entry model.GeocodeCacheEntry) error
	SeedGeocodeCache(ctx context.Context, entries []model.GeocodeCacheEntry) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
