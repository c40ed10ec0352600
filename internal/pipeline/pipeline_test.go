package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lefei1980/travel-book-generator/internal/config"
	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/resilience"
	"github.com/lefei1980/travel-book-generator/internal/resolver"
	"github.com/lefei1980/travel-book-generator/internal/route"
	"github.com/lefei1980/travel-book-generator/internal/store"
)

// memStore is an in-memory store.Store for orchestrator tests.
type memStore struct {
	trips       map[string]*model.Trip
	cache       map[string]model.GeocodeCacheEntry
	statusTrail []model.TripStatus
	saves       int
}

func newMemStore() *memStore {
	return &memStore{
		trips: map[string]*model.Trip{},
		cache: map[string]model.GeocodeCacheEntry{},
	}
}

func (m *memStore) CreateTrip(ctx context.Context, trip model.Trip) (*model.Trip, error) {
	trip.ID = "trip-1"
	trip.Status = model.TripStatusPending
	m.trips[trip.ID] = &trip
	return &trip, nil
}

func (m *memStore) GetTrip(ctx context.Context, tripID string) (*model.Trip, error) {
	t, ok := m.trips[tripID]
	if !ok {
		return nil, eris.Errorf("trip not found: %s", tripID)
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) ListTrips(ctx context.Context, filter store.TripFilter) ([]model.Trip, error) {
	var out []model.Trip
	for _, t := range m.trips {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memStore) UpdateTripStatus(ctx context.Context, tripID string, status model.TripStatus) error {
	m.trips[tripID].Status = status
	m.statusTrail = append(m.statusTrail, status)
	return nil
}

func (m *memStore) UpdateTripError(ctx context.Context, tripID string, message string) error {
	m.trips[tripID].Status = model.TripStatusError
	m.trips[tripID].ErrorMessage = message
	m.statusTrail = append(m.statusTrail, model.TripStatusError)
	return nil
}

func (m *memStore) UpdateTripDays(ctx context.Context, tripID string, days []model.Day) error {
	m.trips[tripID].Days = days
	return nil
}

func (m *memStore) SaveEnriched(ctx context.Context, tripID string, data *model.EnrichedData) error {
	m.trips[tripID].Enriched = data
	m.saves++
	return nil
}

func (m *memStore) GetGeocodeCache(ctx context.Context, query string) (*model.GeocodeCacheEntry, error) {
	if e, ok := m.cache[query]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *memStore) PutGeocodeCache(ctx context.Context, entry model.GeocodeCacheEntry) error {
	m.cache[entry.Query] = entry
	return nil
}

func (m *memStore) SeedGeocodeCache(ctx context.Context, entries []model.GeocodeCacheEntry) (int64, error) {
	for _, e := range entries {
		m.cache[e.Query] = e
	}
	return int64(len(entries)), nil
}

func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Ping(ctx context.Context) error    { return nil }
func (m *memStore) Close() error                      { return nil }

type stubResolver struct {
	coords   map[string][2]float64 // name -> lat, lon
	rejected bool
	calls    int
}

func (s *stubResolver) Resolve(ctx context.Context, name, cityHint, countryHint string) (*model.ResolvedPlace, error) {
	s.calls++
	if s.rejected {
		return nil, &resilience.ProviderRejectedError{Provider: "nominatim", StatusCode: 403, Message: "missing user agent"}
	}
	if c, ok := s.coords[name]; ok {
		return &model.ResolvedPlace{Name: name, Latitude: c[0], Longitude: c[1], Confidence: model.ConfidenceHigh}, nil
	}
	return nil, eris.Wrapf(resolver.ErrUnresolved, "no candidate accepted for %q", name)
}

func (s *stubResolver) ResolveLocation(ctx context.Context, text, cityContext string) (*model.ResolvedPlace, error) {
	return s.Resolve(ctx, text, "", "")
}

type stubMatcher struct {
	content map[string]*model.PlaceContent
}

func (s *stubMatcher) Match(ctx context.Context, name string, lat, lon float64) (*model.PlaceContent, error) {
	return s.content[name], nil
}

type stubBuilder struct {
	unavailableDays map[int]bool
	builtDays       []int
}

func (s *stubBuilder) Build(ctx context.Context, day model.Day, geo *model.GeocodingResult) (*model.Route, error) {
	if s.unavailableDays[day.DayNumber] {
		return nil, eris.Wrapf(route.ErrRouteUnavailable, "day %d", day.DayNumber)
	}
	s.builtDays = append(s.builtDays, day.DayNumber)
	return &model.Route{TotalDistanceM: 1000, Waypoints: []string{"a", "b"}}, nil
}

type stubRenderer struct {
	path string
	err  error
}

func (s *stubRenderer) Render(ctx context.Context, trip *model.Trip) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.path, nil
}

func seedTrip(t *testing.T, st *memStore) *model.Trip {
	t.Helper()
	trip, err := st.CreateTrip(context.Background(), model.Trip{
		Title: "Old San Juan Weekend",
		Days: []model.Day{
			{
				DayNumber:     1,
				StartLocation: "Hotel Palacio",
				EndLocation:   "Hotel Palacio",
				Places: []model.Place{
					{Name: "El Morro", Category: model.CategoryAttraction, CityHint: "San Juan"},
					{Name: "La Bombonera", Category: model.CategoryRestaurant, CityHint: "San Juan"},
				},
			},
		},
	})
	require.NoError(t, err)
	return trip
}

func defaultResolver() *stubResolver {
	return &stubResolver{coords: map[string][2]float64{
		"El Morro":      {18.4708, -66.1239},
		"La Bombonera":  {18.4662, -66.1180},
		"Hotel Palacio": {18.4655, -66.1057},
	}}
}

func newTestOrchestrator(st *memStore, res PlaceResolver, m ContentMatcher, b RouteBuilder, r Renderer) *Orchestrator {
	return New(st, res, m, b, r, config.Config{
		Content: config.ContentConfig{Concurrency: 2},
	})
}

func TestRun_HappyPath(t *testing.T) {
	st := newMemStore()
	trip := seedTrip(t, st)

	matcher := &stubMatcher{content: map[string]*model.PlaceContent{
		"El Morro": {CanonicalTitle: "Castillo San Felipe del Morro", Description: "A citadel.", ImageURL: "https://img/morro.jpg"},
	}}
	o := newTestOrchestrator(st, defaultResolver(), matcher, &stubBuilder{}, &stubRenderer{path: "/books/trip-1.html"})

	require.NoError(t, o.Run(context.Background(), trip.ID))

	got := st.trips[trip.ID]
	assert.Equal(t, model.TripStatusComplete, got.Status)
	assert.Equal(t, []model.TripStatus{
		model.TripStatusGeocoding,
		model.TripStatusRouting,
		model.TripStatusEnriching,
		model.TripStatusRendering,
		model.TripStatusComplete,
	}, st.statusTrail)
	assert.Equal(t, 4, st.saves, "snapshot must be persisted after every stage")

	require.NotNil(t, got.Enriched)
	require.NotNil(t, got.Enriched.Geocoding)
	assert.Contains(t, got.Enriched.Geocoding.Places, "El Morro")
	require.NotNil(t, got.Enriched.Geocoding.StartEndCoord["1"].Start)
	require.NotNil(t, got.Enriched.Routing)
	require.NotNil(t, got.Enriched.Enrichment)
	assert.Equal(t, "Castillo San Felipe del Morro", got.Enriched.Enrichment.Places["El Morro"].CanonicalTitle)
	assert.Equal(t, "/books/trip-1.html", got.Enriched.ArtifactPath)

	// Resolved coordinates are written back onto the places.
	require.NotNil(t, got.Days[0].Places[0].Latitude)
	assert.InDelta(t, 18.4708, *got.Days[0].Places[0].Latitude, 1e-9)
}

func TestRun_UnresolvedPlaceIsIsolated(t *testing.T) {
	st := newMemStore()
	trip := seedTrip(t, st)

	res := defaultResolver()
	delete(res.coords, "El Morro")
	o := newTestOrchestrator(st, res, &stubMatcher{}, &stubBuilder{}, &stubRenderer{path: "/books/x.html"})

	require.NoError(t, o.Run(context.Background(), trip.ID))

	got := st.trips[trip.ID]
	assert.Equal(t, model.TripStatusComplete, got.Status)
	require.NotNil(t, got.Enriched.Geocoding)
	assert.NotContains(t, got.Enriched.Geocoding.Places, "El Morro")
	require.Len(t, got.Enriched.Geocoding.Unresolved, 1)
	assert.Equal(t, "El Morro", got.Enriched.Geocoding.Unresolved[0].Name)
	assert.NotEmpty(t, got.Enriched.Geocoding.Unresolved[0].Reason)
}

func TestRun_ProviderRejectedFailsTrip(t *testing.T) {
	st := newMemStore()
	trip := seedTrip(t, st)

	o := newTestOrchestrator(st, &stubResolver{rejected: true}, &stubMatcher{}, &stubBuilder{}, &stubRenderer{})

	err := o.Run(context.Background(), trip.ID)
	require.Error(t, err)

	got := st.trips[trip.ID]
	assert.Equal(t, model.TripStatusError, got.Status)
	assert.Contains(t, got.ErrorMessage, "missing user agent")
}

func TestRun_RouteUnavailableDayContinues(t *testing.T) {
	st := newMemStore()
	trip := seedTrip(t, st)

	o := newTestOrchestrator(st, defaultResolver(), &stubMatcher{}, &stubBuilder{unavailableDays: map[int]bool{1: true}}, &stubRenderer{path: "/books/x.html"})

	require.NoError(t, o.Run(context.Background(), trip.ID))

	got := st.trips[trip.ID]
	assert.Equal(t, model.TripStatusComplete, got.Status)
	require.Contains(t, got.Enriched.Routing.Routes, "1")
	assert.Nil(t, got.Enriched.Routing.Routes["1"])
}

func TestRun_RenderFailureIsStageFatal(t *testing.T) {
	st := newMemStore()
	trip := seedTrip(t, st)

	o := newTestOrchestrator(st, defaultResolver(), &stubMatcher{}, &stubBuilder{}, &stubRenderer{err: eris.New("template missing")})

	err := o.Run(context.Background(), trip.ID)
	require.Error(t, err)

	got := st.trips[trip.ID]
	assert.Equal(t, model.TripStatusError, got.Status)
	assert.Contains(t, got.ErrorMessage, "template missing")
	// Work done before the fatal stage stays persisted.
	require.NotNil(t, got.Enriched)
	assert.NotNil(t, got.Enriched.Geocoding)
	assert.NotNil(t, got.Enriched.Enrichment)
}

func TestRun_ResumesFromLastCompletedStage(t *testing.T) {
	st := newMemStore()
	trip := seedTrip(t, st)

	// Simulate an interrupted run: geocoding finished and persisted.
	st.trips[trip.ID].Status = model.TripStatusGeocoding
	st.trips[trip.ID].Enriched = &model.EnrichedData{
		Geocoding: &model.GeocodingResult{
			Places: map[string]model.ResolvedPlace{
				"El Morro": {Name: "El Morro", Latitude: 18.4708, Longitude: -66.1239},
			},
			StartEndCoord: map[string]model.DayEndpoints{"1": {}},
		},
	}

	res := defaultResolver()
	o := newTestOrchestrator(st, res, &stubMatcher{}, &stubBuilder{}, &stubRenderer{path: "/books/x.html"})

	require.NoError(t, o.Run(context.Background(), trip.ID))

	assert.Equal(t, 0, res.calls, "completed geocoding stage must not rerun")
	assert.Equal(t, model.TripStatusComplete, st.trips[trip.ID].Status)
	assert.NotContains(t, st.statusTrail, model.TripStatusGeocoding)
}

func TestRun_TerminalTripRejected(t *testing.T) {
	st := newMemStore()
	trip := seedTrip(t, st)
	st.trips[trip.ID].Status = model.TripStatusComplete

	o := newTestOrchestrator(st, defaultResolver(), &stubMatcher{}, &stubBuilder{}, &stubRenderer{})

	err := o.Run(context.Background(), trip.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already complete")
}
