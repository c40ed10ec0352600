package resolver

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lefei1980/travel-book-generator/internal/config"
	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/resilience"
	"github.com/lefei1980/travel-book-generator/pkg/nominatim"
)

type fakeGeocoder struct {
	results map[string][]nominatim.Candidate
	err     error
	calls   []string
}

func (f *fakeGeocoder) Search(ctx context.Context, query string, limit int) ([]nominatim.Candidate, error) {
	f.calls = append(f.calls, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

type fakeCache struct {
	entries map[string]model.GeocodeCacheEntry
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]model.GeocodeCacheEntry{}}
}

func (f *fakeCache) GetGeocodeCache(ctx context.Context, query string) (*model.GeocodeCacheEntry, error) {
	if e, ok := f.entries[query]; ok {
		return &e, nil
	}
	return nil, nil
}

func (f *fakeCache) PutGeocodeCache(ctx context.Context, entry model.GeocodeCacheEntry) error {
	f.entries[entry.Query] = entry
	return nil
}

type fakeSuggester struct {
	variants []string
	err      error
	calls    int
}

func (f *fakeSuggester) NameVariants(ctx context.Context, place, city, country string) ([]string, error) {
	f.calls++
	return f.variants, f.err
}

func testResolverConfig() config.ResolverConfig {
	return config.ResolverConfig{
		AcceptScore:      60,
		MediumScore:      40,
		FallbackScore:    20,
		NameMatchBonus:   50,
		CityHintBonus:    20,
		CountryHintBonus: 20,
		ImportanceWeight: 10,
		MaxRetries:       1,
	}
}

func TestResolve_LouvreFirstVariantHighConfidence(t *testing.T) {
	geo := &fakeGeocoder{results: map[string][]nominatim.Candidate{
		"Louvre, Paris, France": {
			{DisplayName: "Louvre, Rue de Rivoli, Paris, France", Latitude: 48.8606, Longitude: 2.3376, Importance: 0.9},
		},
	}}
	r := New(geo, newFakeCache(), nil, testResolverConfig())

	rp, err := r.Resolve(context.Background(), "The Louvre Museum", "Paris", "France")
	require.NoError(t, err)
	assert.Equal(t, "Louvre, Paris, France", rp.Query)
	assert.Equal(t, model.ConfidenceHigh, rp.Confidence)
	assert.GreaterOrEqual(t, rp.Score, 60.0)
	assert.InDelta(t, 48.8606, rp.Latitude, 1e-9)
	assert.Len(t, geo.calls, 1)
}

func TestResolve_CountryHintIsHardFilter(t *testing.T) {
	// A convincing same-named match on the wrong continent must never
	// be accepted, whatever its score.
	spain := []nominatim.Candidate{
		{DisplayName: "El Mesón, Calle Mayor, Sevilla, España", Latitude: 37.39, Longitude: -5.99, Importance: 0.8},
	}
	geo := &fakeGeocoder{results: map[string][]nominatim.Candidate{
		"El Mesón, Puerto Rico": spain,
		"El Mesón":              spain,
	}}
	r := New(geo, newFakeCache(), nil, testResolverConfig())

	_, err := r.Resolve(context.Background(), "El Mesón", "", "Puerto Rico")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnresolved))
}

func TestResolve_CacheHitSkipsNetwork(t *testing.T) {
	cache := newFakeCache()
	cache.entries["Louvre, Paris, France"] = model.GeocodeCacheEntry{
		Query:       "Louvre, Paris, France",
		Latitude:    48.8606,
		Longitude:   2.3376,
		DisplayName: "Louvre, Rue de Rivoli, Paris, France",
	}
	geo := &fakeGeocoder{}
	r := New(geo, cache, nil, testResolverConfig())

	rp, err := r.Resolve(context.Background(), "The Louvre Museum", "Paris", "France")
	require.NoError(t, err)
	assert.InDelta(t, 48.8606, rp.Latitude, 1e-9)
	assert.Empty(t, geo.calls, "cache hit must issue zero network calls")
}

func TestResolve_CacheHitRespectsCountryHint(t *testing.T) {
	// A hint-less run accepts and caches a Spanish match under the bare
	// normalized query. A later call naming Puerto Rico must treat that
	// entry as a miss and go back to the network, never return it.
	geo := &fakeGeocoder{results: map[string][]nominatim.Candidate{
		"El Mesón": {
			{DisplayName: "El Mesón, Calle Mayor, Madrid, Spain", Latitude: 40.41, Longitude: -3.70, Importance: 0.8},
		},
	}}
	cache := newFakeCache()
	r := New(geo, cache, nil, testResolverConfig())

	first, err := r.Resolve(context.Background(), "El Mesón", "", "")
	require.NoError(t, err)
	assert.Contains(t, first.DisplayName, "Spain")
	_, ok := cache.entries["El Mesón"]
	require.True(t, ok)

	// Replace the network result with a Puerto Rico candidate; the
	// hinted call must reach it instead of the cached Spain entry.
	geo.results["El Mesón"] = []nominatim.Candidate{
		{DisplayName: "El Mesón, Ponce, Puerto Rico", Latitude: 18.01, Longitude: -66.61, Importance: 0.6},
	}

	rp, err := r.Resolve(context.Background(), "El Mesón", "", "Puerto Rico")
	require.NoError(t, err)
	assert.Contains(t, rp.DisplayName, "Puerto Rico",
		"accepted display text must contain the country hint")
}

func TestResolve_CacheHitKeepsOriginalConfidence(t *testing.T) {
	// A medium-band acceptance must come back medium on re-runs, not
	// silently promoted to high by the cache.
	geo := &fakeGeocoder{results: map[string][]nominatim.Candidate{
		"Mercado Central, Valencia, Spain": {
			{DisplayName: "Mercat Central, Valencia, Spain", Latitude: 39.47, Longitude: -0.38, Importance: 0.5},
		},
	}}
	cache := newFakeCache()
	r := New(geo, cache, nil, testResolverConfig())

	first, err := r.Resolve(context.Background(), "Mercado Central", "Valencia", "Spain")
	require.NoError(t, err)
	require.Equal(t, model.ConfidenceMedium, first.Confidence)

	second, err := r.Resolve(context.Background(), "Mercado Central", "Valencia", "Spain")
	require.NoError(t, err)
	assert.Equal(t, model.ConfidenceMedium, second.Confidence)
	assert.Len(t, geo.calls, 1, "second resolve must be served from cache")
}

func TestResolve_WriteThroughCache(t *testing.T) {
	cache := newFakeCache()
	geo := &fakeGeocoder{results: map[string][]nominatim.Candidate{
		"Louvre, Paris, France": {
			{DisplayName: "Louvre, Paris, France", Latitude: 48.8606, Longitude: 2.3376, Importance: 0.9},
		},
	}}
	r := New(geo, cache, nil, testResolverConfig())

	_, err := r.Resolve(context.Background(), "The Louvre Museum", "Paris", "France")
	require.NoError(t, err)
	entry, ok := cache.entries["Louvre, Paris, France"]
	require.True(t, ok, "accepted lookup must be written through to the cache")
	assert.Equal(t, "nominatim", entry.Source)
}

func TestResolve_SuggestFallbackLowConfidence(t *testing.T) {
	// No direct variant matches; the suggested variant scores into the
	// low band and is accepted with a low-confidence marker.
	geo := &fakeGeocoder{results: map[string][]nominatim.Candidate{
		"Sacre Coeur Basilica, Paris": {
			{DisplayName: "Basilique du Sacré-Cœur, Paris", Latitude: 48.8867, Longitude: 2.3431, Importance: 0.7},
		},
	}}
	sug := &fakeSuggester{variants: []string{"Sacre Coeur Basilica"}}
	r := New(geo, newFakeCache(), sug, testResolverConfig())

	rp, err := r.Resolve(context.Background(), "Sacrecour", "Paris", "")
	require.NoError(t, err)
	assert.Equal(t, model.ConfidenceLow, rp.Confidence)
	assert.Equal(t, 1, sug.calls)
}

func TestResolve_MediumConfidenceBand(t *testing.T) {
	// Name mismatch but city hint and importance put the score in
	// [40, 60): accepted with medium confidence.
	geo := &fakeGeocoder{results: map[string][]nominatim.Candidate{
		"Mercado Central, Valencia, Spain": {
			{DisplayName: "Mercat Central, Valencia, Spain", Latitude: 39.47, Longitude: -0.38, Importance: 0.5},
		},
	}}
	r := New(geo, newFakeCache(), nil, testResolverConfig())

	rp, err := r.Resolve(context.Background(), "Mercado Central", "Valencia", "Spain")
	require.NoError(t, err)
	assert.Equal(t, model.ConfidenceMedium, rp.Confidence)
	assert.GreaterOrEqual(t, rp.Score, 40.0)
	assert.Less(t, rp.Score, 60.0)
}

func TestResolve_ProviderRejectedIsFatal(t *testing.T) {
	geo := &fakeGeocoder{err: &resilience.ProviderRejectedError{Provider: "nominatim", StatusCode: 403, Message: "blocked"}}
	r := New(geo, newFakeCache(), nil, testResolverConfig())

	_, err := r.Resolve(context.Background(), "The Louvre Museum", "Paris", "France")
	require.Error(t, err)
	assert.True(t, resilience.IsProviderRejected(err))
	assert.Len(t, geo.calls, 1, "provider rejection must not be retried")
}

func TestResolve_EmptyName(t *testing.T) {
	r := New(&fakeGeocoder{}, newFakeCache(), nil, testResolverConfig())
	_, err := r.Resolve(context.Background(), "  ", "", "")
	require.Error(t, err)
}

func TestResolveLocation_LandmarkExtraction(t *testing.T) {
	geo := &fakeGeocoder{results: map[string][]nominatim.Candidate{
		"Sagrada Familia, Barcelona": {
			{DisplayName: "Sagrada Família, Barcelona", Latitude: 41.4036, Longitude: 2.1744, Importance: 0.9},
		},
	}}
	r := New(geo, newFakeCache(), nil, testResolverConfig())

	rp, err := r.ResolveLocation(context.Background(), "apartment near Sagrada Familia", "Barcelona")
	require.NoError(t, err)
	assert.InDelta(t, 41.4036, rp.Latitude, 1e-9)
}

func TestResolveLocation_CityFallback(t *testing.T) {
	geo := &fakeGeocoder{results: map[string][]nominatim.Candidate{
		"Barcelona": {
			{DisplayName: "Barcelona, Catalunya, España", Latitude: 41.3874, Longitude: 2.1686, Importance: 0.95},
		},
	}}
	r := New(geo, newFakeCache(), nil, testResolverConfig())

	rp, err := r.ResolveLocation(context.Background(), "somewhere unpronounceable", "Barcelona")
	require.NoError(t, err)
	assert.InDelta(t, 41.3874, rp.Latitude, 1e-9)
}
