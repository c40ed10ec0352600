package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lefei1980/travel-book-generator/internal/config"
	"github.com/lefei1980/travel-book-generator/pkg/wikipedia"
)

type fakeWiki struct {
	geoMatches []wikipedia.GeoMatch
	titles     []string
	pages      map[string]*wikipedia.Page
	images     map[string]*wikipedia.Image
	imageCalls []string
}

func (f *fakeWiki) GeoSearch(ctx context.Context, lat, lon float64, radiusM, limit int) ([]wikipedia.GeoMatch, error) {
	return f.geoMatches, nil
}

func (f *fakeWiki) SearchTitles(ctx context.Context, query string, limit int) ([]string, error) {
	return f.titles, nil
}

func (f *fakeWiki) GetPage(ctx context.Context, title string) (*wikipedia.Page, error) {
	if p, ok := f.pages[title]; ok {
		return p, nil
	}
	return &wikipedia.Page{Title: title, Missing: true}, nil
}

func (f *fakeWiki) PageImage(ctx context.Context, title string) (*wikipedia.Image, error) {
	f.imageCalls = append(f.imageCalls, title)
	if img, ok := f.images[title]; ok {
		return img, nil
	}
	return nil, nil
}

func coords(lat, lon float64) (*float64, *float64) {
	return &lat, &lon
}

func testContentConfig() config.ContentConfig {
	return config.ContentConfig{
		AgreementRadiusM: 100,
		AcceptCeilingM:   2000,
		GeoSearchRadiusM: 10000,
		MaxTextResults:   5,
		MaxDescWords:     150,
	}
}

func TestMatch_CanonicalTitlePropagation(t *testing.T) {
	// "El Yunque" resolves to the article "El Yunque National Forest";
	// the image lookup must use that canonical title, never the raw name.
	lat, lon := coords(18.3, -65.8)
	wiki := &fakeWiki{
		geoMatches: []wikipedia.GeoMatch{{Title: "El Yunque National Forest", Latitude: 18.3, Longitude: -65.8}},
		titles:     []string{"El Yunque National Forest"},
		pages: map[string]*wikipedia.Page{
			"El Yunque National Forest": {
				Title:     "El Yunque National Forest",
				Extract:   "El Yunque National Forest is a tropical rainforest in Puerto Rico.",
				Latitude:  lat,
				Longitude: lon,
			},
		},
		images: map[string]*wikipedia.Image{
			"El Yunque National Forest": {URL: "https://upload.wikimedia.org/yunque.jpg", Attribution: "CC BY-SA 3.0, Wikimedia Commons"},
		},
	}
	m := New(wiki, testContentConfig())

	got, err := m.Match(context.Background(), "El Yunque", 18.3, -65.8)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "El Yunque National Forest", got.CanonicalTitle)
	assert.Equal(t, "https://upload.wikimedia.org/yunque.jpg", got.ImageURL)
	require.Len(t, wiki.imageCalls, 1)
	assert.Equal(t, "El Yunque National Forest", wiki.imageCalls[0])
}

func TestMatch_NoCandidates(t *testing.T) {
	m := New(&fakeWiki{}, testContentConfig())

	got, err := m.Match(context.Background(), "Nowhere Special", 0, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMatch_CoordinatelessArticlesRejected(t *testing.T) {
	// A biography shares the place's name; it has no coordinates and
	// must never win, so the geo result is used as the single source.
	wiki := &fakeWiki{
		geoMatches: []wikipedia.GeoMatch{{Title: "Plaza Colón", Latitude: 18.465, Longitude: -66.105}},
		titles:     []string{"Cristóbal Colón"},
		pages: map[string]*wikipedia.Page{
			"Cristóbal Colón": {Title: "Cristóbal Colón", Extract: "Navigator and colonizer."},
			"Plaza Colón":     {Title: "Plaza Colón", Extract: "A public square in Old San Juan.", Latitude: ptr(18.465), Longitude: ptr(-66.105)},
		},
	}
	m := New(wiki, testContentConfig())

	got, err := m.Match(context.Background(), "Colón", 18.465, -66.105)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Plaza Colón", got.CanonicalTitle)
	assert.Equal(t, "A public square in Old San Juan.", got.Description)
}

func TestMatch_DisambiguationSkipped(t *testing.T) {
	wiki := &fakeWiki{
		titles: []string{"Mercury", "Mercury Theatre"},
		pages: map[string]*wikipedia.Page{
			"Mercury":         {Title: "Mercury", Disambiguation: true},
			"Mercury Theatre": {Title: "Mercury Theatre", Extract: "A theatre.", Latitude: ptr(51.88), Longitude: ptr(0.9)},
		},
	}
	m := New(wiki, testContentConfig())

	got, err := m.Match(context.Background(), "Mercury", 51.88, 0.9)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Mercury Theatre", got.CanonicalTitle)
}

func TestMatch_CloserCandidateWinsWithinCeiling(t *testing.T) {
	// Text match is ~5 km off, geo match ~90 m off and they disagree:
	// the geo candidate is closer and within the ceiling.
	wiki := &fakeWiki{
		geoMatches: []wikipedia.GeoMatch{{Title: "Castillo San Felipe del Morro", Latitude: 18.4708, Longitude: -66.1239}},
		titles:     []string{"El Morro, Havana"},
		pages: map[string]*wikipedia.Page{
			"El Morro, Havana":              {Title: "El Morro, Havana", Extract: "Fortress in Cuba.", Latitude: ptr(18.515), Longitude: ptr(-66.12)},
			"Castillo San Felipe del Morro": {Title: "Castillo San Felipe del Morro", Extract: "Citadel in San Juan.", Latitude: ptr(18.4708), Longitude: ptr(-66.1239)},
		},
	}
	m := New(wiki, testContentConfig())

	got, err := m.Match(context.Background(), "El Morro", 18.4702, -66.1240)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Castillo San Felipe del Morro", got.CanonicalTitle)
}

func TestMatch_AgreementPrefersTextCandidate(t *testing.T) {
	// Text and geo candidates sit within the agreement radius of each
	// other: the text candidate wins even though the geo one is closer
	// to the target.
	wiki := &fakeWiki{
		geoMatches: []wikipedia.GeoMatch{{Title: "Louvre Pyramid", Latitude: 48.8610, Longitude: 2.3358}},
		titles:     []string{"Louvre"},
		pages: map[string]*wikipedia.Page{
			"Louvre": {Title: "Louvre", Extract: "The Louvre is the world's largest art museum.", Latitude: ptr(48.8606), Longitude: ptr(2.3364)},
		},
	}
	m := New(wiki, testContentConfig())

	got, err := m.Match(context.Background(), "Louvre", 48.8611, 2.3358)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Louvre", got.CanonicalTitle)
}

func TestMatch_AdaptiveAcceptBeyondCeiling(t *testing.T) {
	// A city-level article centroid can sit far outside the ceiling;
	// with nothing closer it is still accepted.
	wiki := &fakeWiki{
		titles: []string{"Reykjavík"},
		pages: map[string]*wikipedia.Page{
			"Reykjavík": {Title: "Reykjavík", Extract: "Capital of Iceland.", Latitude: ptr(64.1466), Longitude: ptr(-21.9426)},
		},
	}
	m := New(wiki, testContentConfig())

	// Target ~8 km from the article coordinate.
	got, err := m.Match(context.Background(), "Reykjavík", 64.08, -21.90)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Reykjavík", got.CanonicalTitle)
	assert.Greater(t, got.DistanceM, 2000.0)
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "a b c", truncateWords("a b c", 5))
	assert.Equal(t, "a b c...", truncateWords("a b c d e", 3))
	assert.Equal(t, "unchanged", truncateWords("unchanged", 0))
}

func TestHaversine(t *testing.T) {
	// Paris to London is roughly 344 km.
	d := haversineM(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 344000, d, 5000)

	assert.InDelta(t, 0, haversineM(18.3, -65.8, 18.3, -65.8), 1e-6)
}

func ptr(f float64) *float64 { return &f }
