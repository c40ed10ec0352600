package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lefei1980/travel-book-generator/internal/model"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadItineraryFile_JSON(t *testing.T) {
	path := writeTempFile(t, "trip.json", `{
		"title": "Paris Weekend",
		"days": [{"day_number": 1, "places": [{"name": "Louvre", "category": "attraction", "city": "Paris"}]}]
	}`)

	trip, err := readItineraryFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Paris Weekend", trip.Title)
	require.Len(t, trip.Days, 1)
	assert.Equal(t, "Paris", trip.Days[0].Places[0].CityHint)
}

func TestReadItineraryFile_YAML(t *testing.T) {
	path := writeTempFile(t, "trip.yaml", `
title: Paris Weekend
days:
  - day_number: 1
    start_location: Hotel Le Six
    places:
      - name: Louvre
        category: attraction
        city: Paris
        country: France
`)

	trip, err := readItineraryFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Paris Weekend", trip.Title)
	require.Len(t, trip.Days, 1)
	assert.Equal(t, "Hotel Le Six", trip.Days[0].StartLocation)
	assert.Equal(t, model.CategoryAttraction, trip.Days[0].Places[0].Category)
	assert.Equal(t, "France", trip.Days[0].Places[0].CountryHint)
}

func TestReadItineraryFile_Malformed(t *testing.T) {
	path := writeTempFile(t, "trip.json", `{"title":`)

	_, err := readItineraryFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse itinerary file")
}
