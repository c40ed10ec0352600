// Package importer reads itineraries from XLSX spreadsheets, one row
// per place. Rows that already carry coordinates become geocode cache
// seeds, so re-imported trips skip the network entirely for known
// places.
package importer

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/resolver"
)

// Options configures the spreadsheet reader.
type Options struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// Result is a parsed itinerary plus any pre-known coordinates.
type Result struct {
	Trip model.Trip
	Seed []model.GeocodeCacheEntry
}

// expected column headers, matched case-insensitively.
const (
	colDay       = "day"
	colName      = "name"
	colCategory  = "category"
	colCity      = "city"
	colCountry   = "country"
	colStart     = "start"
	colEnd       = "end"
	colLatitude  = "latitude"
	colLongitude = "longitude"
)

// ReadItinerary parses an itinerary spreadsheet. The first row must be
// a header naming at least the day and name columns.
func ReadItinerary(path, title string, opts Options) (*Result, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open file")
	}
	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) < 2 {
		return nil, eris.New("importer: sheet has no data rows")
	}

	cols, err := mapHeader(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}

	days := map[int]*model.Day{}
	var seed []model.GeocodeCacheEntry

	for i, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		get := func(col string) string {
			idx, ok := cols[col]
			if !ok || idx >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[idx])
		}

		name := get(colName)
		if name == "" {
			continue // blank separator row
		}
		dayNum, err := strconv.Atoi(get(colDay))
		if err != nil || dayNum <= 0 {
			return nil, eris.Errorf("importer: row %d: bad day number %q", i+2, get(colDay))
		}

		category := model.PlaceCategory(strings.ToLower(get(colCategory)))
		if category == "" {
			category = model.CategoryAttraction
		}
		if !model.ValidCategory(category) {
			return nil, eris.Errorf("importer: row %d: unknown category %q", i+2, get(colCategory))
		}

		day, ok := days[dayNum]
		if !ok {
			day = &model.Day{DayNumber: dayNum}
			days[dayNum] = day
		}
		if s := get(colStart); s != "" && day.StartLocation == "" {
			day.StartLocation = s
		}
		if e := get(colEnd); e != "" && day.EndLocation == "" {
			day.EndLocation = e
		}

		place := model.Place{
			Name:        name,
			Category:    category,
			OrderIndex:  len(day.Places),
			CityHint:    get(colCity),
			CountryHint: get(colCountry),
		}
		day.Places = append(day.Places, place)

		if entry, ok := seedEntry(place, get(colLatitude), get(colLongitude)); ok {
			seed = append(seed, entry)
		}
	}

	if len(days) == 0 {
		return nil, eris.New("importer: no places found")
	}

	nums := make([]int, 0, len(days))
	for n := range days {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	trip := model.Trip{Title: title}
	for _, n := range nums {
		trip.Days = append(trip.Days, *days[n])
	}
	return &Result{Trip: trip, Seed: seed}, nil
}

// seedEntry builds a cache seed keyed exactly like the resolver's
// first query variant, so the import short-circuits later lookups.
func seedEntry(place model.Place, latStr, lonStr string) (model.GeocodeCacheEntry, bool) {
	if latStr == "" || lonStr == "" {
		return model.GeocodeCacheEntry{}, false
	}
	lat, latErr := strconv.ParseFloat(latStr, 64)
	lon, lonErr := strconv.ParseFloat(lonStr, 64)
	if latErr != nil || lonErr != nil {
		return model.GeocodeCacheEntry{}, false
	}

	parts := []string{resolver.NormalizeName(place.Name)}
	for _, hint := range []string{place.CityHint, place.CountryHint} {
		if hint != "" {
			parts = append(parts, hint)
		}
	}
	return model.GeocodeCacheEntry{
		Query:      strings.Join(parts, ", "),
		Latitude:   lat,
		Longitude:  lon,
		Source:     "import",
		Confidence: model.ConfidenceHigh,
	}, true
}

func pickSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("importer: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("importer: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func mapHeader(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{colDay, colName} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("importer: missing required column %q", required)
		}
	}
	return cols, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
