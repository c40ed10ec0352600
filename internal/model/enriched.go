package model

import "encoding/json"

// Confidence grades an accepted geocoding result.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ResolvedPlace is the geocoding stage output for a single place or
// day endpoint.
type ResolvedPlace struct {
	Name        string     `json:"name"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	DisplayName string     `json:"display_name,omitempty"`
	Query       string     `json:"query,omitempty"` // the variant that matched
	Confidence  Confidence `json:"confidence"`
	Score       float64    `json:"score"`
}

// UnresolvedPlace records a place that could not be geocoded, with the
// reason. A trip never reaches complete with a silently missing place.
type UnresolvedPlace struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// DayEndpoints holds the resolved start/end coordinates for a day.
type DayEndpoints struct {
	Start *ResolvedPlace `json:"start,omitempty"`
	End   *ResolvedPlace `json:"end,omitempty"`
}

// GeocodingResult is the full output of the geocoding stage.
type GeocodingResult struct {
	Places        map[string]ResolvedPlace `json:"places"`
	Unresolved    []UnresolvedPlace        `json:"unresolved,omitempty"`
	StartEndCoord map[string]DayEndpoints  `json:"start_end_coords"` // keyed by day number
}

// RouteSegment is one leg of a day's driving route.
type RouteSegment struct {
	FromIndex int     `json:"from_index"`
	ToIndex   int     `json:"to_index"`
	DistanceM float64 `json:"distance_m"`
	DurationS float64 `json:"duration_s"`
}

// Route is a single ordered driving path for one day. Geometry is the
// route path encoded as GeoJSON. Waypoints lists only the place names
// whose coordinates were fed to the router.
type Route struct {
	TotalDistanceM float64         `json:"total_distance_m"`
	TotalDurationS float64         `json:"total_duration_s"`
	Segments       []RouteSegment  `json:"segments"`
	Geometry       json.RawMessage `json:"geometry,omitempty"`
	Waypoints      []string        `json:"waypoints"`
}

// RoutingResult maps day number to route; a nil entry means the route
// was unavailable for that day.
type RoutingResult struct {
	Routes map[string]*Route `json:"routes"`
}

// PlaceContent is the enrichment stage output for a single place.
// CanonicalTitle is the article source-of-truth name; the image lookup
// always uses it, never the user-typed name.
type PlaceContent struct {
	CanonicalTitle   string  `json:"canonical_title,omitempty"`
	Description      string  `json:"description,omitempty"`
	ArticleURL       string  `json:"article_url,omitempty"`
	ImageURL         string  `json:"image_url,omitempty"`
	ImageAttribution string  `json:"image_attribution,omitempty"`
	DistanceM        float64 `json:"distance_m,omitempty"` // article-to-target distance
}

// EnrichmentResult maps place name to content; places with no match are
// present with empty content.
type EnrichmentResult struct {
	Places map[string]PlaceContent `json:"places"`
}

// EnrichedData accumulates each stage's output, keyed by stage. It is
// treated as an immutable snapshot: stages build a modified copy and the
// orchestrator replaces and persists it wholesale, so the storage layer
// always observes the change.
type EnrichedData struct {
	Geocoding    *GeocodingResult  `json:"geocoding,omitempty"`
	Routing      *RoutingResult    `json:"routing,omitempty"`
	Enrichment   *EnrichmentResult `json:"enrichment,omitempty"`
	ArtifactPath string            `json:"artifact_path,omitempty"`
}

// Clone returns a deep copy of the enriched data so a stage can build
// its output without mutating the persisted snapshot in place.
func (e *EnrichedData) Clone() *EnrichedData {
	if e == nil {
		return &EnrichedData{}
	}
	out := &EnrichedData{ArtifactPath: e.ArtifactPath}
	if e.Geocoding != nil {
		g := &GeocodingResult{
			Places:        make(map[string]ResolvedPlace, len(e.Geocoding.Places)),
			StartEndCoord: make(map[string]DayEndpoints, len(e.Geocoding.StartEndCoord)),
		}
		for k, v := range e.Geocoding.Places {
			g.Places[k] = v
		}
		for k, v := range e.Geocoding.StartEndCoord {
			g.StartEndCoord[k] = v
		}
		g.Unresolved = append(g.Unresolved, e.Geocoding.Unresolved...)
		out.Geocoding = g
	}
	if e.Routing != nil {
		r := &RoutingResult{Routes: make(map[string]*Route, len(e.Routing.Routes))}
		for k, v := range e.Routing.Routes {
			if v == nil {
				r.Routes[k] = nil
				continue
			}
			rc := *v
			rc.Segments = append([]RouteSegment(nil), v.Segments...)
			rc.Waypoints = append([]string(nil), v.Waypoints...)
			rc.Geometry = append(json.RawMessage(nil), v.Geometry...)
			r.Routes[k] = &rc
		}
		out.Routing = r
	}
	if e.Enrichment != nil {
		en := &EnrichmentResult{Places: make(map[string]PlaceContent, len(e.Enrichment.Places))}
		for k, v := range e.Enrichment.Places {
			en.Places[k] = v
		}
		out.Enrichment = en
	}
	return out
}
