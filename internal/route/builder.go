// Package route produces one ordered driving path per itinerary day
// from resolved coordinates.
package route

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/resilience"
	"github.com/lefei1980/travel-book-generator/pkg/osrm"
)

// ErrRouteUnavailable marks a day whose route could not be computed.
// It is a per-day outcome, never fatal to the pipeline.
var ErrRouteUnavailable = eris.New("route unavailable")

// Builder assembles waypoints for a day and delegates geometry to the
// routing provider.
type Builder struct {
	router osrm.Client
	retry  resilience.RetryConfig
}

// New creates a Builder.
func New(router osrm.Client) *Builder {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("osrm", "route")
	return &Builder{router: router, retry: retry}
}

// Build computes the driving route for one day. Waypoints are the
// day's resolved start endpoint, each resolved place in itinerary
// order, and the resolved end endpoint. Restaurants are excluded from
// route computation: they geocode least reliably, and a bad restaurant
// coordinate once detoured a route across a border. They stay visible
// on the rendered output regardless.
func (b *Builder) Build(ctx context.Context, day model.Day, geo *model.GeocodingResult) (*model.Route, error) {
	if geo == nil {
		return nil, eris.Wrap(ErrRouteUnavailable, "no geocoding data")
	}

	var coords [][2]float64
	var names []string

	endpoints := geo.StartEndCoord[dayKey(day.DayNumber)]
	if endpoints.Start != nil {
		coords = append(coords, [2]float64{endpoints.Start.Longitude, endpoints.Start.Latitude})
		names = append(names, day.StartLocation)
	}
	for _, place := range day.Places {
		if place.Category == model.CategoryRestaurant {
			continue
		}
		rp, ok := geo.Places[place.Name]
		if !ok {
			continue
		}
		coords = append(coords, [2]float64{rp.Longitude, rp.Latitude})
		names = append(names, place.Name)
	}
	if endpoints.End != nil {
		coords = append(coords, [2]float64{endpoints.End.Longitude, endpoints.End.Latitude})
		names = append(names, day.EndLocation)
	}

	if len(coords) < 2 {
		return nil, eris.Wrapf(ErrRouteUnavailable, "day %d has %d routable waypoints", day.DayNumber, len(coords))
	}

	resp, err := resilience.DoVal(ctx, b.retry, func(ctx context.Context) (*osrm.RouteResponse, error) {
		return b.router.Route(ctx, coords)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrapf(err, "route day %d", day.DayNumber)
		}
		// Rejections and exhausted retries alike cost only this day's
		// route; the trip continues without it.
		zap.L().Warn("routing failed for day", zap.Int("day", day.DayNumber), zap.Error(err))
		return nil, eris.Wrapf(ErrRouteUnavailable, "day %d: %s", day.DayNumber, err.Error())
	}

	out := &model.Route{
		TotalDistanceM: resp.TotalDistanceM,
		TotalDurationS: resp.TotalDurationS,
		Geometry:       resp.Geometry,
		Waypoints:      names,
	}
	for i, leg := range resp.Legs {
		out.Segments = append(out.Segments, model.RouteSegment{
			FromIndex: i,
			ToIndex:   i + 1,
			DistanceM: leg.DistanceM,
			DurationS: leg.DurationS,
		})
	}
	return out, nil
}

func dayKey(n int) string {
	return strconv.Itoa(n)
}
