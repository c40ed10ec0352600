package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/route"
)

// routingStage builds one driving route per day. A day whose route
// cannot be computed is recorded with a nil route and the trip
// continues; a missing route must never abort the whole trip.
func (o *Orchestrator) routingStage(ctx context.Context, trip *model.Trip, enriched *model.EnrichedData) (*model.EnrichedData, error) {
	if enriched.Geocoding == nil {
		return nil, eris.New("routing: no geocoding output")
	}

	result := &model.RoutingResult{Routes: make(map[string]*model.Route, len(trip.Days))}
	for _, day := range trip.Days {
		key := fmt.Sprintf("%d", day.DayNumber)

		r, err := o.builder.Build(ctx, day, enriched.Geocoding)
		if err != nil {
			if !eris.Is(err, route.ErrRouteUnavailable) {
				return nil, err
			}
			zap.L().Warn("route unavailable", zap.Int("day", day.DayNumber), zap.Error(err))
			result.Routes[key] = nil
			continue
		}
		result.Routes[key] = r
	}

	enriched.Routing = result
	return enriched, nil
}
