package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/resilience"
)

// geocodingStage resolves every place and day endpoint. Items are
// processed serially: the provider's rate gate makes fan-out pointless
// here. An unresolvable item is recorded with its reason and the stage
// continues; only an upstream rejection aborts the trip.
func (o *Orchestrator) geocodingStage(ctx context.Context, trip *model.Trip, enriched *model.EnrichedData) (*model.EnrichedData, error) {
	result := &model.GeocodingResult{
		Places:        make(map[string]model.ResolvedPlace),
		StartEndCoord: make(map[string]model.DayEndpoints),
	}

	days := trip.Days
	for di := range days {
		day := &days[di]
		for pi := range day.Places {
			place := &day.Places[pi]
			rp, err := o.resolver.Resolve(ctx, place.Name, place.CityHint, place.CountryHint)
			if err != nil {
				if resilience.IsProviderRejected(err) {
					return nil, err
				}
				result.Unresolved = append(result.Unresolved, model.UnresolvedPlace{
					Name:   place.Name,
					Reason: err.Error(),
				})
				zap.L().Warn("place unresolved", zap.String("place", place.Name), zap.Error(err))
				continue
			}
			rp.Name = place.Name
			result.Places[place.Name] = *rp
			place.Latitude = &rp.Latitude
			place.Longitude = &rp.Longitude
		}

		endpoints, err := o.resolveEndpoints(ctx, day, result)
		if err != nil {
			return nil, err
		}
		result.StartEndCoord[fmt.Sprintf("%d", day.DayNumber)] = endpoints
	}

	// Persist resolved coordinates back onto the places themselves so
	// the trip record is useful without digging into the snapshot.
	if err := o.store.UpdateTripDays(ctx, trip.ID, days); err != nil {
		zap.L().Warn("failed to persist place coordinates", zap.String("trip_id", trip.ID), zap.Error(err))
	}
	trip.Days = days

	enriched.Geocoding = result
	return enriched, nil
}

func (o *Orchestrator) resolveEndpoints(ctx context.Context, day *model.Day, result *model.GeocodingResult) (model.DayEndpoints, error) {
	var endpoints model.DayEndpoints
	cityContext := firstCityHint(day)

	resolveOne := func(text, which string) (*model.ResolvedPlace, error) {
		if text == "" {
			return nil, nil
		}
		rp, err := o.resolver.ResolveLocation(ctx, text, cityContext)
		if err != nil {
			if resilience.IsProviderRejected(err) {
				return nil, err
			}
			result.Unresolved = append(result.Unresolved, model.UnresolvedPlace{
				Name:   fmt.Sprintf("day %d %s: %s", day.DayNumber, which, text),
				Reason: err.Error(),
			})
			return nil, nil
		}
		rp.Name = text
		return rp, nil
	}

	start, err := resolveOne(day.StartLocation, "start")
	if err != nil {
		return endpoints, err
	}
	endpoints.Start = start

	if day.EndLocation == day.StartLocation {
		endpoints.End = start
		return endpoints, nil
	}
	end, err := resolveOne(day.EndLocation, "end")
	if err != nil {
		return endpoints, err
	}
	endpoints.End = end
	return endpoints, nil
}

// firstCityHint returns the day's city-level context for vague
// endpoint text, taken from the first place that carries one.
func firstCityHint(day *model.Day) string {
	for _, p := range day.Places {
		if p.CityHint != "" {
			return p.CityHint
		}
	}
	return ""
}
