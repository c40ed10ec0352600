package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/resilience"
)

// enrichingStage attaches description and image to every resolved
// place. Places are independent, so lookups fan out with bounded
// concurrency. A place with no article match gets empty content and
// the trip continues; an upstream rejection aborts the stage.
func (o *Orchestrator) enrichingStage(ctx context.Context, trip *model.Trip, enriched *model.EnrichedData) (*model.EnrichedData, error) {
	if enriched.Geocoding == nil {
		return nil, eris.New("enriching: no geocoding output")
	}

	result := &model.EnrichmentResult{Places: make(map[string]model.PlaceContent, len(enriched.Geocoding.Places))}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	limit := o.cfg.Content.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for name, rp := range enriched.Geocoding.Places {
		name, rp := name, rp
		g.Go(func() error {
			pc, err := o.matcher.Match(gCtx, name, rp.Latitude, rp.Longitude)
			if err != nil {
				if resilience.IsProviderRejected(err) {
					return err
				}
				zap.L().Warn("content lookup failed", zap.String("place", name), zap.Error(err))
				pc = nil
			}
			if pc == nil {
				// No match is a gap in the book, not an error.
				pc = &model.PlaceContent{}
			}
			mu.Lock()
			result.Places[name] = *pc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	enriched.Enrichment = result
	return enriched, nil
}
