package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/lefei1980/travel-book-generator/internal/model"
)

// renderingStage hands the fully enriched trip to the renderer. Unlike
// the other stages this one is all-or-nothing: a renderer failure is
// fatal for the trip.
func (o *Orchestrator) renderingStage(ctx context.Context, trip *model.Trip, enriched *model.EnrichedData) (*model.EnrichedData, error) {
	snapshot := *trip
	snapshot.Enriched = enriched

	path, err := o.renderer.Render(ctx, &snapshot)
	if err != nil {
		return nil, eris.Wrap(err, "render travel book")
	}

	enriched.ArtifactPath = path
	return enriched, nil
}
