// Package pipeline drives a trip through the resolution stages:
// geocoding, routing, enriching, rendering. Stages run strictly in
// order; the enriched snapshot is persisted after every stage so a
// process restart resumes from the last completed stage instead of
// repeating finished work.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lefei1980/travel-book-generator/internal/config"
	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/store"
)

// Renderer produces the final travel-book artifact from a fully
// enriched trip.
type Renderer interface {
	Render(ctx context.Context, trip *model.Trip) (string, error)
}

// PlaceResolver is the slice of the resolver the pipeline needs.
type PlaceResolver interface {
	Resolve(ctx context.Context, name, cityHint, countryHint string) (*model.ResolvedPlace, error)
	ResolveLocation(ctx context.Context, text, cityContext string) (*model.ResolvedPlace, error)
}

// ContentMatcher attaches description and image to a resolved place.
type ContentMatcher interface {
	Match(ctx context.Context, name string, lat, lon float64) (*model.PlaceContent, error)
}

// RouteBuilder computes one day's driving route.
type RouteBuilder interface {
	Build(ctx context.Context, day model.Day, geo *model.GeocodingResult) (*model.Route, error)
}

// Orchestrator owns the trip state machine.
type Orchestrator struct {
	store    store.Store
	resolver PlaceResolver
	matcher  ContentMatcher
	builder  RouteBuilder
	renderer Renderer
	cfg      config.Config
}

// New creates an Orchestrator with all stage collaborators.
func New(st store.Store, res PlaceResolver, matcher ContentMatcher, builder RouteBuilder, renderer Renderer, cfg config.Config) *Orchestrator {
	return &Orchestrator{
		store:    st,
		resolver: res,
		matcher:  matcher,
		builder:  builder,
		renderer: renderer,
		cfg:      cfg,
	}
}

// stageFunc runs one stage against a cloned snapshot and returns the
// snapshot to persist. A returned error is stage-fatal for the trip.
type stageFunc func(ctx context.Context, trip *model.Trip, enriched *model.EnrichedData) (*model.EnrichedData, error)

// Run executes the pipeline for one trip, resuming from the last
// completed stage if a prior run was interrupted. Terminal trips are
// rejected; a failed trip requires a fresh submission.
func (o *Orchestrator) Run(ctx context.Context, tripID string) error {
	trip, err := o.store.GetTrip(ctx, tripID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load trip")
	}
	if trip.Status.Terminal() {
		return eris.Errorf("pipeline: trip %s is already %s", tripID, trip.Status)
	}

	log := zap.L().With(zap.String("trip_id", trip.ID), zap.String("title", trip.Title))
	log.Info("pipeline: starting")

	enriched := trip.Enriched.Clone()

	stages := []struct {
		status model.TripStatus
		run    stageFunc
	}{
		{model.TripStatusGeocoding, o.geocodingStage},
		{model.TripStatusRouting, o.routingStage},
		{model.TripStatusEnriching, o.enrichingStage},
		{model.TripStatusRendering, o.renderingStage},
	}

	for _, stage := range stages {
		if stageDone(enriched, stage.status) {
			log.Info("pipeline: skipping completed stage", zap.String("stage", string(stage.status)))
			continue
		}

		o.setStatus(ctx, trip.ID, stage.status, log)
		start := time.Now()

		stageCtx := ctx
		var cancel context.CancelFunc
		if o.cfg.Pipeline.StageTimeoutSecs > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.Pipeline.StageTimeoutSecs)*time.Second)
		}
		next, stageErr := stage.run(stageCtx, trip, enriched.Clone())
		if cancel != nil {
			cancel()
		}

		if stageErr != nil {
			log.Error("pipeline: stage failed",
				zap.String("stage", string(stage.status)),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(stageErr),
			)
			if err := o.store.UpdateTripError(ctx, trip.ID, stageErr.Error()); err != nil {
				log.Warn("pipeline: failed to record trip error", zap.Error(err))
			}
			return eris.Wrapf(stageErr, "pipeline: stage %s", stage.status)
		}

		// Replace the snapshot wholesale and persist before advancing,
		// so the storage layer always observes the change.
		enriched = next
		if err := o.store.SaveEnriched(ctx, trip.ID, enriched); err != nil {
			if uerr := o.store.UpdateTripError(ctx, trip.ID, err.Error()); uerr != nil {
				log.Warn("pipeline: failed to record trip error", zap.Error(uerr))
			}
			return eris.Wrapf(err, "pipeline: persist after %s", stage.status)
		}
		trip.Enriched = enriched

		log.Info("pipeline: stage complete",
			zap.String("stage", string(stage.status)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	o.setStatus(ctx, trip.ID, model.TripStatusComplete, log)
	log.Info("pipeline: complete")
	return nil
}

// stageDone reports whether a stage's output already exists in the
// snapshot, which is how an interrupted run resumes without repeating
// work.
func stageDone(e *model.EnrichedData, stage model.TripStatus) bool {
	if e == nil {
		return false
	}
	switch stage {
	case model.TripStatusGeocoding:
		return e.Geocoding != nil
	case model.TripStatusRouting:
		return e.Routing != nil
	case model.TripStatusEnriching:
		return e.Enrichment != nil
	case model.TripStatusRendering:
		return e.ArtifactPath != ""
	}
	return false
}

func (o *Orchestrator) setStatus(ctx context.Context, tripID string, status model.TripStatus, log *zap.Logger) {
	if err := o.store.UpdateTripStatus(ctx, tripID, status); err != nil {
		log.Warn("pipeline: failed to update status", zap.String("status", string(status)), zap.Error(err))
	}
}
