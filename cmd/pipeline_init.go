package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/lefei1980/travel-book-generator/internal/content"
	"github.com/lefei1980/travel-book-generator/internal/pipeline"
	"github.com/lefei1980/travel-book-generator/internal/render"
	"github.com/lefei1980/travel-book-generator/internal/resolver"
	"github.com/lefei1980/travel-book-generator/internal/route"
	"github.com/lefei1980/travel-book-generator/internal/store"
	"github.com/lefei1980/travel-book-generator/pkg/nominatim"
	"github.com/lefei1980/travel-book-generator/pkg/osrm"
	"github.com/lefei1980/travel-book-generator/pkg/suggest"
	"github.com/lefei1980/travel-book-generator/pkg/wikipedia"
)

// pipelineEnv holds the store, provider clients, and the orchestrator
// shared by the run/serve/import commands.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "travelbook.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, provider clients, and the
// orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	// One limiter per process; every geocoding call in the pipeline
	// goes through it.
	limiter := rate.NewLimiter(rate.Every(cfg.Nominatim.MinInterval()), 1)
	geocoder := nominatim.NewClient(cfg.Nominatim.ContactEmail,
		nominatim.WithBaseURL(cfg.Nominatim.BaseURL),
		nominatim.WithRateLimiter(limiter),
		nominatim.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Nominatim.TimeoutSecs) * time.Second}),
	)

	var suggester suggest.Client
	if cfg.Suggest.Key != "" {
		suggester = suggest.NewClient(cfg.Suggest.Key, cfg.Suggest.Model)
	}

	wiki := wikipedia.NewClient(cfg.Wikipedia.ContactEmail,
		wikipedia.WithBaseURL(cfg.Wikipedia.BaseURL),
		wikipedia.WithThumbSize(cfg.Wikipedia.ThumbSize),
		wikipedia.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Wikipedia.TimeoutSecs) * time.Second}),
	)

	router := osrm.NewClient(
		osrm.WithBaseURL(cfg.OSRM.BaseURL),
		osrm.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.OSRM.TimeoutSecs) * time.Second}),
	)

	renderer, err := render.New(cfg.Render)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init renderer")
	}

	orch := pipeline.New(st,
		resolver.New(geocoder, st, suggester, cfg.Resolver),
		content.New(wiki, cfg.Content),
		route.New(router),
		renderer,
		*cfg,
	)

	return &pipelineEnv{Store: st, Orchestrator: orch}, nil
}
