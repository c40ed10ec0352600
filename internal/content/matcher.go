// Package content attaches an encyclopedia description and image to a
// resolved place. The hard part is that a text search for the name and
// a geographic search near the coordinates frequently return different
// articles; the matcher reconciles them by great-circle distance and
// always carries the winning article's canonical title forward into
// the image lookup.
package content

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lefei1980/travel-book-generator/internal/config"
	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/resilience"
	"github.com/lefei1980/travel-book-generator/pkg/wikipedia"
)

// Matcher finds the encyclopedia article for a resolved place. Safe
// for concurrent use.
type Matcher struct {
	wiki  wikipedia.Client
	cfg   config.ContentConfig
	retry resilience.RetryConfig
}

// New creates a Matcher.
func New(wiki wikipedia.Client, cfg config.ContentConfig) *Matcher {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("wikipedia", "lookup")
	return &Matcher{wiki: wiki, cfg: cfg, retry: retry}
}

// candidate is a coordinate-bearing article under consideration.
type candidate struct {
	title     string
	extract   string
	url       string
	latitude  float64
	longitude float64
	distanceM float64 // to the target coordinate
	fromText  bool
}

// Match looks up content for a place at the given resolved coordinate.
// Returns (nil, nil) when neither search yields a coordinate-bearing
// article; the place stays in the trip with empty content.
func (m *Matcher) Match(ctx context.Context, name string, lat, lon float64) (*model.PlaceContent, error) {
	geoCand, err := m.geoCandidate(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	textCands, err := m.textCandidates(ctx, name, lat, lon)
	if err != nil {
		return nil, err
	}

	chosen := m.choose(textCands, geoCand)
	if chosen == nil {
		zap.L().Info("no article match", zap.String("place", name))
		return nil, nil
	}

	// The geo candidate arrives without an extract; fill it in now that
	// it won.
	if chosen.extract == "" && !chosen.fromText {
		if page, err := m.getPage(ctx, chosen.title); err == nil && page != nil {
			chosen.title = page.Title
			chosen.extract = page.Extract
			chosen.url = page.URL()
		} else if resilience.IsProviderRejected(err) {
			return nil, err
		}
	}

	out := &model.PlaceContent{
		CanonicalTitle: chosen.title,
		Description:    truncateWords(chosen.extract, m.cfg.MaxDescWords),
		ArticleURL:     chosen.url,
		DistanceM:      chosen.distanceM,
	}

	// The image repository is indexed by canonical title; looking up the
	// user-typed name silently yields nothing even when the description
	// lookup succeeded.
	img, err := resilience.DoVal(ctx, m.retry, func(ctx context.Context) (*wikipedia.Image, error) {
		return m.wiki.PageImage(ctx, chosen.title)
	})
	if err != nil {
		if resilience.IsProviderRejected(err) {
			return nil, err
		}
		zap.L().Warn("image lookup failed", zap.String("title", chosen.title), zap.Error(err))
	} else if img != nil {
		out.ImageURL = img.URL
		out.ImageAttribution = img.Attribution
	}
	return out, nil
}

// geoCandidate returns the nearest coordinate-indexed article, or nil.
func (m *Matcher) geoCandidate(ctx context.Context, lat, lon float64) (*candidate, error) {
	matches, err := resilience.DoVal(ctx, m.retry, func(ctx context.Context) ([]wikipedia.GeoMatch, error) {
		return m.wiki.GeoSearch(ctx, lat, lon, m.cfg.GeoSearchRadiusM, 1)
	})
	if err != nil {
		if resilience.IsProviderRejected(err) {
			return nil, err
		}
		zap.L().Warn("geo search failed", zap.Error(err))
		return nil, nil
	}
	if len(matches) == 0 {
		return nil, nil
	}
	g := matches[0]
	return &candidate{
		title:     g.Title,
		latitude:  g.Latitude,
		longitude: g.Longitude,
		distanceM: haversineM(g.Latitude, g.Longitude, lat, lon),
	}, nil
}

// textCandidates searches the name and keeps only coordinate-bearing,
// non-disambiguation articles. Articles without coordinates are people,
// concepts or list pages and would poison both description and image.
func (m *Matcher) textCandidates(ctx context.Context, name string, lat, lon float64) ([]candidate, error) {
	titles, err := resilience.DoVal(ctx, m.retry, func(ctx context.Context) ([]string, error) {
		return m.wiki.SearchTitles(ctx, name, m.cfg.MaxTextResults)
	})
	if err != nil {
		if resilience.IsProviderRejected(err) {
			return nil, err
		}
		zap.L().Warn("text search failed", zap.String("place", name), zap.Error(err))
		return nil, nil
	}

	var out []candidate
	for _, title := range titles {
		page, err := m.getPage(ctx, title)
		if err != nil {
			if resilience.IsProviderRejected(err) {
				return nil, err
			}
			continue
		}
		if page == nil || page.Missing || page.Disambiguation {
			continue
		}
		if page.Latitude == nil || page.Longitude == nil {
			continue
		}
		out = append(out, candidate{
			title:     page.Title,
			extract:   page.Extract,
			url:       page.URL(),
			latitude:  *page.Latitude,
			longitude: *page.Longitude,
			distanceM: haversineM(*page.Latitude, *page.Longitude, lat, lon),
			fromText:  true,
		})
	}
	return out, nil
}

func (m *Matcher) getPage(ctx context.Context, title string) (*wikipedia.Page, error) {
	page, err := resilience.DoVal(ctx, m.retry, func(ctx context.Context) (*wikipedia.Page, error) {
		return m.wiki.GetPage(ctx, title)
	})
	if err != nil {
		if !resilience.IsProviderRejected(err) {
			zap.L().Warn("page fetch failed", zap.String("title", title), zap.Error(err))
		}
		return nil, err
	}
	return page, nil
}

// choose applies the selection policy:
//  1. a text candidate agreeing with the geo candidate within the
//     agreement radius wins (confirmed name+location beats location-only);
//  2. otherwise the candidate closest to the target wins, within the
//     acceptance ceiling;
//  3. beyond the ceiling the closest candidate is accepted anyway, since
//     a city-level article's centroid can sit kilometers from the
//     geocoded point;
//  4. a single-source result is used unconditionally.
func (m *Matcher) choose(textCands []candidate, geoCand *candidate) *candidate {
	bestText := closest(textCands)

	if geoCand == nil {
		return bestText
	}
	if bestText == nil {
		return geoCand
	}

	for i := range textCands {
		tc := &textCands[i]
		if haversineM(tc.latitude, tc.longitude, geoCand.latitude, geoCand.longitude) <= m.cfg.AgreementRadiusM {
			return tc
		}
	}

	winner := bestText
	if geoCand.distanceM < winner.distanceM {
		winner = geoCand
	}
	if winner.distanceM > m.cfg.AcceptCeilingM {
		zap.L().Debug("accepting article beyond distance ceiling",
			zap.String("title", winner.title),
			zap.Float64("distance_m", winner.distanceM),
		)
	}
	return winner
}

func closest(cands []candidate) *candidate {
	var best *candidate
	for i := range cands {
		if best == nil || cands[i].distanceM < best.distanceM {
			best = &cands[i]
		}
	}
	return best
}

// truncateWords caps s at n words, appending an ellipsis when cut.
func truncateWords(s string, n int) string {
	if n <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + "..."
}
