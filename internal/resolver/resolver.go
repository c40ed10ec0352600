// Package resolver maps free-text place names to coordinates with
// bounded confidence. It builds query variants in priority order,
// consults the geocode cache before any network call, scores every
// candidate against the user-supplied hints, and falls back to
// generated name variants when nothing clears the acceptance bands.
package resolver

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lefei1980/travel-book-generator/internal/config"
	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/resilience"
	"github.com/lefei1980/travel-book-generator/pkg/nominatim"
	"github.com/lefei1980/travel-book-generator/pkg/suggest"
)

// ErrUnresolved marks a place that exhausted every query variant and
// fallback without clearing the lowest acceptance band. It is a
// per-item outcome, never fatal to the pipeline.
var ErrUnresolved = eris.New("place unresolved")

// maxCandidates bounds how many geocoder results are scored per query.
const maxCandidates = 5

// Cache is the slice of the store the resolver needs.
type Cache interface {
	GetGeocodeCache(ctx context.Context, query string) (*model.GeocodeCacheEntry, error)
	PutGeocodeCache(ctx context.Context, entry model.GeocodeCacheEntry) error
}

// Resolver resolves place names through the geocoding provider with a
// write-through cache. Safe for concurrent use; the provider client
// carries the process-wide rate gate.
type Resolver struct {
	geocoder nominatim.Client
	cache    Cache
	suggest  suggest.Client // nil disables the name-variant fallback
	cfg      config.ResolverConfig
	retry    resilience.RetryConfig
}

// New creates a Resolver. The suggest client may be nil.
func New(geocoder nominatim.Client, cache Cache, sug suggest.Client, cfg config.ResolverConfig) *Resolver {
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	retry.ShouldRetry = resilience.IsTransient
	retry.OnRetry = resilience.RetryLogger("nominatim", "search")
	return &Resolver{
		geocoder: geocoder,
		cache:    cache,
		suggest:  sug,
		cfg:      cfg,
		retry:    retry,
	}
}

// Resolve maps a place name, with optional city/country hints, to a
// coordinate. Returns ErrUnresolved when nothing acceptable was found,
// or a resilience.ProviderRejectedError when the upstream refused us
// outright (fatal to the whole run, never retried here).
func (r *Resolver) Resolve(ctx context.Context, name, cityHint, countryHint string) (*model.ResolvedPlace, error) {
	if strings.TrimSpace(name) == "" {
		return nil, eris.New("resolver: empty place name")
	}

	var best *scored
	for _, query := range r.queryVariants(name, cityHint, countryHint) {
		if hit, err := r.cacheLookup(ctx, query, countryHint); err != nil {
			return nil, err
		} else if hit != nil {
			return hit, nil
		}

		sc, err := r.lookupScored(ctx, query, name, cityHint, countryHint)
		if err != nil {
			if resilience.IsProviderRejected(err) {
				return nil, err
			}
			// Transient failures exhausted their retries; treat the
			// variant as a non-match and move on.
			zap.L().Warn("geocode variant failed", zap.String("query", query), zap.Error(err))
			continue
		}
		if sc == nil {
			continue
		}
		if sc.score >= r.cfg.AcceptScore {
			return r.accept(ctx, sc, model.ConfidenceHigh)
		}
		if sc.score >= r.cfg.MediumScore {
			return r.accept(ctx, sc, model.ConfidenceMedium)
		}
		if best == nil || sc.score > best.score {
			best = sc
		}
	}

	// Nothing cleared the medium band: ask for alternative names and
	// retry the top suggestion once.
	if sc := r.suggestFallback(ctx, name, cityHint, countryHint); sc != nil {
		if best == nil || sc.score > best.score {
			best = sc
		}
	}

	if best != nil && best.score >= r.cfg.FallbackScore {
		return r.accept(ctx, best, model.ConfidenceLow)
	}
	return nil, eris.Wrapf(ErrUnresolved, "no candidate accepted for %q", name)
}

// ResolveLocation geocodes a free-text day start/end location. Text
// too vague to geocode directly gets a second attempt with an embedded
// landmark token, then a final attempt at city-level context.
func (r *Resolver) ResolveLocation(ctx context.Context, text, cityContext string) (*model.ResolvedPlace, error) {
	rp, err := r.Resolve(ctx, text, "", "")
	if err == nil {
		return rp, nil
	}
	if resilience.IsProviderRejected(err) {
		return nil, err
	}

	if landmark := extractLandmark(text); landmark != "" && landmark != text {
		rp, err = r.Resolve(ctx, landmark, cityContext, "")
		if err == nil {
			return rp, nil
		}
		if resilience.IsProviderRejected(err) {
			return nil, err
		}
	}

	if cityContext != "" {
		return r.Resolve(ctx, cityContext, "", "")
	}
	return nil, eris.Wrapf(ErrUnresolved, "location %q", text)
}

type scored struct {
	candidate nominatim.Candidate
	query     string
	score     float64
}

// queryVariants builds the lookup queries in priority order: normalized
// name with hints, normalized name alone, original name with hints.
func (r *Resolver) queryVariants(name, cityHint, countryHint string) []string {
	normalized := NormalizeName(name)
	variants := []string{
		joinParts(normalized, cityHint, countryHint),
		normalized,
		joinParts(name, cityHint, countryHint),
	}

	seen := make(map[string]bool, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func (r *Resolver) cacheLookup(ctx context.Context, query, countryHint string) (*model.ResolvedPlace, error) {
	entry, err := r.cache.GetGeocodeCache(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: cache lookup")
	}
	if entry == nil {
		return nil, nil
	}

	// The hard country filter applies to cached results too: an entry
	// accepted by a hint-less run must not satisfy a later call naming
	// a different country. A mismatch is a miss, not a failure.
	// Imported seed entries carry no display text and nothing to
	// contradict the hint.
	if countryHint != "" && entry.DisplayName != "" && !strings.Contains(Fold(entry.DisplayName), Fold(countryHint)) {
		zap.L().Debug("geocode cache hit rejected by country hint",
			zap.String("query", query),
			zap.String("country_hint", countryHint),
		)
		return nil, nil
	}

	confidence := entry.Confidence
	if confidence == "" {
		confidence = model.ConfidenceHigh
	}
	return &model.ResolvedPlace{
		Latitude:    entry.Latitude,
		Longitude:   entry.Longitude,
		DisplayName: entry.DisplayName,
		Query:       query,
		Confidence:  confidence,
	}, nil
}

// lookupScored runs one rate-limited geocoder query and returns the
// best-scoring surviving candidate, or nil when nothing survived.
func (r *Resolver) lookupScored(ctx context.Context, query, name, cityHint, countryHint string) (*scored, error) {
	candidates, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) ([]nominatim.Candidate, error) {
		return r.geocoder.Search(ctx, query, maxCandidates)
	})
	if err != nil {
		return nil, err
	}

	var best *scored
	for _, c := range candidates {
		score, ok := r.scoreCandidate(c, name, cityHint, countryHint)
		if !ok {
			continue
		}
		if best == nil || score > best.score {
			best = &scored{candidate: c, query: query, score: score}
		}
	}
	return best, nil
}

// scoreCandidate grades a candidate against the hints. The returned
// bool is false when the candidate fails the hard country filter: a
// supplied country hint absent from the display text rejects the
// candidate outright, whatever its score. Same-named places on the
// wrong continent otherwise slip through and corrupt downstream routes.
func (r *Resolver) scoreCandidate(c nominatim.Candidate, name, cityHint, countryHint string) (float64, bool) {
	display := Fold(c.DisplayName)

	if countryHint != "" && !strings.Contains(display, Fold(countryHint)) {
		return 0, false
	}

	var score float64
	normName := Fold(NormalizeName(name))
	candName := display
	if i := strings.Index(display, ","); i >= 0 {
		candName = display[:i]
	}
	if normName != "" && (strings.Contains(candName, normName) || strings.Contains(normName, candName)) {
		score += r.cfg.NameMatchBonus
	}
	if cityHint != "" && strings.Contains(display, Fold(cityHint)) {
		score += r.cfg.CityHintBonus
	}
	if countryHint != "" {
		score += r.cfg.CountryHintBonus
	}
	score += c.Importance * r.cfg.ImportanceWeight
	return score, true
}

// suggestFallback asks the name-variant collaborator for alternative
// spellings and retries the top suggestion once. Returns nil when the
// collaborator is absent, fails, or produces nothing better.
func (r *Resolver) suggestFallback(ctx context.Context, name, cityHint, countryHint string) *scored {
	if r.suggest == nil {
		return nil
	}
	variants, err := r.suggest.NameVariants(ctx, name, cityHint, countryHint)
	if err != nil {
		zap.L().Warn("name variant suggestion failed", zap.String("place", name), zap.Error(err))
		return nil
	}
	if len(variants) == 0 {
		return nil
	}

	query := joinParts(variants[0], cityHint, countryHint)
	zap.L().Info("retrying with suggested name variant",
		zap.String("place", name),
		zap.String("variant", variants[0]),
	)
	sc, err := r.lookupScored(ctx, query, variants[0], cityHint, countryHint)
	if err != nil || sc == nil {
		return nil
	}
	return sc
}

// accept turns a scored candidate into the final result and writes it
// through to the cache keyed by the exact query that produced it.
func (r *Resolver) accept(ctx context.Context, sc *scored, confidence model.Confidence) (*model.ResolvedPlace, error) {
	entry := model.GeocodeCacheEntry{
		Query:       sc.query,
		Latitude:    sc.candidate.Latitude,
		Longitude:   sc.candidate.Longitude,
		DisplayName: sc.candidate.DisplayName,
		Source:      "nominatim",
		Confidence:  confidence,
	}
	if err := r.cache.PutGeocodeCache(ctx, entry); err != nil {
		// A cache write failure costs a future lookup, not this one.
		zap.L().Warn("geocode cache write failed", zap.String("query", sc.query), zap.Error(err))
	}
	return &model.ResolvedPlace{
		Latitude:    sc.candidate.Latitude,
		Longitude:   sc.candidate.Longitude,
		DisplayName: sc.candidate.DisplayName,
		Query:       sc.query,
		Confidence:  confidence,
		Score:       sc.score,
	}, nil
}

func joinParts(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
