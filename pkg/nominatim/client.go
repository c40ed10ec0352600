// Package nominatim provides a client for the OpenStreetMap Nominatim
// search API. The upstream service enforces a hard 1 request/second
// ceiling and rejects clients without a distinguishing User-Agent, so the
// client takes a shared rate limiter and always sends an identifying
// header.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/lefei1980/travel-book-generator/internal/resilience"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Client defines the geocoding lookups used by the resolver.
type Client interface {
	// Search returns up to limit candidates for a free-text query.
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Candidate is a single geocoding result.
type Candidate struct {
	DisplayName string
	Latitude    float64
	Longitude   float64
	Class       string
	Type        string
	Importance  float64
}

// searchResult is the raw Nominatim JSON shape; coordinates arrive as
// strings.
type searchResult struct {
	DisplayName string  `json:"display_name"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Class       string  `json:"class"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimiter sets the shared request gate. All clients in the
// process must share one limiter to honor the upstream ceiling.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a Nominatim client. contactEmail is embedded in the
// User-Agent per the upstream usage policy.
func NewClient(contactEmail string, opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: fmt.Sprintf("TravelBookGenerator/1.0 (%s)", contactEmail),
		http:      &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search implements Client. It blocks on the shared rate gate before
// issuing the request.
func (c *httpClient) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nominatim: rate limit wait")
	}

	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {strconv.Itoa(limit)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "nominatim: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "nominatim: read body"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(eris.Errorf("nominatim: status %d", resp.StatusCode), resp.StatusCode)
	default:
		// 403 here almost always means a blocked or missing contact
		// identifier; retrying cannot help.
		return nil, resilience.NewProviderRejectedError("nominatim", resp.StatusCode, truncate(string(body), 200))
	}

	var raw []searchResult
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "nominatim: parse response")
	}

	candidates := make([]Candidate, 0, len(raw))
	for _, r := range raw {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			DisplayName: r.DisplayName,
			Latitude:    lat,
			Longitude:   lon,
			Class:       r.Class,
			Type:        r.Type,
			Importance:  r.Importance,
		})
	}
	return candidates, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
