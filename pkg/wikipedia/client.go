// Package wikipedia provides a client for the MediaWiki Action API: a
// geography-indexed search, a full-text search, article lookups with
// coordinates and a disambiguation flag, and Commons thumbnail lookups
// by canonical title.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lefei1980/travel-book-generator/internal/resilience"
)

const defaultBaseURL = "https://en.wikipedia.org/w/api.php"

// Client defines the encyclopedia lookups used by the content matcher.
type Client interface {
	// GeoSearch returns articles near the given coordinate, closest first.
	GeoSearch(ctx context.Context, lat, lon float64, radiusM, limit int) ([]GeoMatch, error)
	// SearchTitles returns article titles matching a free-text query.
	SearchTitles(ctx context.Context, query string, limit int) ([]string, error)
	// GetPage fetches one article: canonical title (after redirects),
	// intro extract, coordinates if the article has any, and whether it
	// is a disambiguation page.
	GetPage(ctx context.Context, title string) (*Page, error)
	// PageImage fetches the lead thumbnail for an exact canonical title.
	PageImage(ctx context.Context, title string) (*Image, error)
}

// GeoMatch is one geosearch result.
type GeoMatch struct {
	Title     string
	Latitude  float64
	Longitude float64
	DistanceM float64
}

// Page is one article as needed for disambiguation. Coordinates are nil
// for people, concepts and other non-geographic topics.
type Page struct {
	Title          string
	Extract        string
	Latitude       *float64
	Longitude      *float64
	Disambiguation bool
	Missing        bool
}

// URL returns the canonical article URL.
func (p *Page) URL() string {
	return "https://en.wikipedia.org/wiki/" + strings.ReplaceAll(p.Title, " ", "_")
}

// Image is a Commons thumbnail with its attribution string.
type Image struct {
	URL         string
	Attribution string
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

// WithThumbSize sets the requested thumbnail width in pixels.
func WithThumbSize(px int) Option {
	return func(c *httpClient) {
		c.thumbSize = px
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	thumbSize int
	http      *http.Client
}

// NewClient creates a Wikipedia client.
func NewClient(contactEmail string, opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: fmt.Sprintf("TravelBookGenerator/1.0 (%s)", contactEmail),
		thumbSize: 800,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) get(ctx context.Context, params url.Values, out any) error {
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "wikipedia: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "wikipedia: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "wikipedia: read body"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return resilience.NewTransientError(eris.Errorf("wikipedia: status %d", resp.StatusCode), resp.StatusCode)
	default:
		return resilience.NewProviderRejectedError("wikipedia", resp.StatusCode, string(body[:min(len(body), 200)]))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "wikipedia: parse response")
	}
	return nil
}

// GeoSearch implements Client.
func (c *httpClient) GeoSearch(ctx context.Context, lat, lon float64, radiusM, limit int) ([]GeoMatch, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"geosearch"},
		"gscoord":  {fmt.Sprintf("%f|%f", lat, lon)},
		"gsradius": {strconv.Itoa(radiusM)},
		"gslimit":  {strconv.Itoa(limit)},
	}

	var raw struct {
		Query struct {
			GeoSearch []struct {
				Title string  `json:"title"`
				Lat   float64 `json:"lat"`
				Lon   float64 `json:"lon"`
				Dist  float64 `json:"dist"`
			} `json:"geosearch"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &raw); err != nil {
		return nil, err
	}

	matches := make([]GeoMatch, 0, len(raw.Query.GeoSearch))
	for _, g := range raw.Query.GeoSearch {
		matches = append(matches, GeoMatch{
			Title:     g.Title,
			Latitude:  g.Lat,
			Longitude: g.Lon,
			DistanceM: g.Dist,
		})
	}
	return matches, nil
}

// SearchTitles implements Client.
func (c *httpClient) SearchTitles(ctx context.Context, query string, limit int) ([]string, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(limit)},
	}

	var raw struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &raw); err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(raw.Query.Search))
	for _, s := range raw.Query.Search {
		titles = append(titles, s.Title)
	}
	return titles, nil
}

// GetPage implements Client.
func (c *httpClient) GetPage(ctx context.Context, title string) (*Page, error) {
	params := url.Values{
		"action":      {"query"},
		"titles":      {title},
		"prop":        {"extracts|coordinates|pageprops"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"ppprop":      {"disambiguation"},
		"redirects":   {"1"},
	}

	var raw struct {
		Query struct {
			Pages map[string]struct {
				Title       string `json:"title"`
				Extract     string `json:"extract"`
				Missing     *any   `json:"missing,omitempty"`
				Coordinates []struct {
					Lat float64 `json:"lat"`
					Lon float64 `json:"lon"`
				} `json:"coordinates"`
				PageProps map[string]any `json:"pageprops"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &raw); err != nil {
		return nil, err
	}

	for pageID, p := range raw.Query.Pages {
		page := &Page{
			Title:   p.Title,
			Extract: p.Extract,
			Missing: pageID == "-1" || p.Missing != nil,
		}
		if len(p.Coordinates) > 0 {
			lat, lon := p.Coordinates[0].Lat, p.Coordinates[0].Lon
			page.Latitude = &lat
			page.Longitude = &lon
		}
		if _, ok := p.PageProps["disambiguation"]; ok {
			page.Disambiguation = true
		}
		return page, nil
	}
	return &Page{Title: title, Missing: true}, nil
}

// PageImage implements Client. The title must be the canonical article
// title; thumbnails are indexed by it, and a near-miss silently returns
// nothing.
func (c *httpClient) PageImage(ctx context.Context, title string) (*Image, error) {
	params := url.Values{
		"action":      {"query"},
		"titles":      {title},
		"prop":        {"pageimages"},
		"piprop":      {"thumbnail"},
		"pithumbsize": {strconv.Itoa(c.thumbSize)},
		"redirects":   {"1"},
	}

	var raw struct {
		Query struct {
			Pages map[string]struct {
				Thumbnail struct {
					Source string `json:"source"`
				} `json:"thumbnail"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &raw); err != nil {
		return nil, err
	}

	for pageID, p := range raw.Query.Pages {
		if pageID == "-1" || p.Thumbnail.Source == "" {
			return nil, nil
		}
		return &Image{
			URL:         p.Thumbnail.Source,
			Attribution: "CC BY-SA 3.0, Wikimedia Commons",
		}, nil
	}
	return nil, nil
}
