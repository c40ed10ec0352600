// Package osrm provides a client for the OSRM driving-route HTTP API.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	geojson "github.com/twpayne/go-geom/encoding/geojson"

	"github.com/lefei1980/travel-book-generator/internal/resilience"
)

const defaultBaseURL = "https://router.project-osrm.org"

// Client defines the routing operation used by the route builder.
type Client interface {
	// Route computes a driving route through the ordered waypoints
	// (lon, lat pairs). At least two waypoints are required.
	Route(ctx context.Context, waypoints [][2]float64) (*RouteResponse, error)
}

// Leg is one segment between consecutive waypoints.
type Leg struct {
	DistanceM float64
	DurationS float64
}

// RouteResponse is the parsed routing result. Geometry is the full path
// as a GeoJSON LineString.
type RouteResponse struct {
	TotalDistanceM float64
	TotalDurationS float64
	Legs           []Leg
	Geometry       json.RawMessage
}

// RejectionError is a structured rejection from the router (bad
// coordinates, no route between points). It is not retryable.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("osrm: %s: %s", e.Code, e.Message)
}

// IsRejection reports whether err is a router rejection.
func IsRejection(err error) bool {
	var re *RejectionError
	return eris.As(err, &re)
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Legs     []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"legs"`
		Geometry json.RawMessage `json:"geometry"`
	} `json:"routes"`
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

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an OSRM client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Route implements Client.
func (c *httpClient) Route(ctx context.Context, waypoints [][2]float64) (*RouteResponse, error) {
	if len(waypoints) < 2 {
		return nil, &RejectionError{Code: "NotEnoughWaypoints", Message: "need at least two waypoints"}
	}

	var coords strings.Builder
	for i, wp := range waypoints {
		if i > 0 {
			coords.WriteByte(';')
		}
		fmt.Fprintf(&coords, "%f,%f", wp[0], wp[1])
	}

	reqURL := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=geojson&steps=false",
		c.baseURL, coords.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "osrm: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "osrm: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "osrm: read body"), resp.StatusCode)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(eris.Errorf("osrm: status %d", resp.StatusCode), resp.StatusCode)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "osrm: parse response")
	}

	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return nil, &RejectionError{Code: parsed.Code, Message: parsed.Message}
	}

	route := parsed.Routes[0]

	// Validate the geometry decodes as a LineString before passing it on.
	var g geojson.Geometry
	if err := json.Unmarshal(route.Geometry, &g); err != nil {
		return nil, eris.Wrap(err, "osrm: parse geometry")
	}
	if _, err := g.Decode(); err != nil {
		return nil, eris.Wrap(err, "osrm: decode geometry")
	}

	out := &RouteResponse{
		TotalDistanceM: route.Distance,
		TotalDurationS: route.Duration,
		Geometry:       route.Geometry,
	}
	for _, leg := range route.Legs {
		out.Legs = append(out.Legs, Leg{DistanceM: leg.Distance, DurationS: leg.Duration})
	}
	return out, nil
}
