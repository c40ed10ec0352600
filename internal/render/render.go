// Package render writes the final travel-book artifact as a
// self-contained HTML document.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lefei1980/travel-book-generator/internal/config"
	"github.com/lefei1980/travel-book-generator/internal/model"
)

// Renderer produces one HTML book per trip in the configured output
// directory.
type Renderer struct {
	outputDir string
	tmpl      *template.Template
}

// New creates a Renderer and parses the book template.
func New(cfg config.RenderConfig) (*Renderer, error) {
	tmpl, err := template.New("book").Funcs(template.FuncMap{
		"km":    formatKm,
		"hours": formatHours,
	}).Parse(bookTemplate)
	if err != nil {
		return nil, eris.Wrap(err, "render: parse template")
	}
	dir := cfg.OutputDir
	if dir == "" {
		dir = "books"
	}
	return &Renderer{outputDir: dir, tmpl: tmpl}, nil
}

// dayView is one day prepared for the template.
type dayView struct {
	Day     model.Day
	Route   *model.Route
	Content map[string]model.PlaceContent
}

type bookView struct {
	Trip       *model.Trip
	Days       []dayView
	Unresolved []model.UnresolvedPlace
}

// Render writes the book for a fully enriched trip and returns the
// artifact path.
func (r *Renderer) Render(ctx context.Context, trip *model.Trip) (string, error) {
	if trip.Enriched == nil || trip.Enriched.Geocoding == nil {
		return "", eris.New("render: trip has no enriched data")
	}

	view := bookView{Trip: trip, Unresolved: trip.Enriched.Geocoding.Unresolved}
	for _, day := range trip.Days {
		dv := dayView{Day: day, Content: map[string]model.PlaceContent{}}
		if trip.Enriched.Routing != nil {
			dv.Route = trip.Enriched.Routing.Routes[fmt.Sprintf("%d", day.DayNumber)]
		}
		if trip.Enriched.Enrichment != nil {
			for _, p := range day.Places {
				if pc, ok := trip.Enriched.Enrichment.Places[p.Name]; ok {
					dv.Content[p.Name] = pc
				}
			}
		}
		view.Days = append(view.Days, dv)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return "", eris.Wrap(err, "render: execute template")
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", eris.Wrap(err, "render: create output dir")
	}
	path := filepath.Join(r.outputDir, fmt.Sprintf("trip-%s.html", trip.ID))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", eris.Wrap(err, "render: write artifact")
	}

	zap.L().Info("travel book written", zap.String("path", path), zap.Int("bytes", buf.Len()))
	return path, nil
}

func formatKm(meters float64) string {
	return fmt.Sprintf("%.1f km", meters/1000)
}

func formatHours(seconds float64) string {
	h := int(seconds) / 3600
	m := (int(seconds) % 3600) / 60
	if h == 0 {
		return fmt.Sprintf("%d min", m)
	}
	return fmt.Sprintf("%dh %02dm", h, m)
}

const bookTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Trip.Title}}</title>
<style>
body { font-family: Georgia, serif; max-width: 54rem; margin: 2rem auto; color: #222; }
h1 { border-bottom: 2px solid #446; }
h2 { margin-top: 2.5rem; }
.place { margin: 1.2rem 0; }
.place img { max-width: 22rem; display: block; margin: 0.4rem 0; }
.attribution { font-size: 0.75rem; color: #777; }
.route { background: #f4f6fa; padding: 0.6rem 1rem; border-left: 3px solid #446; }
.unresolved { color: #a33; font-size: 0.9rem; }
.category { text-transform: uppercase; font-size: 0.7rem; color: #668; letter-spacing: 0.08em; }
</style>
</head>
<body>
<h1>{{.Trip.Title}}</h1>
{{if .Trip.StartDate}}<p>{{.Trip.StartDate}} &ndash; {{.Trip.EndDate}}</p>{{end}}

{{range .Days}}
{{$dv := .}}
<h2>Day {{.Day.DayNumber}}</h2>
{{if .Day.StartLocation}}<p>From <strong>{{.Day.StartLocation}}</strong>{{if .Day.EndLocation}} to <strong>{{.Day.EndLocation}}</strong>{{end}}.</p>{{end}}
{{if .Route}}
<div class="route">Driving: {{km .Route.TotalDistanceM}}, about {{hours .Route.TotalDurationS}}.</div>
{{else}}
<div class="route">No driving route available for this day.</div>
{{end}}
{{range .Day.Places}}
<div class="place">
<span class="category">{{.Category}}</span>
<h3>{{.Name}}</h3>
{{$pc := index $dv.Content .Name}}
{{if $pc.Description}}<p>{{$pc.Description}}</p>{{end}}
{{if $pc.ImageURL}}<img src="{{$pc.ImageURL}}" alt="{{.Name}}">
<div class="attribution">{{$pc.ImageAttribution}}</div>{{end}}
{{if $pc.ArticleURL}}<p><a href="{{$pc.ArticleURL}}">Read more</a></p>{{end}}
</div>
{{end}}
{{end}}

{{if .Unresolved}}
<h2>Could not be located</h2>
{{range .Unresolved}}<p class="unresolved">{{.Name}} &mdash; {{.Reason}}</p>{{end}}
{{end}}
</body>
</html>
`
