package server

import (
	"errors"
	"fmt"

	"github.com/poiesic/recall/config"
)

// ErrInvalidRoute is returned by BuildRoutes for a bad route entry.
var ErrInvalidRoute = errors.New("invalid route")

// Route binds an endpoint to a source kind and a pipeline title.
type Route struct {
	Endpoint   string `json:"endpoint"`
	Title      string `json:"title"`
	SourceType string `json:"source_type"`
	Path       string `json:"path"`
}

// Table is the immutable route table.
type Table struct {
	routes []Route
	byPath map[string]Route
}

// BuildRoutes validates entries and builds the table. Unknown source types and
// duplicate endpoints are errors.
func BuildRoutes(entries []config.Route) (*Table, error) {
	t := &Table{
		routes: make([]Route, 0, len(entries)),
		byPath: make(map[string]Route, len(entries)),
	}
	for _, e := range entries {
		if e.Endpoint == "" {
			return nil, fmt.Errorf("%w: empty endpoint", ErrInvalidRoute)
		}
		if e.SourceType != config.SourceFile && e.SourceType != config.SourceURL {
			return nil, fmt.Errorf("%w: %q has source_type %q", ErrInvalidRoute, e.Endpoint, e.SourceType)
		}
		path := "/" + e.Endpoint
		if _, dup := t.byPath[path]; dup {
			return nil, fmt.Errorf("%w: duplicate endpoint %q", ErrInvalidRoute, e.Endpoint)
		}
		title := e.Title
		if title == "" {
			title = e.Endpoint
		}
		r := Route{Endpoint: e.Endpoint, Title: title, SourceType: e.SourceType, Path: path}
		t.routes = append(t.routes, r)
		t.byPath[path] = r
	}
	return t, nil
}

// Routes returns the routes in declaration order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Lookup returns the route mounted at path.
func (t *Table) Lookup(path string) (Route, bool) {
	r, ok := t.byPath[path]
	return r, ok
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.routes)
}
