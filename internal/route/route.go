// Package route supplies the preset upstream catalog referenced by
// spec.md's path grammar (SPEC_FULL.md Supplemented Features #3). spec.md
// treats the route table as an external input; this package loads a small
// concrete one so the gateway is runnable end-to-end.
package route

import (
	"sort"
	"strings"
)

// Route describes one preset upstream: its base URL and any per-route
// transport hints.
type Route struct {
	ID string
	// BaseURL is the scheme+host[:port] every request under this preset
	// is forwarded to; the remainder of the incoming path is appended.
	BaseURL string
	// PreferHighLevel routes this preset straight to the high-level
	// transport, skipping the raw-socket attempt (spec.md §4.D) — used
	// for upstreams known not to need raw header control.
	PreferHighLevel bool
	// GeminiContinuation marks this route as eligible for the
	// continuation engine (spec.md §4.G); only the Gemini preset sets
	// this by default.
	GeminiContinuation bool
}

// Table is an immutable preset-route lookup, built once at startup
// (spec.md §9's "global mutable config" note applies here too: the table
// is constructed once and never mutated afterward).
type Table struct {
	routes map[string]Route
}

// builtins are the routes always available regardless of configuration.
func builtins() map[string]Route {
	return map[string]Route{
		"openai": {
			ID:      "openai",
			BaseURL: "https://api.openai.com",
		},
		"anthropic": {
			ID:              "anthropic",
			BaseURL:         "https://api.anthropic.com",
			PreferHighLevel: true,
		},
		"gemini": {
			ID:                 "gemini",
			BaseURL:            "https://generativelanguage.googleapis.com",
			GeminiContinuation: true,
		},
	}
}

// NewTable builds the route table from the built-in presets plus an
// optional default-destination override loaded from DEFAULT_DST_URL
// (spec.md §6); an empty defaultDstURL leaves the built-ins untouched.
func NewTable(defaultDstURL string) *Table {
	routes := builtins()
	if defaultDstURL != "" {
		routes["default"] = Route{ID: "default", BaseURL: strings.TrimRight(defaultDstURL, "/")}
	}
	return &Table{routes: routes}
}

// Lookup returns the route registered under id.
func (t *Table) Lookup(id string) (Route, bool) {
	r, ok := t.routes[id]
	return r, ok
}

// IDs returns every registered preset id, sorted, for use by the landing
// page (SPEC_FULL.md Supplemented Features #2).
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.routes))
	for id := range t.routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
