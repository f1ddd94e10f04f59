package server

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/llmgateway/gateway/internal/config"
	"github.com/llmgateway/gateway/internal/httpwire"
	"github.com/llmgateway/gateway/internal/route"
)

// targetKind classifies a resolved path per spec.md §6's grammar.
type targetKind int

const (
	kindLanding targetKind = iota
	kindTest
	kindForward
)

// resolved is what the path grammar boils down to once parsed: either a
// locally-served kind, or enough of an upstream target to build an
// httpwire.Envelope from.
type resolved struct {
	Kind   targetKind
	Scheme string
	Host   string
	Port   int
	Path   string
	Route  route.Route
}

// resolvePath implements spec.md §6's grammar:
//
//	root := "" | "test" | TOKEN ("/" generic-target)? | preset (rest)?
//
// spec.md's auth rules imply a TOKEN-prefixed preset path too (a preset
// route satisfies PRESET_AUTH_ENABLED by also accepting a TOKEN prefix), so
// a TOKEN segment is tried against both generic-target and the preset table
// before falling through. Returns a non-zero HTTP status on any grammar or
// auth failure, in which case the resolved value is meaningless.
func resolvePath(cfg config.Config, routes *route.Table, path string) (resolved, int) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return resolved{Kind: kindLanding}, 0
	}

	segments := strings.Split(trimmed, "/")

	if segments[0] == "test" {
		return resolved{Kind: kindTest}, 0
	}

	if cfg.AuthToken != "" && segments[0] == cfg.AuthToken {
		rest := segments[1:]
		if len(rest) == 0 {
			return resolved{}, http.StatusBadRequest
		}
		if isScheme(rest[0]) {
			return resolveGeneric(rest)
		}
		if r, ok := routes.Lookup(rest[0]); ok {
			tgt, status := resolvePreset(r, rest[1:])
			return tgt, status
		}
		return resolved{}, http.StatusBadRequest
	}

	if r, ok := routes.Lookup(segments[0]); ok {
		if cfg.PresetAuthEnabled {
			return resolved{}, http.StatusUnauthorized
		}
		return resolvePreset(r, segments[1:])
	}

	return resolved{}, http.StatusUnauthorized
}

func isScheme(s string) bool {
	switch strings.ToLower(s) {
	case "http", "https", "ws", "wss":
		return true
	}
	return false
}

func resolveGeneric(rest []string) (resolved, int) {
	if len(rest) < 2 {
		return resolved{}, http.StatusBadRequest
	}
	scheme := strings.ToLower(rest[0])
	host, port := splitHostPort(rest[1], scheme)
	restPath := ""
	if len(rest) > 2 {
		restPath = "/" + strings.Join(rest[2:], "/")
	}
	return resolved{Kind: kindForward, Scheme: scheme, Host: host, Port: port, Path: restPath}, 0
}

func resolvePreset(r route.Route, rest []string) (resolved, int) {
	base, err := url.Parse(r.BaseURL)
	if err != nil {
		return resolved{}, http.StatusInternalServerError
	}
	host, port := splitHostPort(base.Host, base.Scheme)
	path := strings.TrimRight(base.Path, "/")
	if len(rest) > 0 {
		path += "/" + strings.Join(rest, "/")
	}
	return resolved{Kind: kindForward, Scheme: base.Scheme, Host: host, Port: port, Path: path, Route: r}, 0
}

func splitHostPort(hostport, scheme string) (string, int) {
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		port, convErr := strconv.Atoi(p)
		if convErr == nil {
			return h, port
		}
	}
	return hostport, httpwire.DefaultPort(scheme)
}
