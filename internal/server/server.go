// Package server implements the gateway's downstream-facing router: the
// path-grammar/auth gate from spec.md §6, CORS, the `/test` and landing-page
// supplemented endpoints, and the forwarding glue between an inbound
// net/http request and the transport selector / continuation engine.
// Grounded on go-core-stack/mcp-auth-proxy's pkg/proxy/proxy.go: a single
// http.Handler holding its collaborators, per-request zerolog child
// loggers, a small httpError-style status mapper, and request/response
// header hygiene helpers in the same terse style.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/llmgateway/gateway/internal/apierror"
	"github.com/llmgateway/gateway/internal/bufferio"
	"github.com/llmgateway/gateway/internal/config"
	"github.com/llmgateway/gateway/internal/gemini"
	"github.com/llmgateway/gateway/internal/httpwire"
	"github.com/llmgateway/gateway/internal/route"
	"github.com/llmgateway/gateway/internal/transport/selector"
	"github.com/llmgateway/gateway/internal/xerrors"
)

// geminiAllowedHeaders is spec.md §4.G's narrow upstream header allowlist:
// only these four are forwarded once a request is routed through the
// continuation engine.
var geminiAllowedHeaders = []string{"Authorization", "X-Goog-Api-Key", "Content-Type", "Accept"}

// hopResponseHeaders are stripped from the upstream response before it is
// mirrored back to the downstream client; net/http manages its own framing
// and must not see the upstream's hop-by-hop headers.
var hopResponseHeaders = []string{"Connection", "Transfer-Encoding", "Keep-Alive", "Upgrade"}

// Server is the gateway's single http.Handler. It is immutable once built;
// all per-request state lives on the stack of ServeHTTP and its callees.
type Server struct {
	cfg    config.Config
	routes *route.Table
	sel    *selector.Selector
	engine *gemini.Engine
	logger zerolog.Logger
}

// New builds a Server wired to its collaborators.
func New(cfg config.Config, routes *route.Table, sel *selector.Selector, engine *gemini.Engine, logger zerolog.Logger) *Server {
	return &Server{cfg: cfg, routes: routes, sel: sel, engine: engine, logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method == http.MethodOptions {
		s.servePreflight(w)
		return
	}

	event := s.logger.With().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Logger()

	tgt, status := resolvePath(s.cfg, s.routes, r.URL.Path)
	if status != 0 {
		event.Warn().Int("status", status).Msg("rejected by path grammar")
		s.writeError(w, status, http.StatusText(status))
		return
	}

	switch tgt.Kind {
	case kindLanding:
		s.serveLanding(w)
	case kindTest:
		s.serveTest(w)
	case kindForward:
		s.serveForward(w, r, tgt, event, start)
	}
}

func (s *Server) servePreflight(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) serveTest(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": gatewayVersion})
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Proxy-Error", "true")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(apierror.New(code, message, nil))
}

func (s *Server) serveForward(w http.ResponseWriter, r *http.Request, tgt resolved, event zerolog.Logger, start time.Time) {
	if isWebSocketUpgrade(r) {
		s.serveWebSocket(w, r, tgt, event)
		return
	}

	env := &httpwire.Envelope{
		Method: r.Method,
		Scheme: tgt.Scheme,
		Host:   tgt.Host,
		Port:   tgt.Port,
		Path:   tgt.Path,
		Query:  r.URL.RawQuery,
		Header: headerFromHTTP(r.Header),
	}
	defer r.Body.Close()
	if err := env.BufferBody(bufferio.DefaultMemoryLimit); err != nil {
		event.Error().Err(err).Msg("buffering request body failed")
		s.writeError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}

	geminiEligible := tgt.Route.GeminiContinuation &&
		s.cfg.GeminiSpecialHandlingEnabled &&
		r.Method == http.MethodPost &&
		strings.Contains(r.URL.RawQuery, "alt=sse")

	if geminiEligible {
		env.Header = narrowHeaders(env.Header, geminiAllowedHeaders)
		s.serveGemini(w, r.Context(), env, tgt.Route, event)
		return
	}

	s.serveProxy(w, r.Context(), env, tgt.Route, event, start)
}

func (s *Server) serveProxy(w http.ResponseWriter, ctx context.Context, env *httpwire.Envelope, rt route.Route, event zerolog.Logger, start time.Time) {
	result, err := s.sel.Do(ctx, env, rt)
	if err != nil {
		event.Error().Err(err).Dur("duration", time.Since(start)).Msg("upstream request failed")
		s.writeError(w, mapErrorStatus(err), "upstream request failed")
		return
	}
	defer result.Response.Body.Close()

	s.stampConnectionID(w, result)

	header := w.Header()
	for k, values := range result.Response.Header {
		if isHopResponseHeader(k) {
			continue
		}
		for _, v := range values {
			header.Add(k, v)
		}
	}
	w.WriteHeader(result.Response.StatusCode)

	if _, err := io.Copy(w, result.Response.Body); err != nil {
		event.Error().Err(err).Msg("streaming response body failed")
		return
	}
	event.Info().Int("status", result.Response.StatusCode).Dur("duration", time.Since(start)).Msg("request proxied")
}

func (s *Server) stampConnectionID(w http.ResponseWriter, result *selector.Result) {
	if s.cfg.DebugMode && result.ConnMeta != nil {
		w.Header().Set("X-Gateway-Connection-Id", result.ConnMeta.ConnectionID)
	}
}

func mapErrorStatus(err error) int {
	switch xerrors.GetErrorType(err) {
	case xerrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case xerrors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func headerFromHTTP(h http.Header) httpwire.Header {
	out := httpwire.Header{}
	for k, values := range h {
		for _, v := range values {
			out.Add(k, v)
		}
	}
	return out
}

func narrowHeaders(h httpwire.Header, allow []string) httpwire.Header {
	out := httpwire.Header{}
	for _, name := range allow {
		if v := h.Get(name); v != "" {
			out.Set(name, v)
		}
	}
	return out
}

func isHopResponseHeader(name string) bool {
	for _, h := range hopResponseHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// gatewayVersion is reported by the /test endpoint (SPEC_FULL.md
// Supplemented Features #1).
const gatewayVersion = "0.1.0"
