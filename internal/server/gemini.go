package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/llmgateway/gateway/internal/apierror"
	"github.com/llmgateway/gateway/internal/bufferio"
	"github.com/llmgateway/gateway/internal/httpwire"
	"github.com/llmgateway/gateway/internal/route"
	"github.com/llmgateway/gateway/internal/transport/selector"
)

// serveGemini implements spec.md §4.G's entry point: dispatch the initial
// request, and either relay it straight through to the continuation engine
// (on a 2xx) or rewrite a non-2xx initial response as a Google-style JSON
// error (spec.md §7, "For Gemini: rewritten to Google-style JSON").
func (s *Server) serveGemini(w http.ResponseWriter, ctx context.Context, env *httpwire.Envelope, rt route.Route, event zerolog.Logger) {
	originalBody, err := readBufferedBody(env)
	if err != nil {
		event.Error().Err(err).Msg("reading buffered body for continuation engine failed")
		s.writeError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}

	result, err := s.sel.Do(ctx, env, rt)
	if err != nil {
		event.Error().Err(err).Msg("initial Gemini request failed")
		s.writeError(w, http.StatusBadGateway, "upstream request failed")
		return
	}

	if result.Response.StatusCode < 200 || result.Response.StatusCode >= 300 {
		defer result.Response.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(result.Response.Body, 64*1024))
		event.Warn().Int("status", result.Response.StatusCode).Bytes("upstream_body", body).Msg("initial Gemini request returned non-2xx")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(result.Response.StatusCode)
		json.NewEncoder(w).Encode(apierror.NewGoogleBody(result.Response.StatusCode, "upstream returned an error"))
		return
	}

	s.stampConnectionID(w, result)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	dispatcher := &geminiDispatcher{sel: s.sel, template: env, route: rt}

	event.Debug().Msg("continuation engine session started")
	if err := s.engine.Run(ctx, result.Response, originalBody, flushWriter{w: w, f: flusher}, dispatcher); err != nil {
		event.Warn().Err(err).Msg("continuation engine session ended with error")
		return
	}
	event.Info().Msg("continuation engine session completed")
}

func readBufferedBody(env *httpwire.Envelope) ([]byte, error) {
	if env.BufferedBody == nil {
		return nil, nil
	}
	return env.BufferedBody.ReadAll()
}

// geminiDispatcher implements gemini.Dispatcher by re-issuing the
// continuation body against the same route through the same transport
// selector the initial request used, keeping internal/gemini itself free of
// transport/routing concerns.
type geminiDispatcher struct {
	sel      *selector.Selector
	template *httpwire.Envelope
	route    route.Route
}

func (d *geminiDispatcher) Dispatch(ctx context.Context, body []byte) (*httpwire.Response, error) {
	env := &httpwire.Envelope{
		Method:       d.template.Method,
		Scheme:       d.template.Scheme,
		Host:         d.template.Host,
		Port:         d.template.Port,
		Path:         d.template.Path,
		Query:        d.template.Query,
		Header:       d.template.Header.Clone(),
		BufferedBody: bufferio.NewWithData(body),
	}

	result, err := d.sel.Do(ctx, env, d.route)
	if err != nil {
		return nil, err
	}
	return result.Response, nil
}

// flushWriter flushes the underlying ResponseWriter after every write so
// SSE lines reach the downstream client as soon as the continuation engine
// produces them, instead of waiting in net/http's internal buffer.
type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}
