// Package selector implements the transport selection policy from
// spec.md §4.D: try the raw-socket transport first unless the route
// prefers the high-level one, and fall back to the high-level transport on
// raw-socket failure — re-cloning the request body first, since the
// raw-socket attempt already consumed it (spec.md §9, "body re-consumption
// for fallback").
package selector

import (
	"context"
	"time"

	"github.com/llmgateway/gateway/internal/httpwire"
	"github.com/llmgateway/gateway/internal/route"
	"github.com/llmgateway/gateway/internal/transport/httpclient"
	"github.com/llmgateway/gateway/internal/transport/rawsocket"
	"github.com/llmgateway/gateway/internal/xerrors"
)

// RawTransport is the subset of rawsocket.Transport the selector depends
// on, so tests can substitute a fake.
type RawTransport interface {
	RoundTrip(ctx context.Context, env *httpwire.Envelope) (*httpwire.Response, *rawsocket.ConnectionMetadata, error)
}

// HighLevelTransport is the subset of httpclient.Transport the selector
// depends on.
type HighLevelTransport interface {
	RoundTrip(ctx context.Context, env *httpwire.Envelope) (*httpwire.Response, error)
}

// Selector picks between the raw-socket and high-level transports per
// request, per spec.md §4.D's policy table.
type Selector struct {
	Raw        RawTransport
	HighLevel  HighLevelTransport
	Aggressive bool // AGGRESSIVE_FALLBACK: fall back even on non-retryable errors
}

// New builds a Selector wired to concrete transports. raw may be nil (an
// untyped nil, not a typed nil *rawsocket.Transport) to force every request
// through the high-level transport; passing a nil RawTransport interface
// value keeps s.Raw == nil true inside Do, unlike a nil concrete pointer
// boxed into the interface.
func New(raw RawTransport, highLevel HighLevelTransport, aggressiveFallback bool) *Selector {
	return &Selector{Raw: raw, HighLevel: highLevel, Aggressive: aggressiveFallback}
}

// Result carries the response plus which path served it, for logging and
// the debug connection-metadata header (SPEC_FULL.md Supplemented
// Features #4).
type Result struct {
	Response     *httpwire.Response
	UsedFallback bool
	ConnMeta     *rawsocket.ConnectionMetadata // nil when the fallback path served the request
}

// Do serves env according to r's transport preference. env.BufferedBody
// must already hold the full request body (the caller buffers once; Do
// clones it internally before trying the raw-socket path so the fallback
// still has an unconsumed copy).
func (s *Selector) Do(ctx context.Context, env *httpwire.Envelope, r route.Route) (*Result, error) {
	if r.PreferHighLevel || s.Raw == nil {
		resp, err := s.HighLevel.RoundTrip(ctx, env)
		if err != nil {
			return nil, err
		}
		return &Result{Response: resp, UsedFallback: true}, nil
	}

	rawEnv, err := env.Clone()
	if err != nil {
		return nil, err
	}

	rawStart := time.Now()
	resp, meta, rawErr := s.Raw.RoundTrip(ctx, rawEnv)
	rawRecord := xerrors.FailureRecord{Path: "raw-socket", Duration: time.Since(rawStart)}
	if rawErr == nil {
		return &Result{Response: resp, ConnMeta: meta}, nil
	}
	rawRecord.Err = rawErr

	if !s.Aggressive && !xerrors.IsRetryable(rawErr) {
		return nil, rawErr
	}

	fallbackEnv, cloneErr := env.Clone()
	if cloneErr != nil {
		return nil, xerrors.NewBadGatewayError("raw-socket failed and body could not be re-cloned for fallback", rawRecord)
	}

	fallbackStart := time.Now()
	fallbackResp, fallbackErr := s.HighLevel.RoundTrip(ctx, fallbackEnv)
	if fallbackErr != nil {
		fallbackRecord := xerrors.FailureRecord{
			Path:     "high-level",
			Duration: time.Since(fallbackStart),
			Err:      fallbackErr,
		}
		return nil, xerrors.NewBadGatewayError("both raw-socket and fallback transports failed", rawRecord, fallbackRecord)
	}

	return &Result{Response: fallbackResp, UsedFallback: true}, nil
}
