// Package httpclient implements the high-level fallback transport from
// spec.md §4.C: a plain net/http.Client used when the raw-socket transport
// fails or the route prefers it (spec.md §4.D). It is grounded on the same
// teacher family's layered design (a second, simpler transport underneath
// the primary one) but, unlike pkg/transport/transport.go, delegates
// everything — dialing, TLS, chunked/content-length decoding, redirects —
// to net/http, trading header-level control for robustness.
package httpclient

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/llmgateway/gateway/internal/httpwire"
	"github.com/llmgateway/gateway/internal/xerrors"
)

// DefaultConnectTimeout bounds dialing and the TLS handshake when
// Options.ConnectTimeout is zero. This is deliberately NOT an overall
// http.Client.Timeout: that would bound body-read time too, which would
// cut off exactly the long-lived SSE/Gemini-continuation streams this
// transport needs to relay (spec.md §4.F, §4.G).
const DefaultConnectTimeout = 10 * time.Second

// Options controls the underlying client's behavior.
type Options struct {
	ConnectTimeout time.Duration
}

// Transport performs a request through net/http, following redirects
// automatically.
type Transport struct {
	client *http.Client
}

// New builds a Transport. Redirects are followed using net/http's default
// policy (up to 10 hops).
func New(opts Options) *Transport {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: connectTimeout,
	}
	return &Transport{client: &http.Client{Transport: transport}}
}

// RoundTrip issues env as a net/http request and adapts the result back
// into an httpwire.Response so callers (the selector, the relay) don't need
// to know which transport served the request.
func (t *Transport) RoundTrip(ctx context.Context, env *httpwire.Envelope) (*httpwire.Response, error) {
	var body io.Reader
	if env.BufferedBody != nil && env.BufferedBody.Size() > 0 {
		r, err := env.BufferedBody.Reader()
		if err != nil {
			return nil, err
		}
		defer r.Close()
		body = r
	} else if env.Body != nil {
		body = env.Body
	}

	req, err := http.NewRequestWithContext(ctx, env.Method, env.URL(), body)
	if err != nil {
		return nil, xerrors.NewValidationError("building fallback request: " + err.Error())
	}

	for key, values := range httpwire.FilterHeaders(env.Header) {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept-Encoding", "identity")

	httpResp, err := t.client.Do(req)
	if err != nil {
		return nil, xerrors.NewConnectionError(env.Host, 0, err)
	}

	header := httpwire.Header{}
	for k, values := range httpResp.Header {
		for _, v := range values {
			header.Add(k, v)
		}
	}

	return &httpwire.Response{
		HTTPVersion: httpResp.Proto,
		StatusCode:  httpResp.StatusCode,
		Reason:      http.StatusText(httpResp.StatusCode),
		Header:      header,
		Body:        httpResp.Body,
	}, nil
}
