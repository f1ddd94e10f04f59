// Package httpwire implements the frame codec described in spec.md §4.A:
// HTTP/1.1 request serialization, status-line/header/chunked/content-length
// parsing, and the header-hygiene filter from spec.md §6. It is grounded on
// the teacher library's pkg/client/client.go request/response handling,
// reshaped so response bodies stream instead of buffering in full — the
// continuation engine (internal/gemini) needs to relay SSE bytes as they
// arrive, not after the whole response lands.
package httpwire

import (
	"fmt"
	"io"
	"net/textproto"
	"strings"

	"github.com/llmgateway/gateway/internal/bufferio"
)

// Header is a multimap whose keys are stored and looked up in canonical
// MIME form (so lookups are case-insensitive),
// matching spec.md §3's "headers may repeat; storage preserves all values".
type Header map[string][]string

// Add appends a value under the canonical form of key.
func (h Header) Add(key, value string) {
	k := textproto.CanonicalMIMEHeaderKey(key)
	h[k] = append(h[k], value)
}

// Set replaces all values under key.
func (h Header) Set(key, value string) {
	h[textproto.CanonicalMIMEHeaderKey(key)] = []string{value}
}

// Get returns the first value under key, or "".
func (h Header) Get(key string) string {
	v := h[textproto.CanonicalMIMEHeaderKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Del removes key entirely.
func (h Header) Del(key string) {
	delete(h, textproto.CanonicalMIMEHeaderKey(key))
}

// Clone returns a deep copy.
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Envelope is the request envelope from spec.md §3: method, target URL
// components, headers, and an optional body.
type Envelope struct {
	Method string
	Scheme string
	Host   string
	Port   int
	Path   string
	Query  string
	Header Header

	// Body is set when the body is a byte stream of unknown/streaming
	// length (high-level transport path). BufferedBody is set when the
	// body has been fully read into memory/disk (required by the
	// raw-socket transport, which must compute Content-Length before
	// writing — spec.md §4.B step 2).
	Body         io.Reader
	BufferedBody *bufferio.Buffer
}

// hygieneStrip matches the header-name prefixes spec.md §3/§6 requires the
// gateway to strip before forwarding: host, accept-encoding, and anything
// that looks like a CDN/edge-proxy or referer header.
var hygieneStrip = []string{"host", "accept-encoding", "cf-", "cdn-", "referer", "referrer"}

// FilterHeaders returns a copy of h with the stripped set removed. It is
// idempotent: filtering an already-filtered header set is a no-op
// (spec.md §8, "header filter idempotence").
func FilterHeaders(h Header) Header {
	out := make(Header, len(h))
	for k, v := range h {
		lower := strings.ToLower(k)
		stripped := false
		for _, prefix := range hygieneStrip {
			if strings.HasPrefix(lower, prefix) {
				stripped = true
				break
			}
		}
		if stripped {
			continue
		}
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// BufferBody reads env.Body into env.BufferedBody in full, as the
// raw-socket transport requires before it can compute Content-Length
// (spec.md §4.B step 2). No-op if already buffered.
func (e *Envelope) BufferBody(memLimit int64) error {
	if e.BufferedBody != nil {
		return nil
	}
	buf := bufferio.New(memLimit)
	if e.Body != nil {
		if _, err := io.Copy(buf, e.Body); err != nil {
			return err
		}
	}
	e.BufferedBody = buf
	return nil
}

// Clone returns an independent copy of the envelope, including a cloned
// buffered body, so two transports can each see a fresh view of the same
// logical request (spec.md §9, "the request envelope is immutable; each
// transport receives a fresh view").
func (e *Envelope) Clone() (*Envelope, error) {
	clone := &Envelope{
		Method: e.Method,
		Scheme: e.Scheme,
		Host:   e.Host,
		Port:   e.Port,
		Path:   e.Path,
		Query:  e.Query,
		Header: e.Header.Clone(),
	}
	if e.BufferedBody != nil {
		b, err := e.BufferedBody.Clone()
		if err != nil {
			return nil, err
		}
		clone.BufferedBody = b
	} else if e.Body != nil {
		return nil, fmt.Errorf("httpwire: cannot clone envelope with unbuffered streaming body; call BufferBody first")
	}
	return clone, nil
}

// URL reconstructs the target URL string (scheme://host[:port]/path?query).
func (e *Envelope) URL() string {
	var b strings.Builder
	b.WriteString(e.Scheme)
	b.WriteString("://")
	b.WriteString(e.Host)
	if e.Port != 0 && !isDefaultPort(e.Scheme, e.Port) {
		fmt.Fprintf(&b, ":%d", e.Port)
	}
	if e.Path != "" {
		if !strings.HasPrefix(e.Path, "/") {
			b.WriteByte('/')
		}
		b.WriteString(e.Path)
	} else {
		b.WriteByte('/')
	}
	if e.Query != "" {
		b.WriteByte('?')
		b.WriteString(e.Query)
	}
	return b.String()
}

func isDefaultPort(scheme string, port int) bool {
	switch strings.ToLower(scheme) {
	case "http", "ws":
		return port == 80
	case "https", "wss":
		return port == 443
	}
	return false
}

// DefaultPort returns the default port for scheme, per spec.md §4.B step 1.
func DefaultPort(scheme string) int {
	switch strings.ToLower(scheme) {
	case "https", "wss":
		return 443
	default:
		return 80
	}
}
