package selector

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/llmgateway/gateway/internal/bufferio"
	"github.com/llmgateway/gateway/internal/httpwire"
	"github.com/llmgateway/gateway/internal/route"
	"github.com/llmgateway/gateway/internal/transport/rawsocket"
	"github.com/llmgateway/gateway/internal/xerrors"
)

type fakeRaw struct {
	err  error
	resp *httpwire.Response
}

func (f *fakeRaw) RoundTrip(ctx context.Context, env *httpwire.Envelope) (*httpwire.Response, *rawsocket.ConnectionMetadata, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.resp, &rawsocket.ConnectionMetadata{}, nil
}

type fakeHighLevel struct {
	called bool
	resp   *httpwire.Response
	err    error
}

func (f *fakeHighLevel) RoundTrip(ctx context.Context, env *httpwire.Envelope) (*httpwire.Response, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newEnv(t *testing.T) *httpwire.Envelope {
	t.Helper()
	env := &httpwire.Envelope{Method: "GET", Scheme: "https", Host: "example.com", Header: httpwire.Header{}}
	env.BufferedBody = bufferio.NewWithData([]byte("payload"))
	return env
}

func TestSelectorUsesRawSocketWhenSuccessful(t *testing.T) {
	raw := &fakeRaw{resp: &httpwire.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(""))}}
	high := &fakeHighLevel{}
	s := &Selector{Raw: raw, HighLevel: high}

	res, err := s.Do(context.Background(), newEnv(t), route.Route{})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if res.UsedFallback {
		t.Fatalf("expected raw-socket path, got fallback")
	}
	if high.called {
		t.Fatalf("expected high-level transport not to be called")
	}
}

func TestSelectorFallsBackOnRetryableError(t *testing.T) {
	raw := &fakeRaw{err: errors.New("connection reset by peer")}
	high := &fakeHighLevel{resp: &httpwire.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(""))}}
	s := &Selector{Raw: raw, HighLevel: high}

	res, err := s.Do(context.Background(), newEnv(t), route.Route{})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !res.UsedFallback || !high.called {
		t.Fatalf("expected fallback to high-level transport")
	}
}

func TestSelectorDoesNotFallBackOnNonRetryableError(t *testing.T) {
	raw := &fakeRaw{err: errors.New("malformed response headers")}
	high := &fakeHighLevel{}
	s := &Selector{Raw: raw, HighLevel: high}

	_, err := s.Do(context.Background(), newEnv(t), route.Route{})
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
	if high.called {
		t.Fatalf("expected no fallback for a non-retryable protocol error")
	}
}

func TestSelectorPrefersHighLevelWhenRoutePrefers(t *testing.T) {
	raw := &fakeRaw{resp: &httpwire.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(""))}}
	high := &fakeHighLevel{resp: &httpwire.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(""))}}
	s := &Selector{Raw: raw, HighLevel: high}

	res, err := s.Do(context.Background(), newEnv(t), route.Route{PreferHighLevel: true})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !res.UsedFallback || !high.called {
		t.Fatalf("expected high-level path to be used directly")
	}
}

func TestSelectorBadGatewayWhenBothFail(t *testing.T) {
	raw := &fakeRaw{err: errors.New("connection reset by peer")}
	high := &fakeHighLevel{err: errors.New("dial tcp: timeout")}
	s := &Selector{Raw: raw, HighLevel: high}

	_, err := s.Do(context.Background(), newEnv(t), route.Route{})
	if err == nil {
		t.Fatalf("expected bad gateway error")
	}

	var gwErr *xerrors.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *xerrors.Error, got %T", err)
	}
	if len(gwErr.Failures) != 2 {
		t.Fatalf("Failures = %+v, want 2 records", gwErr.Failures)
	}
	if gwErr.Failures[0].Path != "raw-socket" || !strings.Contains(gwErr.Failures[0].Err.Error(), "connection reset") {
		t.Fatalf("raw-socket failure record = %+v", gwErr.Failures[0])
	}
	if gwErr.Failures[1].Path != "high-level" || !strings.Contains(gwErr.Failures[1].Err.Error(), "dial tcp") {
		t.Fatalf("high-level failure record = %+v", gwErr.Failures[1])
	}
	if !strings.Contains(err.Error(), "connection reset") || !strings.Contains(err.Error(), "dial tcp") {
		t.Fatalf("Error() should surface both failure messages, got %q", err.Error())
	}
}
