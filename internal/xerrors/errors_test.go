package xerrors

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestErrorFormatting(t *testing.T) {
	e := NewConnectionError("api.example.com", 443, errors.New("refused"))
	want := "[connection] dial api.example.com:443: failed to connect to api.example.com:443: refused"
	if got := e.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestErrorIs(t *testing.T) {
	a := NewTimeoutError("read", time.Second)
	b := NewTimeoutError("write", time.Minute)
	if !errors.Is(a, b) {
		t.Fatalf("expected errors of the same Type to match via Is")
	}
	c := NewProtocolError("bad status line", nil)
	if errors.Is(a, c) {
		t.Fatalf("expected errors of different Type not to match")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"connection error", NewConnectionError("h", 1, nil), true},
		{"tls error", NewTLSError("h", 1, nil), false},
		{"validation error", NewValidationError("bad"), false},
		{"raw substring reset", errors.New("read tcp: connection reset by peer"), true},
		{"raw substring unrelated", errors.New("permission denied"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestBadGatewayErrorCarriesBothFailures(t *testing.T) {
	e := NewBadGatewayError("both raw-socket and fallback transports failed",
		FailureRecord{Path: "raw-socket", Duration: 5 * time.Millisecond, Err: errors.New("connection reset")},
		FailureRecord{Path: "high-level", Duration: 30 * time.Millisecond, Err: errors.New("dial tcp: timeout")},
	)

	msg := e.Error()
	if !strings.Contains(msg, "connection reset") {
		t.Fatalf("Error() missing raw-socket cause: %q", msg)
	}
	if !strings.Contains(msg, "dial tcp: timeout") {
		t.Fatalf("Error() missing high-level cause: %q", msg)
	}
	if len(e.Failures) != 2 {
		t.Fatalf("Failures = %+v, want 2 records", e.Failures)
	}
}

func TestGetErrorType(t *testing.T) {
	e := NewIOError("reading body", nil)
	if got := GetErrorType(e); got != ErrorTypeIO {
		t.Fatalf("GetErrorType() = %q, want %q", got, ErrorTypeIO)
	}
	if got := GetErrorType(errors.New("plain")); got != "" {
		t.Fatalf("GetErrorType() on plain error = %q, want empty", got)
	}
}
