package httpwire

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/llmgateway/gateway/internal/timing"
	"github.com/llmgateway/gateway/internal/xerrors"
)

// maxContentLength guards against a malicious or broken Content-Length
// header asking us to read an unbounded amount of data.
const maxContentLength = 1024 * 1024 * 1024 * 1024 // 1TB

// Response is a parsed HTTP/1.x response whose Body streams lazily instead
// of buffering in full, so SSE/chunked payloads can be relayed byte-by-byte
// as they arrive (spec.md §4.A, §4.F — this is the one place this package
// deliberately departs from the teacher library's buffer-then-return
// Response, because the gateway must pass upstream bytes through live).
type Response struct {
	HTTPVersion string
	StatusCode  int
	Reason      string
	Header      Header
	Body        io.ReadCloser
	Timings     timing.Metrics
}

// IsChunked reports whether the response uses chunked transfer-encoding.
func (r *Response) IsChunked() bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Transfer-Encoding")), "chunked")
}

// bodyReadCloser wraps an io.Reader that has no Close of its own with the
// underlying connection's Close, so callers always have one handle to
// release the socket once done consuming the body.
type bodyReadCloser struct {
	io.Reader
	closer io.Closer
}

func (b bodyReadCloser) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// ReadResponse parses an HTTP/1.x response from conn: the status line,
// headers, and a lazily-decoded body reader selected per RFC 9110 §6.4.1 /
// the Transfer-Encoding and Content-Length headers. timer receives the
// time-to-first-byte mark. conn is retained so Body.Close can release it.
func ReadResponse(conn net.Conn, method string, timer *timing.Timer) (*Response, error) {
	reader := bufio.NewReader(conn)

	if timer != nil {
		timer.StartTTFB()
	}
	line, err := readLine(reader)
	if timer != nil {
		timer.EndTTFB()
	}
	if err != nil {
		return nil, xerrors.NewProtocolError("reading status line", err)
	}

	status, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}

	headers, err := readHeaders(reader)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		HTTPVersion: status.HTTPVersion,
		StatusCode:  status.StatusCode,
		Reason:      status.Reason,
		Header:      headers,
	}

	body, err := selectBodyReader(reader, conn, method, resp)
	if err != nil {
		return nil, err
	}
	resp.Body = body

	return resp, nil
}

// selectBodyReader implements the RFC 9110 §6.4.1 no-body cases (HEAD,
// 1xx, 204, 304), then dispatches to chunked, fixed-length, or
// read-until-close decoding.
func selectBodyReader(reader *bufio.Reader, conn net.Conn, method string, resp *Response) (io.ReadCloser, error) {
	if method == "HEAD" ||
		(resp.StatusCode >= 100 && resp.StatusCode < 200) ||
		resp.StatusCode == 204 ||
		resp.StatusCode == 304 {
		if reader.Buffered() == 0 {
			return io.NopCloser(strings.NewReader("")), nil
		}
		// Server sent a body despite RFC 9110 saying not to; fall through
		// and decode it rather than silently dropping it.
	}

	transferEncoding := resp.Header.Get("Transfer-Encoding")
	contentLength := resp.Header.Get("Content-Length")

	switch {
	case strings.Contains(strings.ToLower(transferEncoding), "chunked"):
		return bodyReadCloser{Reader: newChunkedReader(reader), closer: conn}, nil
	case contentLength != "":
		length, err := strconv.ParseInt(strings.TrimSpace(contentLength), 10, 64)
		if err != nil {
			return nil, xerrors.NewProtocolError("invalid content-length", err)
		}
		if length < 0 {
			return nil, xerrors.NewProtocolError("negative content-length not allowed", nil)
		}
		if length > maxContentLength {
			return nil, xerrors.NewProtocolError("content-length too large", nil)
		}
		return bodyReadCloser{Reader: io.LimitReader(reader, length), closer: conn}, nil
	default:
		return bodyReadCloser{Reader: reader, closer: conn}, nil
	}
}

// ReadTimeout applies a read deadline to conn before parsing begins. Callers
// that need a fresh per-read deadline (e.g. a WebSocket relay's idle
// timeout) should set it on conn directly instead.
func ReadTimeout(conn net.Conn, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if err := conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return xerrors.NewIOError("setting read deadline", err)
	}
	return nil
}
