package httpwire

import (
	"bufio"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/llmgateway/gateway/internal/xerrors"
)

// chunkedReader decodes an HTTP/1.1 chunked-transfer-encoded body as an
// io.Reader, so callers can stream decoded bytes out instead of waiting for
// the whole body — the continuation engine and SSE relay both need this
// (spec.md §4.A, §4.F).
type chunkedReader struct {
	tp        *textproto.Reader
	remaining int64 // bytes left in the current chunk
	done      bool
	trailer   Header
}

func newChunkedReader(r *bufio.Reader) *chunkedReader {
	return &chunkedReader{tp: textproto.NewReader(r)}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}

	if c.remaining == 0 {
		line, err := c.tp.ReadLine()
		if err != nil {
			return 0, xerrors.NewProtocolError("reading chunk size", err)
		}
		size, err := strconv.ParseInt(strings.TrimSpace(strings.Split(line, ";")[0]), 16, 64)
		if err != nil {
			return 0, xerrors.NewProtocolError("invalid chunk size", err)
		}
		if size == 0 {
			if err := c.readTrailer(); err != nil {
				return 0, err
			}
			c.done = true
			return 0, io.EOF
		}
		c.remaining = size
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}

	n, err := c.tp.R.Read(p)
	c.remaining -= int64(n)
	if err != nil && err != io.EOF {
		return n, xerrors.NewIOError("reading chunk body", err)
	}

	if c.remaining == 0 {
		crlf := make([]byte, 2)
		if _, err := io.ReadFull(c.tp.R, crlf); err != nil {
			return n, xerrors.NewIOError("reading chunk terminator", err)
		}
	}

	return n, nil
}

func (c *chunkedReader) readTrailer() error {
	trailer := make(Header)
	for {
		line, err := c.tp.ReadLine()
		if err != nil {
			return xerrors.NewProtocolError("reading chunk trailer", err)
		}
		if line == "" {
			break
		}
		if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
			key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(parts[0]))
			value := strings.TrimSpace(parts[1])
			trailer.Add(key, value)
		}
	}
	c.trailer = trailer
	return nil
}
