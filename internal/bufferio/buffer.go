// Package bufferio provides memory-efficient body storage with disk
// spilling, used when the transport layer must buffer a request or
// response body in full (the raw-socket path always does, to compute
// Content-Length; see spec.md §4.B).
package bufferio

import (
	"bytes"
	"io"
	"os"

	"github.com/llmgateway/gateway/internal/xerrors"
)

// DefaultMemoryLimit is the default threshold before spilling to disk.
const DefaultMemoryLimit = 4 * 1024 * 1024 // 4MB

// Buffer stores one request or response body, either in memory or spooled
// to a temporary file once it exceeds a configured threshold. A Buffer
// belongs to a single envelope for its whole lifecycle: it is written once
// while the body is read off the wire, then read (possibly via Clone, for
// the selector's raw-socket/high-level fallback) from the same goroutine
// that built it. Nothing in the gateway hands a Buffer across goroutines
// concurrently, so unlike a general-purpose buffer this one carries no
// locking.
type Buffer struct {
	buf    bytes.Buffer
	file   *os.File
	path   string
	size   int64
	limit  int64
	closed bool
}

// New creates a new Buffer with the provided memory limit.
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Buffer{limit: limit}
}

// NewWithData creates a buffer pre-populated with data, useful for cloning
// a request envelope's body before handing it to a transport (spec.md §9,
// "body re-consumption for fallback").
func NewWithData(data []byte) *Buffer {
	b := &Buffer{limit: DefaultMemoryLimit, size: int64(len(data))}
	b.buf.Write(data)
	return b
}

// Write stores p, spilling to disk once the buffer grows past its limit.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.closed {
		return 0, xerrors.NewIOError("writing to closed buffer", nil)
	}

	b.size += int64(len(p))

	if b.file == nil && int64(b.buf.Len()+len(p)) <= b.limit {
		return b.buf.Write(p)
	}

	if b.file == nil {
		tmp, err := os.CreateTemp("", "gateway-body-*.tmp")
		if err != nil {
			return 0, xerrors.NewIOError("creating spill file", err)
		}
		b.file = tmp
		b.path = tmp.Name()

		if b.buf.Len() > 0 {
			if _, err := tmp.Write(b.buf.Bytes()); err != nil {
				b.Close()
				return 0, xerrors.NewIOError("writing spill file", err)
			}
		}
		b.buf.Reset()
	}

	n, err := b.file.Write(p)
	if err != nil {
		return n, xerrors.NewIOError("writing spill file", err)
	}
	return n, nil
}

// Bytes returns the in-memory data. Returns nil once the buffer has spilled.
func (b *Buffer) Bytes() []byte {
	if b.file != nil {
		return nil
	}
	return b.buf.Bytes()
}

// Size returns the total number of bytes written.
func (b *Buffer) Size() int64 {
	return b.size
}

// IsSpilled reports whether the buffer has spilled to disk.
func (b *Buffer) IsSpilled() bool {
	return b.file != nil
}

// Reader returns a fresh reader over the stored data.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	if b.closed {
		return nil, xerrors.NewIOError("reading closed buffer", nil)
	}

	if b.file != nil {
		if err := b.file.Sync(); err != nil {
			return nil, xerrors.NewIOError("syncing spill file", err)
		}
		f, err := os.Open(b.path)
		if err != nil {
			return nil, xerrors.NewIOError("opening spill file", err)
		}
		return f, nil
	}

	return io.NopCloser(bytes.NewReader(b.buf.Bytes())), nil
}

// ReadAll drains a fresh Reader into memory and closes it. Used by callers
// that need the whole body at once (the continuation engine's
// BuildContinuationBody, the raw-socket fallback clone) rather than
// streaming it.
func (b *Buffer) ReadAll() ([]byte, error) {
	r, err := b.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close releases the underlying temp file, if any. Safe to call more than
// once.
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if b.file != nil {
		err := b.file.Close()
		if removeErr := os.Remove(b.path); removeErr != nil && err == nil {
			err = xerrors.NewIOError("removing spill file", removeErr)
		}
		b.file = nil
		b.path = ""
		if err != nil {
			return xerrors.NewIOError("closing spill file", err)
		}
	}
	return nil
}

// Clone returns a new Buffer holding an independent copy of the data,
// leaving the receiver untouched and still readable — used by the transport
// selector to give the raw-socket and high-level paths separate views of
// the same request body (spec.md §9).
func (b *Buffer) Clone() (*Buffer, error) {
	data, err := b.ReadAll()
	if err != nil {
		return nil, xerrors.NewIOError("cloning buffer", err)
	}
	return NewWithData(data), nil
}
