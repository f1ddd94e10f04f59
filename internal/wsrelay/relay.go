// Package wsrelay implements the WebSocket relay from spec.md §4.E: a
// handshake against the upstream followed by two cooperative frame pumps
// between the downstream peer and the upstream socket. Grounded on the
// primary teacher's layering (a thin protocol package plus a small
// orchestration layer) and on the timpani example's frame-dispatch rules;
// the pump coordination itself is new, since the teacher library has no
// bidirectional-relay concept — it only speaks request/response.
package wsrelay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/llmgateway/gateway/internal/wsframe"
	"github.com/llmgateway/gateway/internal/xerrors"
)

// IdleTimeout is spec.md §4.E's 5-minute idle timeout, reset whenever a
// frame is sent or received on either leg.
const IdleTimeout = 5 * time.Minute

// Session owns one relay between a downstream peer and an upstream socket.
// Both ends are fully owned by the session: Run releases them exactly once
// on return, regardless of which side failed first.
type Session struct {
	Downstream net.Conn
	Upstream   net.Conn
	// UpstreamReader is the reader frames must be read from (see
	// DialUpstream — it may hold bytes buffered during the handshake).
	UpstreamReader io.Reader

	idle *idleTimer
}

// Run launches the two pumps and blocks until one leg closes or errors,
// then tears down both connections. It returns the terminal error, or nil
// on an orderly close.
func (s *Session) Run(ctx context.Context) error {
	s.idle = newIdleTimer(IdleTimeout)
	defer s.idle.stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing both ends the moment any leg finishes is what actually
	// unblocks the other pump's in-flight read — cancelling ctx alone does
	// nothing to a goroutine blocked in conn.Read.
	go func() {
		<-ctx.Done()
		s.Downstream.Close()
		s.Upstream.Close()
	}()

	// Set when a pump ends on an orderly close; the other pump's read error
	// on its torn-down connection is then not the session's terminal error.
	var cleanExit atomic.Bool

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		err := pumpClientToUpstream(s.Downstream, s.Upstream, s.idle)
		if err == nil {
			cleanExit.Store(true)
		}
		return err
	})
	g.Go(func() error {
		defer cancel()
		err := pumpUpstreamToClient(s.UpstreamReader, s.Downstream, s.idle)
		if err == nil {
			cleanExit.Store(true)
		}
		return err
	})
	g.Go(func() error {
		defer cancel()
		select {
		case <-ctx.Done():
			return nil
		case <-s.idle.expired():
			return xerrors.NewTimeoutError("WebSocket relay idle timeout", nil)
		}
	})

	err := g.Wait()

	if err == context.Canceled || cleanExit.Load() {
		return nil
	}
	return err
}

// pumpClientToUpstream is the client→upstream pump (spec.md §4.E step 4):
// every downstream message becomes one masked text frame toward upstream.
func pumpClientToUpstream(downstream io.Reader, upstream io.Writer, idle *idleTimer) error {
	rs := wsframe.NewReassembler(downstream)
	for {
		msg, err := rs.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		idle.reset()

		switch msg.Opcode {
		case wsframe.OpcodeClose:
			wsframe.WriteFrame(upstream, wsframe.OpcodeClose, msg.Payload)
			return nil
		case wsframe.OpcodePing:
			if err := wsframe.WriteFrame(upstream, wsframe.OpcodePong, msg.Payload); err != nil {
				return err
			}
		case wsframe.OpcodePong:
			// idle timer already reset above.
		case wsframe.OpcodeText, wsframe.OpcodeBinary:
			if err := wsframe.WriteFrame(upstream, wsframe.OpcodeText, msg.Payload); err != nil {
				return err
			}
		default:
			// Not reached: ReadFrame rejects unknown opcodes with a protocol
			// error, which ends this pump. Unknown opcodes are not skipped
			// and not logged.
		}
	}
}

// pumpUpstreamToClient is the upstream→client pump (spec.md §4.E step 4):
// frames dispatched by opcode, written back to the downstream peer
// unmasked (server role).
func pumpUpstreamToClient(upstream io.Reader, downstream io.Writer, idle *idleTimer) error {
	rs := wsframe.NewReassembler(upstream)
	for {
		msg, err := rs.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		idle.reset()

		switch msg.Opcode {
		case wsframe.OpcodeClose:
			wsframe.WriteServerFrame(downstream, wsframe.OpcodeClose, closePayload(1000))
			return nil
		case wsframe.OpcodePing:
			if err := wsframe.WriteServerFrame(downstream, wsframe.OpcodePong, msg.Payload); err != nil {
				return err
			}
		case wsframe.OpcodePong:
			// idle timer already reset above.
		case wsframe.OpcodeText, wsframe.OpcodeBinary:
			if err := wsframe.WriteServerFrame(downstream, msg.Opcode, msg.Payload); err != nil {
				return err
			}
		default:
			// Not reached: ReadFrame rejects unknown opcodes with a protocol
			// error, which ends this pump and the session.
		}
	}
}

func closePayload(code uint16) []byte {
	return []byte{byte(code >> 8), byte(code)}
}
