package wsframe

import (
	"io"

	"github.com/llmgateway/gateway/internal/xerrors"
)

// Message is a complete, reassembled WebSocket message: the opcode of its
// first (start) frame, plus the concatenated payload of every continuation
// frame through the one with FIN set.
type Message struct {
	Opcode  Opcode
	Payload []byte
}

// Reassembler reads frames from an underlying reader and reassembles
// fragmented messages (RFC 6455 §5.4), handing control frames (ping/pong/
// close) back to the caller individually since they are never fragmented.
type Reassembler struct {
	r io.Reader
}

// NewReassembler wraps r.
func NewReassembler(r io.Reader) *Reassembler {
	return &Reassembler{r: r}
}

// Next reads frames until a complete message is assembled. Control frames
// are returned immediately as single-frame messages; data frames are
// buffered across continuation frames until FIN.
func (rs *Reassembler) Next() (Message, error) {
	var msgType Opcode = OpcodeContinuation
	var payload []byte

	for {
		f, err := ReadFrame(rs.r)
		if err != nil {
			return Message{}, err
		}

		if f.Opcode.isControl() {
			return Message{Opcode: f.Opcode, Payload: f.Payload}, nil
		}

		if f.Opcode == OpcodeContinuation {
			if msgType == OpcodeContinuation {
				return Message{}, xerrors.NewProtocolError("continuation frame with nothing to continue", nil)
			}
		} else {
			if msgType != OpcodeContinuation {
				return Message{}, xerrors.NewProtocolError("new data frame before previous message finished", nil)
			}
			msgType = f.Opcode
		}

		payload = append(payload, f.Payload...)

		if f.Fin {
			return Message{Opcode: msgType, Payload: payload}, nil
		}
		if len(payload) > MaxPayloadLen {
			return Message{}, xerrors.NewProtocolError("reassembled message exceeds gateway limit", nil)
		}
	}
}
