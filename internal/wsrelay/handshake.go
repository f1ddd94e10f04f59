package wsrelay

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"strings"

	"github.com/llmgateway/gateway/internal/httpwire"
	"github.com/llmgateway/gateway/internal/xerrors"
)

// DialUpstream performs the client-role WebSocket handshake described in
// spec.md §4.E steps 1–2 over conn: a synthesized HTTP Upgrade request
// with a random Sec-WebSocket-Key, then a check that the response is
// exactly 101 Switching Protocols. It returns a *bufio.Reader that wraps
// conn — callers MUST read subsequent frames through this reader rather
// than conn directly, since the handshake's own buffered reads may already
// hold the first bytes the upstream sent after upgrading.
func DialUpstream(conn net.Conn, env *httpwire.Envelope) (*bufio.Reader, error) {
	key, err := newSecWebSocketKey()
	if err != nil {
		return nil, err
	}

	headers := httpwire.FilterHeaders(env.Header)
	headers.Set("Upgrade", "websocket")
	headers.Set("Connection", "Upgrade")
	headers.Set("Sec-WebSocket-Key", key)
	headers.Set("Sec-WebSocket-Version", "13")
	env.Header = headers

	reqBytes, err := httpwire.BuildRequest(env)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(reqBytes); err != nil {
		return nil, xerrors.NewIOError("writing WebSocket upgrade request", err)
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		return nil, xerrors.NewProtocolError("reading upgrade response status line", err)
	}
	statusLine = strings.TrimRight(statusLine, "\r\n")

	if !strings.Contains(statusLine, "101") || !strings.Contains(statusLine, "Switching Protocols") {
		return nil, xerrors.NewProtocolError(fmt.Sprintf("upstream refused WebSocket upgrade: %q", statusLine), nil)
	}

	// Drain the remaining header lines; their content isn't needed once the
	// upgrade is confirmed.
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, xerrors.NewProtocolError("reading upgrade response headers", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}

	return reader, nil
}

func newSecWebSocketKey() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", xerrors.NewIOError("generating Sec-WebSocket-Key", err)
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}
