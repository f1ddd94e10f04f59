package wsrelay

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/llmgateway/gateway/internal/httpwire"
)

type fakeConn struct {
	net.Conn
	writeBuf bytes.Buffer
	readBuf  *strings.Reader
}

func (f *fakeConn) Write(p []byte) (int, error) { return f.writeBuf.Write(p) }
func (f *fakeConn) Read(p []byte) (int, error)  { return f.readBuf.Read(p) }
func (f *fakeConn) Close() error                { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }

func TestDialUpstreamAcceptsSwitchingProtocols(t *testing.T) {
	conn := &fakeConn{readBuf: strings.NewReader(
		"HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\nleftover",
	)}
	env := &httpwire.Envelope{Method: "GET", Scheme: "https", Host: "api.example.com", Path: "/ws", Header: httpwire.Header{}}

	reader, err := DialUpstream(conn, env)
	if err != nil {
		t.Fatalf("DialUpstream: %v", err)
	}

	rest := make([]byte, 8)
	n, _ := reader.Read(rest)
	if string(rest[:n]) != "leftover" {
		t.Fatalf("expected buffered post-handshake bytes preserved, got %q", rest[:n])
	}

	sent := conn.writeBuf.String()
	if !strings.Contains(sent, "Sec-WebSocket-Version: 13") {
		t.Fatalf("request missing Sec-WebSocket-Version: %q", sent)
	}
	if !strings.Contains(sent, "Sec-WebSocket-Key:") {
		t.Fatalf("request missing Sec-WebSocket-Key: %q", sent)
	}
}

func TestDialUpstreamRejectsNonUpgradeResponse(t *testing.T) {
	conn := &fakeConn{readBuf: strings.NewReader("HTTP/1.1 400 Bad Request\r\n\r\n")}
	env := &httpwire.Envelope{Method: "GET", Scheme: "https", Host: "api.example.com", Path: "/ws", Header: httpwire.Header{}}

	if _, err := DialUpstream(conn, env); err == nil {
		t.Fatalf("expected error for non-101 response")
	}
}
