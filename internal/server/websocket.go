package server

import (
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/llmgateway/gateway/internal/httpwire"
	"github.com/llmgateway/gateway/internal/tlsprofile"
	"github.com/llmgateway/gateway/internal/wsrelay"
)

// websocketGUID is the RFC 6455 magic string used to compute
// Sec-WebSocket-Accept from the client's Sec-WebSocket-Key.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const wsDialTimeout = 10 * time.Second

// serveWebSocket implements spec.md §4.E: dial and handshake the upstream
// first (so a dial failure can still produce a normal HTTP error response),
// then hijack the downstream connection and hand both ends to wsrelay.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, tgt resolved, event zerolog.Logger) {
	env := &httpwire.Envelope{
		Method: http.MethodGet,
		Scheme: tgt.Scheme,
		Host:   tgt.Host,
		Port:   tgt.Port,
		Path:   tgt.Path,
		Query:  r.URL.RawQuery,
		Header: headerFromHTTP(r.Header),
	}

	port := env.Port
	if port == 0 {
		port = httpwire.DefaultPort(env.Scheme)
	}

	dialer := &net.Dialer{Timeout: wsDialTimeout}
	upstreamConn, err := dialer.DialContext(r.Context(), "tcp", net.JoinHostPort(env.Host, fmt.Sprint(port)))
	if err != nil {
		event.Error().Err(err).Msg("dialing WebSocket upstream failed")
		s.writeError(w, http.StatusBadGateway, "failed to reach upstream")
		return
	}

	if env.Scheme == "wss" || env.Scheme == "https" {
		tlsConn := tls.Client(upstreamConn, tlsprofile.Config(env.Host, false))
		if err := tlsConn.HandshakeContext(r.Context()); err != nil {
			upstreamConn.Close()
			event.Error().Err(err).Msg("TLS handshake with WebSocket upstream failed")
			s.writeError(w, http.StatusBadGateway, "failed to establish TLS with upstream")
			return
		}
		upstreamConn = tlsConn
	}

	upstreamReader, err := wsrelay.DialUpstream(upstreamConn, env)
	if err != nil {
		upstreamConn.Close()
		event.Error().Err(err).Msg("WebSocket upgrade handshake with upstream failed")
		s.writeError(w, http.StatusBadGateway, "upstream refused WebSocket upgrade")
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		upstreamConn.Close()
		event.Error().Msg("response writer does not support hijacking")
		s.writeError(w, http.StatusInternalServerError, "WebSocket relay unsupported")
		return
	}
	downstreamConn, _, err := hijacker.Hijack()
	if err != nil {
		upstreamConn.Close()
		event.Error().Err(err).Msg("hijacking downstream connection failed")
		return
	}

	accept := computeAcceptKey(r.Header.Get("Sec-WebSocket-Key"))
	response := fmt.Sprintf("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n", accept)
	if _, err := downstreamConn.Write([]byte(response)); err != nil {
		downstreamConn.Close()
		upstreamConn.Close()
		event.Error().Err(err).Msg("writing downstream WebSocket upgrade response failed")
		return
	}

	event.Info().Msg("WebSocket relay established")
	session := &wsrelay.Session{
		Downstream:     downstreamConn,
		Upstream:       upstreamConn,
		UpstreamReader: upstreamReader,
	}
	if err := session.Run(r.Context()); err != nil {
		event.Warn().Err(err).Msg("WebSocket relay ended with error")
		return
	}
	event.Info().Msg("WebSocket relay closed")
}

func computeAcceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + websocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}
