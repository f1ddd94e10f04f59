// Package tlsprofile supplies the TLS version/cipher defaults the
// raw-socket transport dials with. It is a trimmed descendant of the
// teacher library's pkg/tlsconfig: the gateway only ever dials outbound to
// modern LLM APIs, so the legacy SSL3.0/TLS1.0 compatibility profiles the
// teacher exposed for arbitrary target servers are not carried forward
// (DESIGN.md).
package tlsprofile

import "crypto/tls"

// Secure is the gateway's default outbound TLS profile: TLS 1.2 minimum,
// ECDHE+AEAD cipher suites only.
var Secure = struct {
	MinVersion   uint16
	MaxVersion   uint16
	CipherSuites []uint16
}{
	MinVersion: tls.VersionTLS12,
	MaxVersion: tls.VersionTLS13,
	CipherSuites: []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	},
}

// VersionName returns a human-readable name for a TLS version constant,
// used in connection-metadata logging.
func VersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "unknown"
	}
}

// Config builds a *tls.Config for dialing host, honouring insecureSkipVerify
// only when explicitly requested (never the default).
func Config(host string, insecureSkipVerify bool) *tls.Config {
	return &tls.Config{
		ServerName:         host,
		MinVersion:         Secure.MinVersion,
		MaxVersion:         Secure.MaxVersion,
		CipherSuites:       Secure.CipherSuites,
		InsecureSkipVerify: insecureSkipVerify,
	}
}
