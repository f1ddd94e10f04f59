package httpwire

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/net/http/httpguts"
)

// BuildRequest serializes env into an HTTP/1.1 request (request line,
// filtered headers, Host and Content-Length injection) ready to write to a
// raw socket. env.BufferedBody must already be populated (spec.md §4.B
// step 2 — the raw-socket transport always buffers the body first so it
// can compute Content-Length).
func BuildRequest(env *Envelope) ([]byte, error) {
	var buf bytes.Buffer

	path := env.Path
	if path == "" {
		path = "/"
	}
	target := path
	if env.Query != "" {
		target += "?" + env.Query
	}

	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", env.Method, target)

	headers := FilterHeaders(env.Header)

	host := env.Host
	if env.Port != 0 && !isDefaultPort(env.Scheme, env.Port) {
		host = fmt.Sprintf("%s:%d", env.Host, env.Port)
	}
	fmt.Fprintf(&buf, "Host: %s\r\n", host)

	var bodyLen int64
	if env.BufferedBody != nil {
		bodyLen = env.BufferedBody.Size()
	}
	if bodyLen > 0 || env.Method == "POST" || env.Method == "PUT" || env.Method == "PATCH" {
		headers.Del("Content-Length")
		fmt.Fprintf(&buf, "Content-Length: %s\r\n", strconv.FormatInt(bodyLen, 10))
	}

	headers.Set("Accept-Encoding", "identity")

	for key, values := range headers {
		if key == "Host" {
			continue
		}
		if !httpguts.ValidHeaderFieldName(key) {
			return nil, fmt.Errorf("invalid header field name %q", key)
		}
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return nil, fmt.Errorf("invalid value for header %q", key)
			}
			fmt.Fprintf(&buf, "%s: %s\r\n", key, v)
		}
	}

	buf.WriteString("\r\n")

	if env.BufferedBody != nil && bodyLen > 0 {
		r, err := env.BufferedBody.Reader()
		if err != nil {
			return nil, err
		}
		defer r.Close()
		if _, err := io.Copy(&buf, r); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}
