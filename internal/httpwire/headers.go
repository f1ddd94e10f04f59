package httpwire

import (
	"bufio"
	"net/textproto"
	"strings"

	"github.com/llmgateway/gateway/internal/xerrors"
)

// readHeaders reads and parses header lines up to the blank line that ends
// the header block, folding RFC 7230 §3.2.4 continuation lines into the
// previous header's value.
func readHeaders(reader *bufio.Reader) (Header, error) {
	headers := make(Header)
	total := 0
	var lastKey string

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, xerrors.NewProtocolError("reading headers", err)
		}

		total += len(line)
		if total > maxHeaderBytes {
			return nil, xerrors.NewProtocolError("headers exceed maximum size", nil)
		}

		if line == "\r\n" || line == "\n" {
			break
		}

		trimmed := strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(trimmed, " ") || strings.HasPrefix(trimmed, "\t") {
			if lastKey == "" {
				continue
			}
			idx := len(headers[lastKey]) - 1
			headers[lastKey][idx] = headers[lastKey][idx] + " " + strings.TrimSpace(trimmed)
			continue
		}

		parts := strings.SplitN(trimmed, ":", 2)
		if len(parts) != 2 {
			continue
		}

		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		headers[key] = append(headers[key], value)
		lastKey = key
	}

	return headers, nil
}
