package httpwire

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/llmgateway/gateway/internal/xerrors"
)

const maxHeaderBytes = 64 * 1024

// StatusLine holds the parsed first line of an HTTP/1.x response.
type StatusLine struct {
	HTTPVersion string
	StatusCode  int
	Reason      string
}

// readLine reads one CRLF- or LF-terminated line from r, with the
// terminator stripped.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) >= 2 && line[len(line)-2:] == "\r\n" {
		return line[:len(line)-2], nil
	}
	return strings.TrimRight(line, "\n"), nil
}

// parseStatusLine parses an HTTP/1.x response status line, e.g.
// "HTTP/1.1 200 OK".
func parseStatusLine(line string) (StatusLine, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return StatusLine{}, xerrors.NewProtocolError("invalid status line", nil)
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return StatusLine{}, xerrors.NewProtocolError("invalid status code", err)
	}

	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	return StatusLine{
		HTTPVersion: parts[0],
		StatusCode:  code,
		Reason:      reason,
	}, nil
}
