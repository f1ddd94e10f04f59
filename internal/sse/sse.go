// Package sse implements the Server-Sent-Events line iterator from
// spec.md §4.F: chunk-boundary-tolerant splitting of an upstream byte
// stream into SSE lines (data:/event:/id:/comment), used as the scanning
// primitive under internal/gemini's continuation engine. Plain
// pass-through responses are copied as bytes and do not go through it.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one parsed SSE event: zero or more data lines joined with "\n"
// per the SSE spec, plus an optional event name.
type Event struct {
	Name string
	Data string
	// Raw is the event's lines as received (including the blank-line
	// terminator), each re-terminated with "\n": a "\r\n" terminator in the
	// input comes back as "\n".
	Raw string
}

// Reader scans an upstream byte stream for SSE events, tolerating chunk
// boundaries that split a line or event across multiple underlying reads
// (the http.Transport/chunked decoder may hand bytes over in arbitrary
// pieces).
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 4096)}
}

// ReadLine returns the next line with its terminator stripped, tolerating
// both "\n" and "\r\n". At EOF, a final unterminated non-empty line is
// still returned once, with err == io.EOF on the call after.
func (r *Reader) ReadLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Next reads and assembles the next SSE event (one or more field lines
// terminated by a blank line). Returns io.EOF when the stream ends cleanly
// between events.
func (r *Reader) Next() (Event, error) {
	var ev Event
	var dataLines []string
	var raw strings.Builder
	sawAnyLine := false

	for {
		line, err := r.ReadLine()
		if err != nil {
			if err == io.EOF {
				if !sawAnyLine {
					return Event{}, io.EOF
				}
				break
			}
			return Event{}, err
		}

		sawAnyLine = true
		raw.WriteString(line)
		raw.WriteString("\n")

		if line == "" {
			break
		}
		if strings.HasPrefix(line, ":") {
			continue // comment line, per the SSE spec
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			ev.Name = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}

	ev.Data = strings.Join(dataLines, "\n")
	ev.Raw = raw.String()
	return ev, nil
}
