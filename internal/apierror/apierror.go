// Package apierror builds the gateway's two standardized error shapes
// from spec.md §6–§7: the top-level JSON error envelope returned on
// router/transport failures, and the Google-style SSE error event the
// continuation engine emits mid-stream once the downstream status line
// has already committed.
package apierror

import (
	"encoding/json"
	"fmt"
	"time"
)

// Body is the top-level error response schema (spec.md §6).
type Body struct {
	Error Detail `json:"error"`
}

// Detail is the nested `.error` object.
type Detail struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Details   any    `json:"details,omitempty"`
}

// New builds a Body for the given HTTP status and message, stamping the
// current time in ISO-8601.
func New(code int, message string, details any) Body {
	return Body{Error: Detail{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Details:   details,
	}}
}

// GoogleStatus maps an HTTP status to the Google-style status string used
// in both the JSON envelope (for Gemini upstream errors) and the SSE error
// event (spec.md §6).
func GoogleStatus(code int) string {
	switch code {
	case 400:
		return "INVALID_ARGUMENT"
	case 401:
		return "UNAUTHENTICATED"
	case 403:
		return "PERMISSION_DENIED"
	case 404:
		return "NOT_FOUND"
	case 429:
		return "RESOURCE_EXHAUSTED"
	case 500:
		return "INTERNAL"
	case 503:
		return "UNAVAILABLE"
	case 504:
		return "DEADLINE_EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

// GoogleBody is the Gemini-flavored rewrite of the error envelope: the same
// shape as Body, but with a `status` field alongside `code`, matching what
// the genuine Gemini API returns on a non-2xx initial response (spec.md §7:
// "For Gemini: rewritten to Google-style JSON").
type GoogleBody struct {
	Error GoogleDetail `json:"error"`
}

// GoogleDetail is the nested `.error` object for GoogleBody.
type GoogleDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGoogleBody builds a GoogleBody for code/message.
func NewGoogleBody(code int, message string) GoogleBody {
	return GoogleBody{Error: GoogleDetail{Code: code, Message: message, Status: GoogleStatus(code)}}
}

// SSEEvent renders the standardized mid-stream error event from spec.md
// §6: an `event: error` line, a `data:` line carrying the JSON body, and
// the blank-line SSE terminator.
func SSEEvent(code int, message string, details any) string {
	payload := sseErrorPayload{
		Error: sseErrorDetail{
			Code:    code,
			Status:  GoogleStatus(code),
			Message: message,
			Details: details,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Marshaling a struct of strings/ints/any never fails in practice;
		// degrade to a minimal hand-built payload rather than panic.
		data = []byte(fmt.Sprintf(`{"error":{"code":%d,"status":%q,"message":%q}}`, code, GoogleStatus(code), message))
	}
	return fmt.Sprintf("event: error\ndata: %s\n\n", data)
}

type sseErrorPayload struct {
	Error sseErrorDetail `json:"error"`
}

type sseErrorDetail struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
