// Package gemini implements the continuation engine from spec.md §4.G:
// a state machine that detects premature termination of a Gemini
// streaming response and transparently re-issues continuation requests so
// the downstream client sees one uninterrupted SSE stream. Grounded on
// the general shape of other_examples/effbc5fe_..._google.go (bufio-style
// SSE scanning, JSON decode per chunk, channel-free synchronous loop) —
// its retry/continuation state machine is new, since that example has no
// continuation concept at all.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/llmgateway/gateway/internal/apierror"
	"github.com/llmgateway/gateway/internal/httpwire"
	"github.com/llmgateway/gateway/internal/sse"
)

// Settings is the engine's immutable per-process configuration, built once
// at startup from the environment (spec.md §9's "global mutable config"
// note: no package-global mutable table).
type Settings struct {
	MaxConsecutiveRetries int
	MaxNetworkRetries     int
	RetryDelay            time.Duration
	// NetworkBackoffUnit and NetworkBackoffCap implement the back-off
	// formula min(network_retries*NetworkBackoffUnit, NetworkBackoffCap);
	// spec.md §4.G's defaults are 2s and 10s respectively. Exposed as
	// settings (rather than hard-coded constants) so tests can shrink them.
	NetworkBackoffUnit time.Duration
	NetworkBackoffCap  time.Duration
	Prompts            *RetryPrompts
}

// DefaultSettings returns spec.md §4.G's documented defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxConsecutiveRetries: 5,
		MaxNetworkRetries:     3,
		RetryDelay:            750 * time.Millisecond,
		NetworkBackoffUnit:    2 * time.Second,
		NetworkBackoffCap:     10 * time.Second,
		Prompts:               NewRetryPrompts("", ""),
	}
}

// nonRetryableStatuses is spec.md §4.G's NON_RETRYABLE set.
var nonRetryableStatuses = map[int]bool{400: true, 401: true, 403: true, 404: true, 429: true}

// interruption classifies why an attempt's inner loop ended without a
// successful DONE (spec.md §4.G).
type interruption string

const (
	interruptionNone               interruption = ""
	interruptionStopWithoutContent interruption = "STOP_WITHOUT_SUFFICIENT_CONTENT"
	interruptionFinishAbnormal     interruption = "FINISH_ABNORMAL"
	interruptionDropDuringToolUse  interruption = "DROP_DURING_TOOL_USE"
	interruptionDrop               interruption = "DROP"
	interruptionFetchError         interruption = "FETCH_ERROR"
)

// Dispatcher re-issues a continuation request with the given body and
// returns the new streaming response. Implemented by the caller (which
// owns the route, headers, and transport selector) so this package stays
// free of transport-selection concerns.
type Dispatcher interface {
	Dispatch(ctx context.Context, body []byte) (*httpwire.Response, error)
}

// Engine runs one continuation-engine session for a single downstream
// connection. It is not safe for concurrent use — spec.md §5 specifies
// the engine as single-threaded cooperative.
type Engine struct {
	settings Settings
}

// New builds an Engine with the given settings.
func New(settings Settings) *Engine {
	return &Engine{settings: settings}
}

type runState struct {
	accumulatedText    strings.Builder
	consecutiveRetries int
	networkRetries     int
}

// Run drives the full state machine: forwarding the initial attempt,
// retrying through the dispatcher on interruption, until DONE or the
// retry budget is exhausted. The downstream writer is closed exactly once
// by the caller after Run returns — Run only ever writes to it.
func (e *Engine) Run(ctx context.Context, initial *httpwire.Response, originalBody []byte, downstream io.Writer, dispatch Dispatcher) (err error) {
	// A top-level supervisor: any unexpected panic while processing a
	// malformed upstream chunk still surfaces as a terminal SSE error
	// instead of crashing the handler (spec.md §4.G "Lifecycle & resource
	// discipline").
	defer func() {
		if r := recover(); r != nil {
			writeSSEError(downstream, 500, fmt.Sprintf("internal error: %v", r))
			err = nil
		}
	}()

	var st runState
	resp := initial

	for {
		interrupt, loopErr := e.runInnerLoop(ctx, resp.Body, downstream, &st)
		resp.Body.Close()

		if loopErr != nil {
			interrupt = interruptionFetchError
		}
		if interrupt == interruptionNone {
			return nil
		}

		nextResp, done, retryErr := e.retryProcedure(ctx, originalBody, &st, downstream, dispatch)
		if done {
			return retryErr
		}
		resp = nextResp
	}
}

// retryProcedure implements spec.md §4.G's "Retry procedure" section: the
// consecutive-retry budget check, the continuation-body dispatch, and the
// nested network-retry/back-off loop around dispatch failures or
// retryable non-2xx statuses.
func (e *Engine) retryProcedure(ctx context.Context, originalBody []byte, st *runState, downstream io.Writer, dispatch Dispatcher) (next *httpwire.Response, done bool, err error) {
	if st.consecutiveRetries >= e.settings.MaxConsecutiveRetries {
		writeSSEError(downstream, 504, "exceeded maximum consecutive retries")
		return nil, true, nil
	}

	select {
	case <-time.After(e.settings.RetryDelay):
	case <-ctx.Done():
		return nil, true, ctx.Err()
	}

	tag := DetectLanguage(st.accumulatedText.String())
	prompt := e.settings.Prompts.For(tag)

	body, bodyErr := BuildContinuationBody(originalBody, st.accumulatedText.String(), prompt)
	if bodyErr != nil {
		writeSSEError(downstream, 500, "failed to construct continuation body")
		return nil, true, bodyErr
	}

	for {
		resp, dispErr := dispatch.Dispatch(ctx, body)
		if dispErr != nil {
			if e.countNetworkRetry(ctx, st, downstream) {
				return nil, true, nil
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			st.networkRetries = 0
			st.consecutiveRetries++
			return resp, false, nil
		}

		if nonRetryableStatuses[resp.StatusCode] {
			resp.Body.Close()
			writeSSEError(downstream, resp.StatusCode, fmt.Sprintf("upstream returned status %d", resp.StatusCode))
			return nil, true, nil
		}

		resp.Body.Close()
		if e.countNetworkRetry(ctx, st, downstream) {
			return nil, true, nil
		}
	}
}

// countNetworkRetry increments the network-retry counter and reports
// whether the budget is exhausted. When exhausted it emits a terminal 503
// SSE error and the caller must stop. Otherwise it sleeps the spec's
// back-off before the caller retries dispatch again.
func (e *Engine) countNetworkRetry(ctx context.Context, st *runState, downstream io.Writer) (exhausted bool) {
	st.networkRetries++
	if st.networkRetries > e.settings.MaxNetworkRetries {
		writeSSEError(downstream, 503, "upstream unreachable after maximum network retries")
		return true
	}

	backoff := time.Duration(st.networkRetries) * e.settings.NetworkBackoffUnit
	if backoff > e.settings.NetworkBackoffCap {
		backoff = e.settings.NetworkBackoffCap
	}
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
	}
	return false
}

// runInnerLoop implements spec.md §4.G's "Per-attempt inner loop": forward
// every line verbatim, interpret completed events, and stop at the first
// terminal classification.
func (e *Engine) runInnerLoop(ctx context.Context, body io.Reader, downstream io.Writer, st *runState) (interruption, error) {
	r := sse.NewReader(body)
	var dataLines []string
	sawToolCalls := false
	sawFinalAnswerContent := false

	flush := func() {
		dataLines = dataLines[:0]
	}

	for {
		if ctx.Err() != nil {
			return interruptionFetchError, ctx.Err()
		}

		line, err := r.ReadLine()
		if err != nil {
			if err == io.EOF {
				if sawToolCalls {
					return interruptionDropDuringToolUse, nil
				}
				return interruptionDrop, nil
			}
			return interruptionFetchError, err
		}

		if _, werr := io.WriteString(downstream, line+"\n"); werr != nil {
			return interruptionFetchError, werr
		}

		if line == "" {
			flush()
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))

		chunk, ok := parseChunk(strings.Join(dataLines, "\n"))
		if !ok || len(chunk.Candidates) == 0 {
			continue
		}
		cand := chunk.Candidates[0]

		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				st.accumulatedText.WriteString(part.Text)
				if !part.Thought {
					sawFinalAnswerContent = true
				}
			}
			if len(part.FunctionCall) > 0 || len(part.ToolCode) > 0 {
				sawToolCalls = true
			}
		}

		if cand.FinishReason == "" {
			continue
		}

		switch cand.FinishReason {
		case "STOP":
			if sawFinalAnswerContent || sawToolCalls {
				return interruptionNone, nil
			}
			if st.accumulatedText.Len() > 100 {
				return interruptionNone, nil
			}
			return interruptionStopWithoutContent, nil
		case "MAX_TOKENS", "TOOL_CODE", "SAFETY", "RECITATION":
			return interruptionNone, nil
		default:
			return interruptionFinishAbnormal, nil
		}
	}
}

type geminiPart struct {
	Text         string          `json:"text"`
	Thought      bool            `json:"thought"`
	FunctionCall json.RawMessage `json:"functionCall,omitempty"`
	ToolCode     json.RawMessage `json:"toolCode,omitempty"`
}

type geminiCandidate struct {
	Content struct {
		Parts []geminiPart `json:"parts"`
	} `json:"content"`
	FinishReason string `json:"finishReason"`
}

type geminiChunk struct {
	Candidates []geminiCandidate `json:"candidates"`
}

func parseChunk(data string) (geminiChunk, bool) {
	var chunk geminiChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return geminiChunk{}, false
	}
	return chunk, true
}

func writeSSEError(w io.Writer, code int, message string) {
	io.WriteString(w, apierror.SSEEvent(code, message, nil))
}
