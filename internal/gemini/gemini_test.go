package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/llmgateway/gateway/internal/httpwire"
	"golang.org/x/text/language"
)

func TestDetectLanguageScriptThreshold(t *testing.T) {
	cases := map[string]language.Tag{
		"":                       language.English,
		"你好，世界，这是一个测试": language.Chinese,
		"こんにちは、これはテストです": language.Japanese,
		"안녕하세요 세계 테스트입니다":  language.Korean,
		"مرحبا بالعالم هذا اختبار": language.Arabic,
		"Привет, мир, это тест":   language.Russian,
		"hello world plain text":  language.English,
	}
	for text, want := range cases {
		if got := DetectLanguage(text); got != want {
			t.Errorf("DetectLanguage(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestDetectLanguageDiacriticFallback(t *testing.T) {
	cases := map[string]language.Tag{
		"s'il vous plaît, continuez": language.French,
		"bitte fahre fort, süß":      language.German,
		"continúa por favor, señor":  language.Spanish,
	}
	for text, want := range cases {
		if got := DetectLanguage(text); got != want {
			t.Errorf("DetectLanguage(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestDetectLanguageMixedScriptPicksFixedOrder(t *testing.T) {
	// Enough Han runes to clear 10% alongside some Hiragana — Chinese
	// must win since it is checked first.
	text := strings.Repeat("漢", 20) + "ひ"
	if got := DetectLanguage(text); got != language.Chinese {
		t.Fatalf("got %v, want Chinese", got)
	}
}

func TestRetryPromptsFallsBackToDefault(t *testing.T) {
	rp := NewRetryPrompts("", "")
	if got := rp.For(language.Italian); got != defaultPrompt {
		t.Fatalf("For(Italian) = %q, want default prompt", got)
	}
	if got := rp.For(language.Japanese); got == defaultPrompt {
		t.Fatalf("For(Japanese) unexpectedly fell back to default")
	}
}

func TestRetryPromptsHonorsOverrides(t *testing.T) {
	rp := NewRetryPrompts("keep going", "继续")
	if got := rp.For(language.English); got != "keep going" {
		t.Fatalf("English override not applied: %q", got)
	}
	if got := rp.For(language.Chinese); got != "继续" {
		t.Fatalf("Chinese override not applied: %q", got)
	}
}

const sampleBody = `{"contents":[{"role":"user","parts":[{"text":"hi"}]},{"role":"model","parts":[{"text":"partial answer"}]}],"generationConfig":{"temperature":0.5}}`

func TestBuildContinuationBodyDoesNotMutateOriginal(t *testing.T) {
	original := []byte(sampleBody)
	originalCopy := append([]byte(nil), original...)

	out, err := BuildContinuationBody(original, "partial answer", "please continue")
	if err != nil {
		t.Fatalf("BuildContinuationBody: %v", err)
	}

	if !bytes.Equal(original, originalCopy) {
		t.Fatalf("original body was mutated: got %s, want %s", original, originalCopy)
	}
	if bytes.Equal(out, original) {
		t.Fatalf("continuation body identical to original, expected splice")
	}
}

func TestBuildContinuationBodyInsertsAfterLastUserMessage(t *testing.T) {
	body := `{"contents":[
		{"role":"user","parts":[{"text":"first"}]},
		{"role":"model","parts":[{"text":"reply"}]},
		{"role":"user","parts":[{"text":"second"}]}
	]}`

	out, err := BuildContinuationBody([]byte(body), "accumulated", "continue please")
	if err != nil {
		t.Fatalf("BuildContinuationBody: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("Unmarshal output: %v", err)
	}
	contents := doc["contents"].([]any)
	if len(contents) != 5 {
		t.Fatalf("got %d entries, want 5", len(contents))
	}
	// Original entries at index 0..2 ("first"/user, "reply"/model,
	// "second"/user) are untouched; the spliced pair follows immediately
	// after the last user message, which was index 2.
	spliced1 := contents[3].(map[string]any)
	if spliced1["role"] != "model" {
		t.Fatalf("entry after last user message is %v, want model", spliced1["role"])
	}
	spliced2 := contents[4].(map[string]any)
	if spliced2["role"] != "user" {
		t.Fatalf("entry after spliced model message is %v, want user", spliced2["role"])
	}
}

func TestBuildContinuationBodyAppendsWhenNoUserMessage(t *testing.T) {
	body := `{"contents":[{"role":"model","parts":[{"text":"only model turn"}]}]}`

	out, err := BuildContinuationBody([]byte(body), "text", "prompt")
	if err != nil {
		t.Fatalf("BuildContinuationBody: %v", err)
	}
	var doc map[string]any
	json.Unmarshal(out, &doc)
	contents := doc["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("got %d entries, want 3", len(contents))
	}
}

func TestBuildContinuationBodyRejectsMissingContents(t *testing.T) {
	if _, err := BuildContinuationBody([]byte(`{"foo":1}`), "x", "y"); err == nil {
		t.Fatal("expected error for missing contents array")
	}
}

// --- engine ---

func sseResponse(body string) *httpwire.Response {
	return &httpwire.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type stubDispatcher struct {
	responses []*httpwire.Response
	errs      []error
	calls     int
	bodies    [][]byte
}

func (s *stubDispatcher) Dispatch(ctx context.Context, body []byte) (*httpwire.Response, error) {
	s.bodies = append(s.bodies, body)
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return sseResponse("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"done\"}]},\"finishReason\":\"STOP\"}]}\n\n"), nil
}

func fastSettings() Settings {
	s := DefaultSettings()
	s.RetryDelay = time.Millisecond
	s.NetworkBackoffUnit = time.Millisecond
	s.NetworkBackoffCap = 5 * time.Millisecond
	return s
}

func TestEngineForwardsCleanStopWithoutRetry(t *testing.T) {
	initial := sseResponse("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"hello world, a complete answer that is long enough to count as sufficient content here\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	var downstream bytes.Buffer
	e := New(fastSettings())
	dispatcher := &stubDispatcher{}

	err := e.Run(context.Background(), initial, []byte(sampleBody), &downstream, dispatcher)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dispatcher.calls != 0 {
		t.Fatalf("expected no continuation dispatch, got %d calls", dispatcher.calls)
	}
	if !strings.Contains(downstream.String(), "hello world") {
		t.Fatalf("downstream missing forwarded content: %q", downstream.String())
	}
}

func TestEngineRetriesOnStopWithoutContentThenSucceeds(t *testing.T) {
	initial := sseResponse("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	var downstream bytes.Buffer
	e := New(fastSettings())
	dispatcher := &stubDispatcher{
		responses: []*httpwire.Response{
			sseResponse("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\" and the rest of a sufficiently long final answer right here\"}]},\"finishReason\":\"STOP\"}]}\n\n"),
		},
	}

	err := e.Run(context.Background(), initial, []byte(sampleBody), &downstream, dispatcher)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("expected exactly one continuation dispatch, got %d", dispatcher.calls)
	}
	var doc map[string]any
	if err := json.Unmarshal(dispatcher.bodies[0], &doc); err != nil {
		t.Fatalf("continuation body not valid JSON: %v", err)
	}
}

func TestEngineGivesUpAfterMaxConsecutiveRetries(t *testing.T) {
	initial := sseResponse("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	var downstream bytes.Buffer
	settings := fastSettings()
	settings.MaxConsecutiveRetries = 2
	e := New(settings)

	stopWithoutContent := "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"\"}]},\"finishReason\":\"STOP\"}]}\n\n"
	dispatcher := &stubDispatcher{
		responses: []*httpwire.Response{sseResponse(stopWithoutContent), sseResponse(stopWithoutContent)},
	}

	err := e.Run(context.Background(), initial, []byte(sampleBody), &downstream, dispatcher)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dispatcher.calls != settings.MaxConsecutiveRetries {
		t.Fatalf("expected %d dispatches, got %d", settings.MaxConsecutiveRetries, dispatcher.calls)
	}
	if !strings.Contains(downstream.String(), "event: error") {
		t.Fatalf("expected terminal SSE error, got %q", downstream.String())
	}
	if !strings.Contains(downstream.String(), "DEADLINE_EXCEEDED") {
		t.Fatalf("expected DEADLINE_EXCEEDED status, got %q", downstream.String())
	}
}

func TestEngineTreatsMaxTokensAsSuccess(t *testing.T) {
	initial := sseResponse("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"partial\"}]},\"finishReason\":\"MAX_TOKENS\"}]}\n\n")
	var downstream bytes.Buffer
	e := New(fastSettings())
	dispatcher := &stubDispatcher{}

	if err := e.Run(context.Background(), initial, []byte(sampleBody), &downstream, dispatcher); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dispatcher.calls != 0 {
		t.Fatalf("MAX_TOKENS should not trigger a retry, got %d calls", dispatcher.calls)
	}
}

func TestEngineNetworkRetryExhaustionEmitsUnavailable(t *testing.T) {
	initial := sseResponse("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	var downstream bytes.Buffer
	settings := fastSettings()
	e := New(settings)

	netErr := io.ErrClosedPipe
	dispatcher := &stubDispatcher{
		errs: []error{netErr, netErr, netErr, netErr},
	}

	err := e.Run(context.Background(), initial, []byte(sampleBody), &downstream, dispatcher)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(downstream.String(), "event: error") || !strings.Contains(downstream.String(), "UNAVAILABLE") {
		t.Fatalf("expected terminal 503/UNAVAILABLE SSE error, got %q", downstream.String())
	}
}
