package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/llmgateway/gateway/internal/xerrors"
)

// BuildContinuationBody implements spec.md §4.G's continuation body
// construction: a deep copy of the original request body with a
// model/user message pair inserted into `contents`, immediately after the
// last user-role message (or appended if there is none). originalBody is
// never mutated — every value it returns is freshly unmarshaled from
// originalBody's own bytes.
func BuildContinuationBody(originalBody []byte, accumulatedText, retryPrompt string) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(originalBody, &doc); err != nil {
		return nil, xerrors.NewValidationError(fmt.Sprintf("request body is not a JSON object: %v", err))
	}

	rawContents, ok := doc["contents"]
	if !ok {
		return nil, xerrors.NewValidationError("request body missing contents array")
	}
	contents, ok := rawContents.([]any)
	if !ok {
		return nil, xerrors.NewValidationError("contents is not an array")
	}

	insertAt := len(contents)
	for i := len(contents) - 1; i >= 0; i-- {
		entry, ok := contents[i].(map[string]any)
		if !ok {
			continue
		}
		if role, _ := entry["role"].(string); role == "user" {
			insertAt = i + 1
			break
		}
	}

	modelMsg := map[string]any{
		"role":  "model",
		"parts": []any{map[string]any{"text": accumulatedText}},
	}
	userMsg := map[string]any{
		"role":  "user",
		"parts": []any{map[string]any{"text": retryPrompt}},
	}

	next := make([]any, 0, len(contents)+2)
	next = append(next, contents[:insertAt]...)
	next = append(next, modelMsg, userMsg)
	next = append(next, contents[insertAt:]...)

	doc["contents"] = next

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, xerrors.NewValidationError(fmt.Sprintf("marshaling continuation body: %v", err))
	}
	return out, nil
}
