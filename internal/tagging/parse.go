package tagging

import (
	"encoding/json"
	"errors"
	"fmt"

	"bookshelf/internal/services/llm"
)

// ErrMalformedResponse reports model output that is not the expected JSON shape.
var ErrMalformedResponse = errors.New("malformed AI response")

// Parsed is a validated model answer.
type Parsed struct {
	Tags    []string
	Summary string
}

// ParseResponse decodes the model's JSON answer. The object must carry a
// "tags" array of strings; "summary", when present, must be a string.
func ParseResponse(text string) (Parsed, error) {
	var fields map[string]json.RawMessage
	if err := llm.DecodeLLMJSON(text, &fields); err != nil {
		return Parsed{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	rawTags, ok := fields["tags"]
	if !ok {
		return Parsed{}, fmt.Errorf("%w: missing tags", ErrMalformedResponse)
	}
	var parsed Parsed
	if err := json.Unmarshal(rawTags, &parsed.Tags); err != nil || parsed.Tags == nil {
		return Parsed{}, fmt.Errorf("%w: tags must be a list of strings", ErrMalformedResponse)
	}
	if rawSummary, ok := fields["summary"]; ok && string(rawSummary) != "null" {
		if err := json.Unmarshal(rawSummary, &parsed.Summary); err != nil {
			return Parsed{}, fmt.Errorf("%w: summary must be a string", ErrMalformedResponse)
		}
	}
	return parsed, nil
}
