package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bookshelf/internal/inference"
	"bookshelf/internal/logging"
	"bookshelf/internal/services/llm"
)

const learnSystemPrompt = "You are a data classification expert."

var errNoCompleter = errors.New("no model configured for taxonomy learning")

func buildLearnPrompt(tags []string) string {
	var b strings.Builder
	b.WriteString("Analyze this list of specific book tags:\n")
	b.WriteString(strings.Join(tags, ", "))
	b.WriteString("\n\nYour goal is to map each tag to ONE of the following \"Master Categories\":\n")
	b.WriteString(strings.Join(Categories, ", "))
	b.WriteString(`

If a tag fits none of these perfectly, choose the closest match or a similarly broad category.

CRITICAL RULES:
1. DO NOT use generic terms like "General", "Book", "Novel", "Series".
2. "Fiction" and "Non-Fiction" ARE allowed and encouraged for generic tags.
3. Use "Science-Fiction" instead of "Sci-Fi".
4. Return ONLY a valid JSON object: key = specific tag, value = Master Category.

Example:
{
  "Python-Programming": "Programming",
  "Space-Opera": "Science-Fiction",
  "World-War-II": "History",
  "Novel": "Fiction"
}`)
	return b.String()
}

// learnBatch asks the model to categorize tags. Only answers for requested
// tags that name a vocabulary category are kept; keys are stored in the
// spelling they have in the library.
func (e *Engine) learnBatch(ctx context.Context, tags []string) (Mapping, error) {
	if e.completer == nil {
		return nil, errNoCompleter
	}
	resp, err := e.completer.Complete(ctx, inference.Request{
		System:      learnSystemPrompt,
		User:        buildLearnPrompt(tags),
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}

	var answer map[string]string
	if err := llm.DecodeLLMJSON(resp.Text, &answer); err != nil {
		return nil, fmt.Errorf("decode taxonomy batch: %w", err)
	}

	requested := make(map[string]string, len(tags)*2)
	for _, tag := range tags {
		requested[tag] = tag
		if n := NormalizeTag(tag); n != "" {
			if _, taken := requested[n]; !taken {
				requested[n] = tag
			}
		}
	}

	learned := Mapping{}
	for key, label := range answer {
		tag, ok := requested[key]
		if !ok {
			tag, ok = requested[NormalizeTag(key)]
		}
		if !ok {
			continue
		}
		category, ok := CanonicalCategory(label)
		if !ok {
			e.logger.Debug("discarding label outside vocabulary",
				logging.String("tag", tag),
				logging.String("label", label),
			)
			continue
		}
		learned[tag] = category
	}
	return learned, nil
}
