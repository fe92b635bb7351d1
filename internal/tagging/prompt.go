package tagging

import "strings"

const systemPrompt = `You are a professional librarian and book classifier.
Analyze the provided text excerpt from a book (Preface, Introduction, or Content).
Provide:
1. A list of 5-8 specific, high-quality tags.
   CRITICAL: DO NOT include generic tags like "Fiction" or "Non-Fiction" - these will be determined automatically.
   CRITICAL: Focus on SPECIFIC genres, topics, and themes (e.g., "Science-Fiction", "Mystery-Thriller", "Machine-Learning", "Business-Strategy").
   CRITICAL: Each tag MUST be in "Pascal-Case-With-Hyphens" format. No spaces allowed.
2. A single-sentence summary of what the book is about.

Respond ONLY in valid JSON format:
{
  "tags": ["Science-Fiction", "Space-Opera", "Military-Fiction", ...],
  "summary": "..."
}`

// BuildSystemPrompt appends the user's rules, when any, to the librarian prompt.
func BuildSystemPrompt(rules string) string {
	rules = strings.TrimSpace(rules)
	if rules == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\nCRITICAL USER DEFINED RULES:\n" + rules + "\n\nStrictly follow the above rules when generating tags."
}

// BuildUserPrompt wraps the excerpt sent for classification.
func BuildUserPrompt(text string) string {
	return "Book Excerpt:\n\n" + text
}
