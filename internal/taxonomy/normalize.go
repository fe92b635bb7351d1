package taxonomy

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	separatorRun   = regexp.MustCompile(`[\s_]+`)
	disallowedRune = regexp.MustCompile(`[^a-z0-9\-.]`)
	formatSplit    = regexp.MustCompile(`[\s_-]+`)
	nonAlnum       = regexp.MustCompile(`[^a-z0-9]`)
)

// NormalizeTag returns the canonical comparison form of a tag:
// "Space Opera" becomes "space-opera".
func NormalizeTag(tag string) string {
	t := strings.ToLower(tag)
	t = separatorRun.ReplaceAllString(t, "-")
	t = disallowedRune.ReplaceAllString(t, "")
	return strings.Trim(t, "-")
}

// kebab lowercases and hyphenates without stripping punctuation.
func kebab(tag string) string {
	return separatorRun.ReplaceAllString(strings.ToLower(tag), "-")
}

// CompactTag keeps only lowercase alphanumerics. Used for redundancy checks
// where "Science-Fiction" and "science fiction" must compare equal.
func CompactTag(tag string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(tag), "")
}

// FormatTag renders a model-produced tag as Capitalized-Hyphenated words.
// Only the first letter of each segment is upper-cased, so "ai/ml" stays one
// word: "Ai/ml".
func FormatTag(tag string) string {
	upper := cases.Upper(language.Und)
	parts := formatSplit.Split(strings.TrimSpace(tag), -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		_, size := utf8.DecodeRuneInString(part)
		out = append(out, upper.String(part[:size])+strings.ToLower(part[size:]))
	}
	return strings.Join(out, "-")
}

// SplitTags splits a comma-joined tag string, trimming entries and dropping empties.
func SplitTags(tags string) []string {
	if strings.TrimSpace(tags) == "" {
		return nil
	}
	raw := strings.Split(tags, ",")
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// JoinTags is the inverse of SplitTags.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}
