// Package tagging turns one library file into a tag list and summary.
//
// The Pipeline extracts an excerpt, rejects files with no usable text, asks
// the active model for 5 to 8 specific tags plus a one-sentence summary under
// the librarian prompt (with the user's rules appended), strictly parses the
// JSON answer and formats every tag as Capitalized-Hyphenated words.
//
// RulesFile holds the user-authored tagging rules. It is read by the pipeline
// and by the taxonomy implication pass, and can be watched for edits.
package tagging
