package taxonomy

import (
	"regexp"
	"strings"
)

var implicationPattern = regexp.MustCompile("(?i)If .*?`([^`]+)`.*?ensures.*?`([^`]+)`")

// Implication is a user rule: an item tagged Child must also carry Parent.
type Implication struct {
	Child  string
	Parent string
}

// ParseImplications extracts implication rules from free text, one per line,
// written as "If a book is about `Child`, ensures it is also tagged `Parent`".
// Lines that do not match are ignored.
func ParseImplications(text string) []Implication {
	var out []Implication
	for _, line := range strings.Split(text, "\n") {
		m := implicationPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		child, parent := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if child == "" || parent == "" {
			continue
		}
		out = append(out, Implication{Child: child, Parent: parent})
	}
	return out
}
