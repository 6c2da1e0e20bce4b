// Package textindex extracts the index terms shared by the knowledge store adapters.
package textindex

import (
	"slices"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "in": true, "is": true, "it": true, "of": true,
	"on": true, "or": true, "the": true, "to": true, "was": true, "when": true, "with": true,
}

// Terms returns the distinct lowercase terms of text, in first-seen order.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || slices.Contains(out, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}
