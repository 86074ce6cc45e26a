// Package tokenizer provides text normalisation for agreement search.
// It lower-cases input, folds accented letters to their base form, and
// reduces everything else to single-space separated [a-z0-9] runs.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize returns s lower-cased with every rune outside [a-z0-9] treated as
// a separator. Separator runs collapse to one space and the result is
// trimmed. Normalize is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	folded, _, err := transform.String(foldAccents, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Tokens splits the normalised form of s into terms.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}
