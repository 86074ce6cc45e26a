// Package excerpt builds bounded, whitespace-normalised previews of section
// bodies.
package excerpt

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultLength is the preview length used when callers pass max <= 0.
	DefaultLength = 900
	// Ellipsis is appended to truncated previews.
	Ellipsis = "..."
)

// Build collapses whitespace runs in body to single spaces and trims it. If
// the result is longer than max characters it is cut to exactly max and
// Ellipsis is appended.
func Build(body string, max int) string {
	if max <= 0 {
		max = DefaultLength
	}
	collapsed := strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(collapsed) <= max {
		return collapsed
	}
	runes := []rune(collapsed)
	return string(runes[:max]) + Ellipsis
}
