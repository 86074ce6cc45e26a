// Package segmenter splits raw agreement text into an ordered sequence of
// labelled sections using heading-detection heuristics.
package segmenter

import (
	"regexp"
	"strings"
)

const (
	// IntroductionHeading labels text that appears before the first heading.
	IntroductionHeading = "INTRODUCTION"
	// FallbackHeading labels the whole document when no section has a body.
	FallbackHeading = "AGREEMENT"

	minCapsHeading = 9
	maxCapsHeading = 70
)

// Section is a heading-delimited span of agreement text. Sections are never
// mutated after Segment returns them.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// HeadingKind identifies which heuristic recognised a heading line.
type HeadingKind int

const (
	HeadingNone HeadingKind = iota
	HeadingArticleSection
	HeadingNumericOutline
	HeadingAllCaps
)

func (k HeadingKind) String() string {
	switch k {
	case HeadingArticleSection:
		return "article_section"
	case HeadingNumericOutline:
		return "numeric_outline"
	case HeadingAllCaps:
		return "all_caps"
	default:
		return "none"
	}
}

var (
	articleSectionRe = regexp.MustCompile(`(?i)^(article|section)\b`)
	numericOutlineRe = regexp.MustCompile(`^\d+(\.\d+)*\s`)
	allCapsRe        = regexp.MustCompile(`^[A-Z0-9 :&-]+$`)
)

type matcher struct {
	kind  HeadingKind
	match func(line string) bool
}

// Evaluated in order; first match wins.
var matchers = []matcher{
	{HeadingArticleSection, articleSectionRe.MatchString},
	{HeadingNumericOutline, numericOutlineRe.MatchString},
	{HeadingAllCaps, isAllCapsBlock},
}

func isAllCapsBlock(line string) bool {
	if len(line) < minCapsHeading || len(line) > maxCapsHeading {
		return false
	}
	return allCapsRe.MatchString(line)
}

// Classify reports which heading heuristic, if any, matches line. Leading and
// trailing whitespace is ignored.
func Classify(line string) HeadingKind {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return HeadingNone
	}
	for _, m := range matchers {
		if m.match(trimmed) {
			return m.kind
		}
	}
	return HeadingNone
}

// Segment splits text into sections in document order. It never fails: text
// without any section body yields a single AGREEMENT section holding the
// original input. A heading followed directly by another heading is dropped.
func Segment(text string) []Section {
	var sections []Section
	heading := IntroductionHeading
	var body strings.Builder

	flush := func() {
		if strings.TrimSpace(body.String()) != "" {
			sections = append(sections, Section{Heading: heading, Body: body.String()})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if Classify(line) != HeadingNone {
			flush()
			heading = strings.TrimSpace(line)
			body.Reset()
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()

	if len(sections) == 0 {
		return []Section{{Heading: FallbackHeading, Body: text}}
	}
	return sections
}

// Headings returns the heading of every section, in order.
func Headings(sections []Section) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.Heading
	}
	return out
}
