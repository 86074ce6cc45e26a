// Package ranker scores agreement sections against an expanded term set by
// counting whole-word occurrences.
package ranker

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/segmenter"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/synonym"
)

// DefaultLimit is the number of sections returned when callers pass limit <= 0.
const DefaultLimit = 3

// ScoredSection is a section with its total term-match count. Index is the
// section's position in the parsed document.
type ScoredSection struct {
	segmenter.Section
	Score int      `json:"score"`
	Index int      `json:"index"`
	Terms []string `json:"terms,omitempty"`
}

func wordPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
}

// CountWord returns how many times term occurs in text as a whole word.
// text is expected to be lower-cased already.
func CountWord(text, term string) int {
	if term == "" {
		return 0
	}
	return len(wordPattern(term).FindAllStringIndex(text, -1))
}

// Rank scores every section against terms and returns up to limit sections
// with a positive score, highest first. Equal scores keep document order.
// An empty result means nothing matched.
func Rank(sections []segmenter.Section, terms []string, limit int) []ScoredSection {
	return rank(sections, terms, limit, nil)
}

type termPattern struct {
	term string
	re   *regexp.Regexp
}

// rank compiles each term once per call. Terms found in known are reused
// instead of compiled; known is never written to.
func rank(sections []segmenter.Section, terms []string, limit int, known map[string]*regexp.Regexp) []ScoredSection {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(terms) == 0 {
		return []ScoredSection{}
	}
	matchers := make([]termPattern, 0, len(terms))
	for _, term := range terms {
		if term == "" {
			continue
		}
		re, ok := known[term]
		if !ok {
			re = wordPattern(term)
		}
		matchers = append(matchers, termPattern{term: term, re: re})
	}

	result := make([]ScoredSection, 0, len(sections))
	for i, s := range sections {
		text := strings.ToLower(s.Heading + "\n" + s.Body)
		score := 0
		var matched []string
		for _, m := range matchers {
			if n := len(m.re.FindAllStringIndex(text, -1)); n > 0 {
				score += n
				matched = append(matched, m.term)
			}
		}
		if score == 0 {
			continue
		}
		result = append(result, ScoredSection{
			Section: s,
			Score:   score,
			Index:   i,
			Terms:   matched,
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Ranker expands queries through a synonym table before ranking. Matchers
// for the table's vocabulary are compiled once in New and never added to.
type Ranker struct {
	expander *synonym.Expander
	patterns map[string]*regexp.Regexp
}

// New returns a Ranker. A nil expander uses the default synonym table.
func New(expander *synonym.Expander) *Ranker {
	if expander == nil {
		expander = synonym.NewExpander(nil)
	}
	table := expander.Table()
	patterns := make(map[string]*regexp.Regexp)
	for _, concept := range table.Concepts() {
		patterns[concept] = wordPattern(concept)
		for _, syn := range table.Synonyms(concept) {
			if _, ok := patterns[syn]; !ok {
				patterns[syn] = wordPattern(syn)
			}
		}
	}
	return &Ranker{expander: expander, patterns: patterns}
}

// Expander returns the expander used for queries.
func (r *Ranker) Expander() *synonym.Expander {
	return r.expander
}

// Search expands query and ranks sections against the resulting terms.
func (r *Ranker) Search(sections []segmenter.Section, query string, limit int) []ScoredSection {
	return rank(sections, r.expander.Expand(query), limit, r.patterns)
}
