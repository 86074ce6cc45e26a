// Package synonym expands user queries into a broader term set using a fixed
// concept table. A Table is immutable once constructed and safe to share
// between goroutines.
package synonym

import (
	"sort"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/tokenizer"
)

const (
	// DefaultLimit caps the number of terms Expand returns.
	DefaultLimit = 30
	// MinTermLength is the shortest term Expand keeps.
	MinTermLength = 3
)

// Table maps a canonical concept key to its related terms.
type Table struct {
	keys     []string
	synonyms map[string][]string
	members  map[string]map[string]struct{}
}

// NewTable builds a Table from concept → synonyms. Keys and synonyms are
// normalised; the input map is copied and may be reused by the caller.
func NewTable(concepts map[string][]string) *Table {
	t := &Table{
		synonyms: make(map[string][]string, len(concepts)),
		members:  make(map[string]map[string]struct{}, len(concepts)),
	}
	for rawKey, rawSyns := range concepts {
		key := tokenizer.Normalize(rawKey)
		if key == "" {
			continue
		}
		set, ok := t.members[key]
		if !ok {
			set = make(map[string]struct{}, len(rawSyns))
			t.members[key] = set
			t.keys = append(t.keys, key)
		}
		for _, raw := range rawSyns {
			syn := tokenizer.Normalize(raw)
			if syn == "" {
				continue
			}
			if _, dup := set[syn]; dup {
				continue
			}
			set[syn] = struct{}{}
			t.synonyms[key] = append(t.synonyms[key], syn)
		}
	}
	sort.Strings(t.keys)
	return t
}

// Concepts returns the concept keys in sorted order.
func (t *Table) Concepts() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Synonyms returns the terms related to concept, or nil.
func (t *Table) Synonyms(concept string) []string {
	syns := t.synonyms[concept]
	out := make([]string, len(syns))
	copy(out, syns)
	return out
}

// matches reports whether token names concept or one of its synonyms.
func (t *Table) matches(concept, token string) bool {
	if token == concept {
		return true
	}
	_, ok := t.members[concept][token]
	return ok
}

// Expander turns a query into a bounded TokenSet.
type Expander struct {
	table *Table
	limit int
}

// Option configures an Expander.
type Option func(*Expander)

// WithLimit overrides the maximum number of terms returned. Values <= 0 are
// ignored.
func WithLimit(n int) Option {
	return func(e *Expander) {
		if n > 0 {
			e.limit = n
		}
	}
}

// NewExpander returns an Expander over table. A nil table uses DefaultTable.
func NewExpander(table *Table, opts ...Option) *Expander {
	if table == nil {
		table = DefaultTable()
	}
	e := &Expander{table: table, limit: DefaultLimit}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Table returns the table the expander reads from.
func (e *Expander) Table() *Table {
	return e.table
}

// Expand normalises query and returns its tokens plus the key and synonyms
// of every concept any token belongs to. Terms shorter than MinTermLength are
// dropped, duplicates removed, and the result capped at the expander limit.
// Order is seed tokens first, then concepts in sorted key order.
func (e *Expander) Expand(query string) []string {
	raw := tokenizer.Tokens(query)
	if len(raw) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(raw)*4)
	ordered := make([]string, 0, len(raw)*4)
	add := func(term string) {
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		ordered = append(ordered, term)
	}

	for _, tok := range raw {
		add(tok)
	}
	for _, concept := range e.table.keys {
		for _, tok := range raw {
			if e.table.matches(concept, tok) {
				add(concept)
				for _, syn := range e.table.synonyms[concept] {
					add(syn)
				}
				break
			}
		}
	}

	out := make([]string, 0, len(ordered))
	for _, term := range ordered {
		if len(term) < MinTermLength {
			continue
		}
		out = append(out, term)
		if len(out) == e.limit {
			break
		}
	}
	return out
}

// Suggest returns concept keys to offer a user whose query matched nothing.
func (e *Expander) Suggest(n int) []string {
	keys := e.table.Concepts()
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
