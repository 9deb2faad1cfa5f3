package expander

import (
	"strings"
)

// DefaultSynonyms is the Urdu legal vocabulary appended to every query
var DefaultSynonyms = []string{
	"حبسِ جسم",
	"ہیبیس کارپس",
	"غیر قانونی گرفتاری",
	"غیر قانونی حراست",
	"گرفتاری",
	"حراست",
	"وارنٹ",
	"آئینی درخواست",
	"ہائی کورٹ",
	"عدالت",
	"ضمانت",
}

// Expander turns a raw query into the set of search terms for the lexical prefilter
type Expander struct {
	synonyms []string
}

// New creates an Expander over the given synonym list. Blank entries are
// ignored. A nil list falls back to DefaultSynonyms; pass an empty non-nil
// slice to disable expansion.
func New(synonyms []string) *Expander {
	if synonyms == nil {
		synonyms = DefaultSynonyms
	}

	cleaned := make([]string, 0, len(synonyms))
	for _, s := range synonyms {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return &Expander{synonyms: cleaned}
}

// Expand returns the trimmed query followed by the configured synonyms.
// Duplicates collapse, first occurrence wins. A blank query yields just the
// synonyms.
func (e *Expander) Expand(query string) []string {
	terms := make([]string, 0, len(e.synonyms)+1)
	seen := make(map[string]struct{}, len(e.synonyms)+1)

	add := func(term string) {
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}

	add(strings.TrimSpace(query))
	for _, s := range e.synonyms {
		add(s)
	}
	return terms
}

// Synonyms returns a copy of the configured synonym list
func (e *Expander) Synonyms() []string {
	out := make([]string, len(e.synonyms))
	copy(out, e.synonyms)
	return out
}
