// Package keywords extracts normalized keyword sets from free text and
// scores the overlap between them.
//
// Matching is exact-token set intersection: text is lowercased, split on
// identifier-like words of three or more characters, and filtered against a
// fixed stop-word list. There is no stemming, so "migrate" and "migration"
// are different keywords.
package keywords

import (
	"regexp"
	"sort"
	"strings"
)

var wordPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9_]{2,}\b`)

// stopWords holds articles, auxiliary verbs, and verbs that appear in almost
// every feature description.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "to": {}, "of": {},
	"in": {}, "for": {}, "on": {}, "with": {}, "and": {}, "or": {}, "not": {},
	"this": {}, "that": {}, "it": {}, "be": {}, "as": {}, "at": {}, "by": {},
	"from": {}, "has": {}, "have": {}, "had": {}, "do": {}, "does": {},
	"did": {}, "will": {}, "would": {}, "could": {}, "should": {}, "may": {},
	"might": {}, "must": {}, "shall": {}, "can": {}, "add": {}, "create": {},
	"update": {}, "fix": {}, "implement": {}, "phase": {}, "step": {},
}

// Set is an unordered set of keywords.
type Set map[string]struct{}

// Extract returns the keyword set of text. Empty text yields an empty set.
func Extract(text string) Set {
	set := make(Set)
	if text == "" {
		return set
	}
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopWords[word]; stop {
			continue
		}
		set[word] = struct{}{}
	}
	return set
}

// IsStopWord reports whether word is filtered by Extract.
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}

// Len returns the number of keywords in the set.
func (s Set) Len() int {
	return len(s)
}

// Contains reports whether word is in the set.
func (s Set) Contains(word string) bool {
	_, ok := s[word]
	return ok
}

// Sorted returns the keywords in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Intersect returns the keywords present in both sets, sorted.
func (s Set) Intersect(other Set) []string {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	var out []string
	for w := range small {
		if _, ok := large[w]; ok {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

// Score returns |a ∩ b|. It is zero whenever either set is empty.
func Score(a, b Set) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return len(a.Intersect(b))
}

// Match extracts keywords from both texts and returns the overlap score and
// the shared keywords.
func Match(left, right string) (int, []string) {
	a, b := Extract(left), Extract(right)
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	shared := a.Intersect(b)
	return len(shared), shared
}
