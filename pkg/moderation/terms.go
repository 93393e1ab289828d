package moderation

import (
	"sort"
	"strings"
	"unicode"
)

// TermSet is an immutable set of blocked terms.
type TermSet struct {
	words   map[string]struct{}
	phrases map[string]struct{}
}

// NewTermSet builds a set from terms. Blank entries are dropped.
func NewTermSet(terms ...string) *TermSet {
	s := &TermSet{words: map[string]struct{}{}, phrases: map[string]struct{}{}}
	for _, t := range terms {
		s.add(t)
	}
	return s
}

func (s *TermSet) add(term string) {
	tokens := tokenize(term)
	switch len(tokens) {
	case 0:
	case 1:
		s.words[tokens[0]] = struct{}{}
	default:
		s.phrases[strings.Join(tokens, " ")] = struct{}{}
	}
}

func (s *TermSet) clone() *TermSet {
	c := &TermSet{
		words:   make(map[string]struct{}, len(s.words)),
		phrases: make(map[string]struct{}, len(s.phrases)),
	}
	for w := range s.words {
		c.words[w] = struct{}{}
	}
	for p := range s.phrases {
		c.phrases[p] = struct{}{}
	}
	return c
}

// With returns a new set that also blocks terms.
func (s *TermSet) With(terms ...string) *TermSet {
	c := s.clone()
	for _, t := range terms {
		c.add(t)
	}
	return c
}

// Without returns a new set that no longer blocks terms.
func (s *TermSet) Without(terms ...string) *TermSet {
	c := s.clone()
	for _, t := range terms {
		key := strings.Join(tokenize(t), " ")
		delete(c.words, key)
		delete(c.phrases, key)
	}
	return c
}

// Len returns the number of terms.
func (s *TermSet) Len() int {
	return len(s.words) + len(s.phrases)
}

// Contains reports whether term itself is blocked.
func (s *TermSet) Contains(term string) bool {
	key := strings.Join(tokenize(term), " ")
	if _, ok := s.words[key]; ok {
		return true
	}
	_, ok := s.phrases[key]
	return ok
}

// Terms returns the blocked terms in sorted order.
func (s *TermSet) Terms() []string {
	out := make([]string, 0, s.Len())
	for w := range s.words {
		out = append(out, w)
	}
	for p := range s.phrases {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Find returns the first blocked term found in text.
func (s *TermSet) Find(text string) (string, bool) {
	tokens := tokenize(text)
	for _, tok := range tokens {
		if _, ok := s.words[tok]; ok {
			return tok, true
		}
	}
	if len(s.phrases) == 0 {
		return "", false
	}
	joined := " " + strings.Join(tokens, " ") + " "
	for _, p := range s.Terms() {
		if _, ok := s.phrases[p]; ok && strings.Contains(joined, " "+p+" ") {
			return p, true
		}
	}
	return "", false
}

// Allows reports whether text contains no blocked term.
func (s *TermSet) Allows(text string) bool {
	_, found := s.Find(text)
	return !found
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
