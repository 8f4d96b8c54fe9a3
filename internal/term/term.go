// Package term defines the unit of indexing: a Word or a Sentence.
package term

import (
	"fmt"
	"strings"
)

// Kind tags the variant of a Term.
type Kind uint8

const (
	// KindWord is a single word.
	KindWord Kind = iota + 1
	// KindSentence is a whole sentence.
	KindSentence
)

// String returns the lowercase variant name.
func (k Kind) String() string {
	switch k {
	case KindWord:
		return "word"
	case KindSentence:
		return "sentence"
	default:
		return "unknown"
	}
}

// ParseKind parses "word" or "sentence" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "word":
		return KindWord, nil
	case "sentence":
		return KindSentence, nil
	default:
		return 0, fmt.Errorf("unknown term kind %q", s)
	}
}

// Term is an immutable, comparable (kind, text) pair usable as a map key.
type Term struct {
	Kind Kind
	Text string
}

// Word builds a word term.
func Word(text string) Term { return Term{Kind: KindWord, Text: text} }

// Sentence builds a sentence term.
func Sentence(text string) Term { return Term{Kind: KindSentence, Text: text} }

// New builds a term of the given kind, rejecting unknown kinds and empty text.
func New(kind Kind, text string) (Term, error) {
	if kind != KindWord && kind != KindSentence {
		return Term{}, fmt.Errorf("unknown term kind %d", kind)
	}
	if strings.TrimSpace(text) == "" {
		return Term{}, fmt.Errorf("empty %s", kind)
	}
	return Term{Kind: kind, Text: text}, nil
}

func (t Term) String() string {
	return fmt.Sprintf("%s(%q)", t.Kind, t.Text)
}

// Counts is a term multiset: term -> occurrence count.
type Counts map[Term]int

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Total returns the sum of all counts.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}
