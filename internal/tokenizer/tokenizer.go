// Package tokenizer splits text into word and sentence terms.
package tokenizer

import (
	"unicode"

	"github.com/Aman-CERP/fsindex/internal/term"
)

// Tokenizer turns text into a term multiset of a single kind.
type Tokenizer interface {
	// Kind is the term variant this tokenizer produces.
	Kind() term.Kind
	// Split returns the tokens of text in order of appearance.
	Split(text string) []string
	// Tokenize returns the tokens of text with their occurrence counts.
	Tokenize(text string) term.Counts
}

// count folds ordered tokens into a multiset.
func count(kind term.Kind, tokens []string) term.Counts {
	out := make(term.Counts, len(tokens))
	for _, tok := range tokens {
		out[term.Term{Kind: kind, Text: tok}]++
	}
	return out
}

func startsWithLetter(s string) bool {
	for _, r := range s {
		return unicode.IsLetter(r)
	}
	return false
}

// Default returns the tokenizers enabled by the two flags, words first.
func Default(words, sentences bool) []Tokenizer {
	var out []Tokenizer
	if words {
		out = append(out, Words{})
	}
	if sentences {
		out = append(out, Sentences{})
	}
	return out
}
