package tokenizer

import (
	"unicode"

	"github.com/Aman-CERP/fsindex/internal/term"
)

// Words splits text into words. Apostrophes and hyphens between two word
// characters stay inside the word, so "that's", "aujourd'hui" and
// "как-нибудь" are single tokens. Case is preserved.
type Words struct{}

// Kind implements Tokenizer.
func (Words) Kind() term.Kind { return term.KindWord }

// Split implements Tokenizer.
func (Words) Split(text string) []string {
	runes := []rune(text)
	var out []string

	for i := 0; i < len(runes); {
		if !isWordRune(runes[i]) {
			i++
			continue
		}
		start := i
		for i < len(runes) {
			r := runes[i]
			if isWordRune(r) {
				i++
				continue
			}
			if isJoiner(r) && i+1 < len(runes) && isWordRune(runes[i+1]) {
				i++
				continue
			}
			break
		}
		if tok := string(runes[start:i]); startsWithLetter(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// Tokenize implements Tokenizer.
func (w Words) Tokenize(text string) term.Counts {
	return count(term.KindWord, w.Split(text))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '-', '‐':
		return true
	}
	return false
}
