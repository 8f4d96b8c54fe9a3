package tokenizer

import (
	"strings"
	"unicode"

	"github.com/Aman-CERP/fsindex/internal/term"
)

// Sentences splits text into trimmed sentences.
//
// A run of '!', '?' or '…' followed by whitespace or end of text always
// ends a sentence. A run of '.' ends one only when the next non-space rune
// is not a lowercase letter, which keeps abbreviations such as "Dr. in"
// and "T.L.A. test" together. A blank line also ends a sentence.
type Sentences struct{}

// Kind implements Tokenizer.
func (Sentences) Kind() term.Kind { return term.KindSentence }

// Split implements Tokenizer.
func (Sentences) Split(text string) []string {
	runes := []rune(text)
	var out []string
	emit := func(from, to int) {
		s := strings.TrimSpace(string(runes[from:to]))
		if s != "" && startsWithLetter(s) {
			out = append(out, s)
		}
	}

	start := 0
	for i := 0; i < len(runes); {
		r := runes[i]

		if r == '\n' && blankLineAt(runes, i) {
			emit(start, i)
			for i < len(runes) && unicode.IsSpace(runes[i]) {
				i++
			}
			start = i
			continue
		}

		if !isTerminator(r) {
			i++
			continue
		}

		strong := false
		for i < len(runes) && (isTerminator(runes[i]) || isCloser(runes[i])) {
			if runes[i] != '.' && !isCloser(runes[i]) {
				strong = true
			}
			i++
		}
		if i < len(runes) && !unicode.IsSpace(runes[i]) {
			continue
		}
		if !strong && nextIsLower(runes, i) {
			continue
		}
		emit(start, i)
		start = i
	}
	emit(start, len(runes))
	return out
}

// Tokenize implements Tokenizer.
func (s Sentences) Tokenize(text string) term.Counts {
	return count(term.KindSentence, s.Split(text))
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '”', '’':
		return true
	}
	return false
}

func nextIsLower(runes []rune, i int) bool {
	for ; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) {
			continue
		}
		return unicode.IsLower(runes[i])
	}
	return false
}

// blankLineAt reports whether the newline at i is followed by another
// newline with only spaces between them.
func blankLineAt(runes []rune, i int) bool {
	for j := i + 1; j < len(runes); j++ {
		switch runes[j] {
		case '\n':
			return true
		case ' ', '\t', '\r':
			continue
		default:
			return false
		}
	}
	return false
}
