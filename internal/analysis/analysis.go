// Package analysis turns field text into the terms written to the inverted
// index. Analyzers are stateless and safe for concurrent use.
package analysis

import (
	"strings"
	"unicode"
)

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Analyzer breaks text into tokens. Name identifies the analyzer to backends
// that run their own analysis chain.
type Analyzer interface {
	Name() string
	Tokenize(text string) []Token
}

// Simple splits on every non-letter rune and lower-cases what is left.
// Digits and punctuation are separators, so "r2d2" yields "r" and "d".
type Simple struct{}

func (Simple) Name() string { return "simple" }

func (Simple) Tokenize(text string) []Token {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	tokens := make([]Token, 0, len(words))
	for i, word := range words {
		tokens = append(tokens, Token{Term: strings.ToLower(word), Position: i})
	}
	return tokens
}

// ByName returns the analyzer registered under name.
func ByName(name string) (Analyzer, bool) {
	switch name {
	case "simple":
		return Simple{}, true
	case "english":
		return English{}, true
	default:
		return nil, false
	}
}

// Terms flattens tokens into their terms, mostly for tests and logging.
func Terms(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Term
	}
	return out
}
