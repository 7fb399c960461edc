// Package analysis turns field text into positioned tokens.
package analysis

import (
	"slices"
	"strings"
	"unicode"

	"harshagw/relevance/internal/similarity"
)

// Token is a term and the position it occupies in the field. Tokens that
// share a position with the previous token are overlaps.
type Token struct {
	Term     string
	Position uint64
}

// Analyzer turns text into tokens ordered by position.
type Analyzer interface {
	Analyze(text string) []Token
}

// Simple lowercases and splits on anything that is not a letter or digit.
type Simple struct{}

func NewSimple() *Simple {
	return &Simple{}
}

func (a *Simple) Analyze(text string) []Token {
	var tokens []Token
	var position uint64

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		tokens = append(tokens, Token{Term: w, Position: position})
		position++
	}
	return tokens
}

// Synonyms wraps another analyzer and emits the synonyms of every token at
// the same position as the token itself.
type Synonyms struct {
	base     Analyzer
	synonyms map[string][]string
}

// NewSynonyms returns an analyzer that expands terms using synonyms. Keys
// and values are run through base so they match what it produces, and each
// key keeps one copy of every distinct alternate.
func NewSynonyms(base Analyzer, synonyms map[string][]string) *Synonyms {
	normalized := make(map[string][]string, len(synonyms))
	for term, alts := range synonyms {
		key := normalizeTerm(base, term)
		if key == "" {
			continue
		}
		for _, alt := range alts {
			v := normalizeTerm(base, alt)
			if v == "" || v == key || slices.Contains(normalized[key], v) {
				continue
			}
			normalized[key] = append(normalized[key], v)
		}
	}
	return &Synonyms{base: base, synonyms: normalized}
}

func normalizeTerm(a Analyzer, term string) string {
	tokens := a.Analyze(term)
	if len(tokens) != 1 {
		return ""
	}
	return tokens[0].Term
}

func (a *Synonyms) Analyze(text string) []Token {
	tokens := a.base.Analyze(text)
	if len(a.synonyms) == 0 {
		return tokens
	}
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok)
		for _, alt := range a.synonyms[tok.Term] {
			out = append(out, Token{Term: alt, Position: tok.Position})
		}
	}
	return out
}

// InvertState summarizes a field's tokens for norm computation.
func InvertState(field string, tokens []Token, boost float32) similarity.FieldInvertState {
	state := similarity.FieldInvertState{
		Field:  field,
		Length: uint32(len(tokens)),
		Boost:  boost,
	}
	for i := 1; i < len(tokens); i++ {
		if tokens[i].Position == tokens[i-1].Position {
			state.NumOverlap++
		}
	}
	return state
}
