package search

import (
	"strings"
)

// Search scores a single term, optionally restricted to one field. The
// text goes through the index analyzer; if it yields several tokens the
// search becomes a phrase search.
func (s *Searcher) Search(term, field string, boost float32) ([]Result, error) {
	terms, offsets := s.analyze(term)
	return s.searchAcross(terms, offsets, field, boost)
}

// analyze runs text through the index analyzer and keeps the first token
// at each position. Offsets are relative to the first token. Synonyms are
// expanded at index time, so the extra tokens an analyzer stacks on a
// position are not needed to match.
func (s *Searcher) analyze(text string) ([]string, []uint64) {
	tokens := s.snapshot.Analyzer().Analyze(text)
	var terms []string
	var offsets []uint64
	for i, tok := range tokens {
		if i > 0 && tok.Position == tokens[i-1].Position {
			continue
		}
		terms = append(terms, tok.Term)
		offsets = append(offsets, tok.Position-tokens[0].Position)
	}
	return terms, offsets
}

func describe(field string, terms []string) string {
	if len(terms) == 1 {
		return field + ":" + terms[0]
	}
	return field + `:"` + strings.Join(terms, " ") + `"`
}
