package search

import (
	"cmp"
	"slices"

	"harshagw/relevance/internal/index"
)

// PhraseSearch searches for an exact phrase in a field.
// If field is empty, searches all fields. The phrase frequency of a
// document is the number of places the whole phrase starts, and its idf
// is the sum of the idfs of its terms.
func (s *Searcher) PhraseSearch(phrase, field string, boost float32) ([]Result, error) {
	terms, offsets := s.analyze(phrase)
	return s.searchAcross(terms, offsets, field, boost)
}

func matchPhrase(r index.Reader, field string, terms []string, offsets []uint64) ([]match, error) {
	docPositions := make(map[uint64][][]uint64)
	for i, term := range terms {
		postings, err := r.Search(term, field)
		if err != nil {
			return nil, err
		}
		if len(postings) == 0 {
			return nil, nil
		}
		if i == 0 {
			for _, p := range postings {
				positions := make([][]uint64, len(terms))
				positions[0] = p.Positions
				docPositions[p.DocNum] = positions
			}
			continue
		}
		found := make(map[uint64]bool, len(postings))
		for _, p := range postings {
			if positions, ok := docPositions[p.DocNum]; ok {
				positions[i] = p.Positions
				found[p.DocNum] = true
			}
		}
		for docNum := range docPositions {
			if !found[docNum] {
				delete(docPositions, docNum)
			}
		}
	}

	var matches []match
	for docNum, positions := range docPositions {
		if freq := phraseFreq(positions, offsets); freq > 0 {
			matches = append(matches, match{docNum: docNum, freq: float32(freq)})
		}
	}
	slices.SortFunc(matches, func(a, b match) int {
		return cmp.Compare(a.docNum, b.docNum)
	})
	return matches, nil
}

// phraseFreq counts the start positions of the first term at which every
// other term sits at its offset. Positions are sorted ascending.
func phraseFreq(positions [][]uint64, offsets []uint64) int {
	if len(positions) == 0 {
		return 0
	}

	var freq int
	for _, start := range positions[0] {
		ok := true
		for i := 1; i < len(positions); i++ {
			if _, found := slices.BinarySearch(positions[i], start+offsets[i]); !found {
				ok = false
				break
			}
		}
		if ok {
			freq++
		}
	}
	return freq
}
