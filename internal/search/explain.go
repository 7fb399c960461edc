package search

import (
	"fmt"

	"harshagw/relevance/internal/index"
	"harshagw/relevance/internal/similarity"
)

// Explain describes how the document docID scores for text, a term or a
// phrase, in field. With an empty field the best scoring field is
// explained. The root value equals the score Search gives the document.
// A document that does not match gets a zero-valued explanation.
func (s *Searcher) Explain(text, field, docID string, boost float32) (similarity.Explanation, error) {
	if s.metrics != nil {
		s.metrics.ExplainsTotal.Inc()
	}

	r, docNum, ok := s.locate(docID)
	if !ok {
		return similarity.Explanation{}, fmt.Errorf("%s: %w", docID, ErrDocNotFound)
	}

	terms, offsets := s.analyze(text)
	var best *similarity.Explanation
	for _, f := range s.fields(field) {
		e, ok, err := s.explainField(r, docNum, f, terms, offsets, boost)
		if err != nil {
			return similarity.Explanation{}, fmt.Errorf("field %s: %w", f, err)
		}
		if ok && (best == nil || e.Value > best.Value) {
			best = &e
		}
	}
	if best == nil {
		return similarity.Match(0, fmt.Sprintf("no matching term for %q in %s", text, docID)), nil
	}
	return *best, nil
}

func (s *Searcher) explainField(r index.Reader, docNum uint64, field string, terms []string, offsets []uint64, boost float32) (similarity.Explanation, bool, error) {
	if len(terms) == 0 {
		return similarity.Explanation{}, false, nil
	}
	w, err := s.weight(field, terms, boost)
	if err != nil || w == nil {
		return similarity.Explanation{}, false, err
	}

	matches, err := matchReader(r, field, terms, offsets)
	if err != nil {
		return similarity.Explanation{}, false, err
	}
	var freq float32
	for _, m := range matches {
		if m.docNum == docNum {
			freq = m.freq
			break
		}
	}
	if freq == 0 {
		return similarity.Explanation{}, false, nil
	}

	freqDesc := "freq, occurrences of term within document"
	if len(terms) > 1 {
		freqDesc = "phraseFreq, occurrences of phrase within document"
	}
	score := w.Scorer().Explain(similarity.Match(freq, freqDesc), r.Norm(field, docNum))
	return similarity.Match(score.Value,
		fmt.Sprintf("weight(%s in %d) [%s], result of:", describe(field, terms), docNum, s.Model()),
		score), true, nil
}
