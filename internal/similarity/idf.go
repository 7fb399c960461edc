package similarity

import "math"

// IDF returns the inverse document frequency of a term that occurs in
// docFreq of docCount documents. docFreq is clamped to docCount.
func (m *Model) IDF(docFreq, docCount uint64) float32 {
	if docFreq > docCount {
		docFreq = docCount
	}
	n, N := float64(docFreq), float64(docCount)
	if m.idf == idfClassic {
		return float32(math.Log((N+1)/(n+1)) + 1)
	}
	return float32(math.Log1p((N - n + 0.5) / (n + 0.5)))
}

func (m *Model) idfDescription() string {
	if m.idf == idfClassic {
		return "idf, computed as log((N + 1) / (n + 1)) + 1 from:"
	}
	return "idf, computed as log(1 + (N - n + 0.5) / (n + 0.5)) from:"
}

func (m *Model) explainTermIDF(coll CollectionStatistics, term TermStatistics) Explanation {
	df := min(term.DocFreq, coll.DocCount)
	return Match(m.IDF(df, coll.DocCount), m.idfDescription(),
		Match(float32(df), "n, number of documents containing term"),
		Match(float32(coll.DocCount), "N, total number of documents with field"))
}

// explainIDF sums per-term idfs for phrase and multi-term weights.
func (m *Model) explainIDF(coll CollectionStatistics, terms []TermStatistics) Explanation {
	if len(terms) == 1 {
		return m.explainTermIDF(coll, terms[0])
	}
	var sum float64
	details := make([]Explanation, 0, len(terms))
	for _, t := range terms {
		e := m.explainTermIDF(coll, t)
		sum += float64(e.Value)
		details = append(details, e)
	}
	return Match(float32(sum), "idf, sum of:", details...)
}
