package similarity

import (
	"fmt"
	"math"

	"harshagw/relevance/internal/norm"
)

// lengthNormTable holds 1/sqrt(1 + ln(dl)) for every norm byte. It depends
// on nothing but the codec, so it is shared by all Ltc and Lnc weights.
var lengthNormTable = buildLengthNormTable()

func buildLengthNormTable() *[256]float32 {
	var table [256]float32
	for i := range table {
		dl := float64(normLength(byte(i)))
		table[i] = float32(1 / math.Sqrt(1+math.Log(dl)))
	}
	return &table
}

// normLength is the decoded length of b, floored at 1 so that an empty
// field normalizes like a one-token field.
func normLength(b byte) float32 {
	if dl := norm.Decode(b); dl > 1 {
		return dl
	}
	return 1
}

// Weight is everything about a query term that does not depend on the
// document. Build it once per term per query; it is safe to share.
type Weight struct {
	model Model
	field string
	boost float32
	idf   Explanation
	avgdl float32

	// norms maps a norm byte to the model's per-document length factor:
	// k1 * (1 - b + b * dl / avgdl) for BM25, BM25+ and Robertson,
	// (1 - b + b * dl / avgdl) for BM25L and Ldp, and the shared
	// lengthNormTable for Ltc and Lnc.
	norms  *[256]float32
	weight float64
	kernel kernel
}

// BuildWeight prepares m to score the given terms of coll.Field. Several
// terms (a phrase) are scored as one unit whose idf is the sum of theirs.
func BuildWeight(m *Model, boost float32, coll CollectionStatistics, terms ...TermStatistics) (*Weight, error) {
	if m == nil {
		return nil, fmt.Errorf("nil model: %w", ErrInvalidParameter)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, ErrNoTermStatistics
	}
	if math.IsNaN(float64(boost)) || math.IsInf(float64(boost), 0) || boost < 0 {
		return nil, &ConfigError{Model: m.name(), Param: "boost", Value: boost, Range: "a non-negative finite value"}
	}

	w := &Weight{
		model:  *m,
		field:  coll.Field,
		boost:  boost,
		idf:    m.explainIDF(coll, terms),
		avgdl:  avgFieldLength(coll),
		kernel: m.kernel(),
	}
	w.weight = float64(boost) * float64(w.idf.Value)
	if m.usesNormCache() {
		w.norms = m.normCache(w.avgdl)
	} else {
		w.norms = lengthNormTable
	}
	return w, nil
}

func avgFieldLength(coll CollectionStatistics) float32 {
	if coll.SumTotalTermFreq == 0 || coll.DocCount == 0 {
		return 1
	}
	return float32(float64(coll.SumTotalTermFreq) / float64(coll.DocCount))
}

func (m *Model) normCache(avgdl float32) *[256]float32 {
	var cache [256]float32
	for i := range cache {
		cache[i] = m.lengthFactor(byte(i), avgdl)
	}
	return &cache
}

func (m *Model) lengthFactor(b byte, avgdl float32) float32 {
	k := 1 - float64(m.b) + float64(m.b)*float64(normLength(b))/float64(avgdl)
	if m.scalesNormByK1() {
		k *= float64(m.k1)
	}
	return float32(k)
}

// Scorer returns a scorer for this weight.
func (w *Weight) Scorer() *Scorer {
	return &Scorer{w: w}
}

func (w *Weight) Model() *Model {
	m := w.model
	return &m
}

func (w *Weight) Field() string           { return w.field }
func (w *Weight) Boost() float32          { return w.boost }
func (w *Weight) IDF() Explanation        { return w.idf }
func (w *Weight) AvgFieldLength() float32 { return w.avgdl }

// LengthFactor returns the cached normalization factor for a norm byte.
func (w *Weight) LengthFactor(b byte) float32 {
	return w.norms[b]
}
