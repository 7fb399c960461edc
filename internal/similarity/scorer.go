package similarity

import (
	"fmt"
	"math"

	"harshagw/relevance/internal/norm"
)

// kernel is the document-dependent part of a model: the term frequency
// component given the raw frequency and the cached length factor.
type kernel func(freq, n float64) float64

// logTF is 1 + ln(freq) for freq >= 1 and linear below, so fractional
// frequencies from sloppy phrases stay positive.
func logTF(freq float64) float64 {
	if freq < 1 {
		return freq
	}
	return 1 + math.Log(freq)
}

// kernel is selected once per model so that the per-document path does not
// branch on the kind.
func (m *Model) kernel() kernel {
	k1, d := float64(m.k1), float64(m.d)
	switch m.kind {
	case L:
		return func(freq, n float64) float64 {
			if n == 0 {
				return k1 + 1
			}
			t := d + freq/n
			return (k1 + 1) * t / (k1 + t)
		}
	case Plus:
		return func(freq, n float64) float64 {
			return (k1+1)*freq/(freq+n) + d
		}
	case Ltc:
		return func(freq, n float64) float64 {
			return logTF(freq) * n
		}
	case Lnc:
		return func(freq, n float64) float64 {
			return math.Sqrt(logTF(freq)) * n
		}
	case Ldp:
		// the double log goes negative once freq/n+d drops below
		// e^(1/e-1), which long documents reach with the default d
		return func(freq, n float64) float64 {
			return max(0, 1+math.Log(1+math.Log(freq/n+d)))
		}
	default:
		return func(freq, n float64) float64 {
			return (k1 + 1) * freq / (freq + n)
		}
	}
}

// Scorer scores documents for one Weight. It holds no per-document state.
type Scorer struct {
	w *Weight
}

// Score returns boost * idf * tf for a document with the given term
// frequency and stored norm byte.
func (s *Scorer) Score(freq float32, normByte byte) float32 {
	w := s.w
	return float32(w.weight * w.kernel(float64(freq), float64(w.norms[normByte])))
}

// Explain breaks Score down into its factors. freq is usually a single node
// holding the raw frequency; phrase scorers may attach their own details.
// The root value always equals Score(freq.Value, normByte).
func (s *Scorer) Explain(freq Explanation, normByte byte) Explanation {
	w := s.w
	tf := w.kernel(float64(freq.Value), float64(w.norms[normByte]))

	details := make([]Explanation, 0, 3)
	if w.boost != 1 {
		details = append(details, Match(w.boost, "boost"))
	}
	details = append(details, w.idf, s.explainTF(freq, normByte, float32(tf)))

	return Match(float32(w.weight*tf),
		fmt.Sprintf("score(freq=%s), computed as boost * idf * tf from:", formatFloat(freq.Value)),
		details...)
}

func (s *Scorer) explainTF(freq Explanation, normByte byte, tf float32) Explanation {
	w := s.w
	m := &w.model
	dl := s.explainLength(normByte)
	avgdl := Match(w.avgdl, "avgdl, average length of field")
	k1 := Match(m.k1, "k1, term saturation parameter")
	b := Match(m.b, "b, length normalization parameter")
	d := Match(m.d, "d, lower bound of the term frequency component")

	switch m.kind {
	case L:
		n := w.norms[normByte]
		shifted := Match(float32(float64(m.d)+float64(freq.Value)/float64(n)),
			"ctd, computed as d + freq / (1 - b + b * dl / avgdl) from:",
			freq, d, b, dl, avgdl)
		return Match(tf, "tf, computed as (k1 + 1) * ctd / (k1 + ctd) from:", shifted, k1)
	case Plus:
		return Match(tf, "tf, computed as (k1 + 1) * freq / (freq + k1 * (1 - b + b * dl / avgdl)) + d from:",
			freq, k1, b, dl, avgdl, d)
	case Ltc, Lnc:
		lt := logTF(float64(freq.Value))
		desc := "tf, computed as 1 + log(freq) from:"
		if m.kind == Lnc {
			lt = math.Sqrt(lt)
			desc = "tf, computed as sqrt(1 + log(freq)) from:"
		}
		return Match(tf, "tf * lengthNorm, product of:",
			Match(float32(lt), desc, freq),
			Match(w.norms[normByte], "lengthNorm, computed as 1 / sqrt(1 + log(dl)) from:", dl))
	case Ldp:
		return Match(tf, "tf, computed as max(0, 1 + log(1 + log(freq / (1 - b + b * dl / avgdl) + d))) from:",
			freq, b, dl, avgdl, d)
	default:
		return Match(tf, "tf, computed as freq / (freq + k1 * (1 - b + b * dl / avgdl)) * (k1 + 1) from:",
			freq, k1, b, dl, avgdl)
	}
}

func (s *Scorer) explainLength(normByte byte) Explanation {
	if norm.IsExact(normByte) {
		return Match(normLength(normByte), "dl, length of field")
	}
	return Match(normLength(normByte), "dl, length of field (approximate)")
}
