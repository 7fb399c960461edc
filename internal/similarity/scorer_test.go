package similarity

import (
	"math"
	"strings"
	"sync"
	"testing"

	"harshagw/relevance/internal/norm"
)

// scenarioStats puts the average field length at 96, which is exactly what
// a 100-token field decodes to.
var scenarioStats = CollectionStatistics{Field: "body", MaxDoc: 1000, DocCount: 1000, SumTotalTermFreq: 96000}

func allModels(t *testing.T) []*Model {
	t.Helper()
	models := make([]*Model, 0, 8)
	for k := Classic; k <= Ldp; k++ {
		models = append(models, mustDefault(t, k))
	}
	return append(models, NewLncLpc())
}

func TestScorer_Scenarios(t *testing.T) {
	normAt100 := mustDefault(t, Classic).ComputeNorm(FieldInvertState{Length: 100, Boost: 1})
	if got := norm.DecodeLength(normAt100); got != 96 {
		t.Fatalf("length 100 decodes to %d, want 96", got)
	}
	term := TermStatistics{Term: "fox", DocFreq: 10}

	tests := []struct {
		kind Kind
		want float64
	}{
		{Classic, 7.161596775},
		{L, 7.466345787},
		{Plus, 11.718976974},
		{Robertson, 8.659922600},
		{Ldp, 8.258689880},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			w := mustWeight(t, mustDefault(t, tt.kind), 1, scenarioStats, term)
			assertClose(t, "score", float64(w.Scorer().Score(3, normAt100)), tt.want)
		})
	}
}

func TestScorer_BM25Components(t *testing.T) {
	w := mustWeight(t, mustDefault(t, Classic), 1, scenarioStats, TermStatistics{DocFreq: 10})
	b := norm.Encode(100, 1)

	exp := w.Scorer().Explain(Match(3, "freq, occurrences of term within document"), b)
	if len(exp.Details) != 2 {
		t.Fatalf("root has %d details, want idf and tf", len(exp.Details))
	}
	assertClose(t, "idf", float64(exp.Details[0].Value), 4.557379722)
	assertClose(t, "tf", float64(exp.Details[1].Value), 1.571428588)
}

func TestScorer_LtcScenario(t *testing.T) {
	coll := CollectionStatistics{Field: "body", MaxDoc: 100, DocCount: 100, SumTotalTermFreq: 5000}
	term := TermStatistics{DocFreq: 5}
	b := NewLtc().ComputeNorm(FieldInvertState{Length: 50, Boost: 1})
	if got := norm.DecodeLength(b); got != 50 {
		t.Fatalf("length 50 decodes to %d", got)
	}

	ltc := mustWeight(t, NewLtc(), 1, coll, term)
	assertClose(t, "ltc", float64(ltc.Scorer().Score(4, b)), 4.116604805)
	assertClose(t, "lengthNorm", float64(ltc.LengthFactor(b)), 0.451200753)

	lnc := mustWeight(t, NewLnc(), 1, coll, term)
	assertClose(t, "lnc", float64(lnc.Scorer().Score(4, b)), 2.664876938)

	lpc := mustWeight(t, NewLncLpc(), 1, coll, term)
	assertClose(t, "lnclpc", float64(lpc.Scorer().Score(4, b)), 2.028525114)
}

func TestScorer_Boost(t *testing.T) {
	m := mustDefault(t, Classic)
	term := TermStatistics{DocFreq: 10}
	b := norm.Encode(100, 1)

	one := mustWeight(t, m, 1, scenarioStats, term).Scorer().Score(3, b)
	two := mustWeight(t, m, 2.5, scenarioStats, term).Scorer().Score(3, b)
	assertClose(t, "boosted score", float64(two), 2.5*float64(one))

	zero := mustWeight(t, m, 0, scenarioStats, term).Scorer().Score(3, b)
	if zero != 0 {
		t.Errorf("zero boost score = %v", zero)
	}
}

func TestScorer_IncreasesWithFreq(t *testing.T) {
	b := norm.Encode(100, 1)
	for _, m := range allModels(t) {
		s := mustWeight(t, m, 1, scenarioStats, TermStatistics{DocFreq: 10}).Scorer()
		prev := s.Score(0.25, b)
		for f := float32(0.5); f <= 50; f += 0.5 {
			cur := s.Score(f, b)
			if cur <= prev {
				t.Fatalf("%v: Score(%v) = %v not above Score(%v) = %v", m, f, cur, f-0.5, prev)
			}
			prev = cur
		}
	}
}

func TestScorer_DecreasesWithLength(t *testing.T) {
	for _, m := range allModels(t) {
		s := mustWeight(t, m, 1, scenarioStats, TermStatistics{DocFreq: 10}).Scorer()
		prev := s.Score(3, 1)
		for code := 2; code <= 200; code++ {
			cur := s.Score(3, byte(code))
			if cur >= prev {
				t.Fatalf("%v: Score at norm %d = %v not below norm %d = %v", m, code, cur, code-1, prev)
			}
			prev = cur
		}
	}
}

func TestScorer_LengthIgnoredWhenBIsZero(t *testing.T) {
	builders := []func() (*Model, error){
		func() (*Model, error) { return NewBM25(1.2, 0) },
		func() (*Model, error) { return NewBM25L(1.2, 0, 0.5) },
		func() (*Model, error) { return NewBM25Plus(1.2, 0, 1) },
		func() (*Model, error) { return NewRobertson(1.2, 0) },
		func() (*Model, error) { return NewLdp(0, 0.5) },
	}
	for _, build := range builders {
		m, err := build()
		if err != nil {
			t.Fatal(err)
		}
		s := mustWeight(t, m, 1, scenarioStats, TermStatistics{DocFreq: 10}).Scorer()
		want := s.Score(3, 0)
		for code := 1; code < 256; code++ {
			if got := s.Score(3, byte(code)); got != want {
				t.Fatalf("%v: Score at norm %d = %v, want %v", m, code, got, want)
			}
		}
	}
}

func TestScorer_FiniteEverywhere(t *testing.T) {
	stats := []CollectionStatistics{
		scenarioStats,
		{},
		{DocCount: 1, SumTotalTermFreq: 1},
		{DocCount: math.MaxUint32, SumTotalTermFreq: math.MaxUint64},
	}
	freqs := []float32{0.01, 0.5, 1, 2, 1000, 1 << 24}
	models := append(allModels(t), mustLdp(t, 0.75, 0.37), mustLdp(t, 1, 1.5))
	for _, m := range models {
		for _, coll := range stats {
			for _, df := range []uint64{1, coll.DocCount / 2, coll.DocCount} {
				s := mustWeight(t, m, 1, coll, TermStatistics{DocFreq: df}).Scorer()
				for code := 0; code < 256; code++ {
					for _, f := range freqs {
						v := float64(s.Score(f, byte(code)))
						if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
							t.Fatalf("%v: Score(%v, %d) = %v with df=%d %+v", m, f, code, v, df, coll)
						}
					}
				}
			}
		}
	}
}

func mustLdp(t *testing.T, b, d float32) *Model {
	t.Helper()
	m, err := NewLdp(b, d)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestScorer_LdpLongDocuments(t *testing.T) {
	// average length 10
	coll := CollectionStatistics{Field: "body", MaxDoc: 100, DocCount: 100, SumTotalTermFreq: 1000}
	term := TermStatistics{Term: "fox", DocFreq: 10}

	tests := []struct {
		model    *Model
		length   uint32
		positive bool
	}{
		{mustDefault(t, Ldp), 10, true},
		{mustDefault(t, Ldp), 1000, false},
		{mustDefault(t, Ldp), 10000, false},
		{mustLdp(t, 0.75, 0.37), 10000, false},
	}
	for _, tt := range tests {
		s := mustWeight(t, tt.model, 1, coll, term).Scorer()
		normByte := norm.Encode(tt.length, 1)
		score := s.Score(1, normByte)
		if score < 0 || (score > 0) != tt.positive {
			t.Errorf("%v dl=%d: Score = %v, want positive=%v", tt.model, tt.length, score, tt.positive)
		}
		if exp := s.Explain(Match(1, "freq"), normByte); exp.Value != score {
			t.Errorf("%v dl=%d: Explain = %v, Score = %v", tt.model, tt.length, exp.Value, score)
		}
	}
}

func TestScorer_ExplainMatchesScore(t *testing.T) {
	freqs := []float32{0.5, 1, 2, 3, 17, 1000}
	for _, m := range allModels(t) {
		for _, boost := range []float32{1, 0.3, 4} {
			s := mustWeight(t, m, boost, scenarioStats, TermStatistics{DocFreq: 10}).Scorer()
			for code := 0; code < 256; code++ {
				for _, f := range freqs {
					score := s.Score(f, byte(code))
					exp := s.Explain(Match(f, "freq"), byte(code))
					if exp.Value != score {
						t.Fatalf("%v boost=%v: Explain(%v, %d) = %v, Score = %v", m, boost, f, code, exp.Value, score)
					}
				}
			}
		}
	}
}

func TestScorer_ExplainLabels(t *testing.T) {
	w := mustWeight(t, mustDefault(t, Classic), 2, scenarioStats, TermStatistics{Term: "fox", DocFreq: 10})
	s := w.Scorer()

	exp := s.Explain(Match(3, "freq, occurrences of term within document"), norm.Encode(100, 1))
	out := exp.String()
	for _, want := range []string{
		"score(freq=3), computed as boost * idf * tf from:",
		"2 = boost",
		"idf, computed as log(1 + (N - n + 0.5) / (n + 0.5)) from:",
		"10 = n, number of documents containing term",
		"1000 = N, total number of documents with field",
		"1.2 = k1, term saturation parameter",
		"0.75 = b, length normalization parameter",
		"96 = dl, length of field (approximate)",
		"96 = avgdl, average length of field",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("explanation missing %q:\n%s", want, out)
		}
	}

	exact := s.Explain(Match(1, "freq"), norm.Encode(12, 1)).String()
	if !strings.Contains(exact, "12 = dl, length of field\n") {
		t.Errorf("short field should be exact:\n%s", exact)
	}
}

func TestScorer_ExplainPerModelLabels(t *testing.T) {
	tests := []struct {
		kind Kind
		want []string
	}{
		{L, []string{"ctd, computed as d + freq / (1 - b + b * dl / avgdl) from:", "0.5 = d, lower bound"}},
		{Plus, []string{"+ d from:", "1 = d, lower bound"}},
		{Ltc, []string{"tf * lengthNorm, product of:", "tf, computed as 1 + log(freq) from:", "lengthNorm, computed as 1 / sqrt(1 + log(dl)) from:"}},
		{Lnc, []string{"tf, computed as sqrt(1 + log(freq)) from:"}},
		{Ldp, []string{"tf, computed as max(0, 1 + log(1 + log(freq / (1 - b + b * dl / avgdl) + d))) from:"}},
		{Robertson, []string{"idf, computed as log((N + 1) / (n + 1)) + 1 from:"}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			s := mustWeight(t, mustDefault(t, tt.kind), 1, scenarioStats, TermStatistics{DocFreq: 10}).Scorer()
			out := s.Explain(Match(3, "freq"), norm.Encode(100, 1)).String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("explanation missing %q:\n%s", want, out)
				}
			}
			if strings.Contains(out, "= boost\n") {
				t.Errorf("unit boost should not be explained:\n%s", out)
			}
		})
	}
}

func TestScorer_SharedAcrossGoroutines(t *testing.T) {
	w := mustWeight(t, mustDefault(t, L), 1.5, scenarioStats, TermStatistics{DocFreq: 10})

	var want [256]float32
	for code := range want {
		want[code] = w.Scorer().Score(3, byte(code))
	}

	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := w.Scorer()
			for round := 0; round < 50; round++ {
				for code := 0; code < 256; code++ {
					if got := s.Score(3, byte(code)); got != want[code] {
						errs <- "score changed under concurrency"
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
}
