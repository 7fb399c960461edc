package similarity

import (
	"fmt"
	"math"
	"strings"

	"harshagw/relevance/internal/norm"
)

// Kind names a ranking function.
type Kind int

const (
	Classic Kind = iota
	L
	Plus
	Robertson
	Ltc
	Lnc
	Ldp
)

var kindNames = [...]string{
	Classic:   "bm25",
	L:         "bm25l",
	Plus:      "bm25plus",
	Robertson: "robertson",
	Ltc:       "ltc",
	Lnc:       "lnc",
	Ldp:       "ldp",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind accepts the name returned by Kind.String, case-insensitively,
// plus a few common aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bm25", "classic", "":
		return Classic, nil
	case "bm25l", "l":
		return L, nil
	case "bm25plus", "bm25+", "plus":
		return Plus, nil
	case "robertson":
		return Robertson, nil
	case "ltc":
		return Ltc, nil
	case "lnc", "lncltc", "lnclpc":
		return Lnc, nil
	case "ldp":
		return Ldp, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

const (
	DefaultK1 float32 = 1.2
	DefaultB  float32 = 0.75
	// DefaultD is the lower-bound shift used by BM25L and Ldp.
	DefaultD float32 = 0.5
	// DefaultPlusD is the lower-bound shift used by BM25+.
	DefaultPlusD float32 = 1.0

	maxD = 1.5
)

type idfFamily int

const (
	// ln(1 + (N - n + 0.5) / (n + 0.5))
	idfProbabilistic idfFamily = iota
	// ln((N + 1) / (n + 1)) + 1
	idfClassic
)

// Model is a configured ranking function. The zero value is not useful;
// use one of the constructors.
type Model struct {
	kind             Kind
	k1, b, d         float32
	idf              idfFamily
	discountOverlaps bool
}

// Option customizes a Model at construction.
type Option func(*Model)

// WithDiscountOverlaps controls whether tokens with a position increment of
// zero count towards the field length. Defaults to true.
func WithDiscountOverlaps(discount bool) Option {
	return func(m *Model) {
		m.discountOverlaps = discount
	}
}

func newModel(kind Kind, k1, b, d float32, idf idfFamily, opts []Option) (*Model, error) {
	m := &Model{
		kind:             kind,
		k1:               k1,
		b:                b,
		d:                d,
		idf:              idf,
		discountOverlaps: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewBM25 returns classic BM25.
func NewBM25(k1, b float32, opts ...Option) (*Model, error) {
	return newModel(Classic, k1, b, 0, idfProbabilistic, opts)
}

// NewBM25L returns BM25L, which shifts the normalized term frequency by d
// so that long documents are not over-penalized.
func NewBM25L(k1, b, d float32, opts ...Option) (*Model, error) {
	return newModel(L, k1, b, d, idfProbabilistic, opts)
}

// NewBM25Plus returns BM25+, which adds a lower bound d to the term
// frequency component.
func NewBM25Plus(k1, b, d float32, opts ...Option) (*Model, error) {
	return newModel(Plus, k1, b, d, idfProbabilistic, opts)
}

// NewRobertson returns BM25 with the classic tf-idf idf.
func NewRobertson(k1, b float32, opts ...Option) (*Model, error) {
	return newModel(Robertson, k1, b, 0, idfClassic, opts)
}

// NewLtc returns log tf, classic idf and cosine length normalization.
func NewLtc(opts ...Option) *Model {
	m, _ := newModel(Ltc, 0, 0, 0, idfClassic, opts)
	return m
}

// NewLnc returns the Lnc document weighting paired with the classic idf.
func NewLnc(opts ...Option) *Model {
	m, _ := newModel(Lnc, 0, 0, 0, idfClassic, opts)
	return m
}

// NewLncLpc returns the Lnc document weighting paired with the
// probabilistic idf.
func NewLncLpc(opts ...Option) *Model {
	m, _ := newModel(Lnc, 0, 0, 0, idfProbabilistic, opts)
	return m
}

// NewLdp returns the double-log pivoted normalization model.
func NewLdp(b, d float32, opts ...Option) (*Model, error) {
	return newModel(Ldp, 0, b, d, idfProbabilistic, opts)
}

// Default returns kind with its default parameters.
func Default(kind Kind, opts ...Option) (*Model, error) {
	switch kind {
	case Classic:
		return NewBM25(DefaultK1, DefaultB, opts...)
	case L:
		return NewBM25L(DefaultK1, DefaultB, DefaultD, opts...)
	case Plus:
		return NewBM25Plus(DefaultK1, DefaultB, DefaultPlusD, opts...)
	case Robertson:
		return NewRobertson(DefaultK1, DefaultB, opts...)
	case Ltc:
		return NewLtc(opts...), nil
	case Lnc:
		return NewLnc(opts...), nil
	case Ldp:
		return NewLdp(DefaultB, DefaultD, opts...)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownModel, kind)
}

func (m *Model) validate() error {
	if m.kind < 0 || int(m.kind) >= len(kindNames) {
		return fmt.Errorf("%w: %v", ErrUnknownModel, m.kind)
	}
	name := m.name()
	switch m.kind {
	case Classic, L, Plus, Robertson:
		if math.IsInf(float64(m.k1), 0) || math.IsNaN(float64(m.k1)) || m.k1 < 0 {
			return &ConfigError{Model: name, Param: "k1", Value: m.k1, Range: "a non-negative finite value"}
		}
	}
	switch m.kind {
	case Classic, L, Plus, Robertson, Ldp:
		if math.IsNaN(float64(m.b)) || m.b < 0 || m.b > 1 {
			return &ConfigError{Model: name, Param: "b", Value: m.b, Range: "between 0 and 1"}
		}
	}
	switch m.kind {
	case L, Plus:
		if math.IsNaN(float64(m.d)) || m.d < 0 || m.d > maxD {
			return &ConfigError{Model: name, Param: "d", Value: m.d, Range: "between 0 and 1.5"}
		}
	case Ldp:
		// ln(d) must stay above -1 for the double log to be defined
		if math.IsNaN(float64(m.d)) || float64(m.d) <= 1/math.E || m.d > maxD {
			return &ConfigError{Model: name, Param: "d", Value: m.d, Range: "above 1/e and at most 1.5"}
		}
	}
	return nil
}

func (m *Model) name() string {
	switch m.kind {
	case Classic:
		return "BM25"
	case L:
		return "BM25L"
	case Plus:
		return "BM25PLUS"
	case Robertson:
		return "Robertson"
	case Ltc:
		return "LtcSimilarity"
	case Lnc:
		if m.idf == idfProbabilistic {
			return "LncLpcSimilarity"
		}
		return "LncLtcSimilarity"
	case Ldp:
		return "LdpSimilarity"
	}
	return m.kind.String()
}

// String returns the model name and its parameters, e.g.
// "BM25(k1=1.2,b=0.75)".
func (m *Model) String() string {
	name := m.name()
	switch m.kind {
	case Classic, Robertson:
		return fmt.Sprintf("%s(k1=%s,b=%s)", name, formatFloat(m.k1), formatFloat(m.b))
	case L, Plus:
		return fmt.Sprintf("%s(k1=%s,b=%s,d=%s)", name, formatFloat(m.k1), formatFloat(m.b), formatFloat(m.d))
	case Ldp:
		return fmt.Sprintf("%s(b=%s,d=%s)", name, formatFloat(m.b), formatFloat(m.d))
	}
	return name
}

func (m *Model) Kind() Kind             { return m.kind }
func (m *Model) K1() float32            { return m.k1 }
func (m *Model) B() float32             { return m.b }
func (m *Model) D() float32             { return m.d }
func (m *Model) DiscountOverlaps() bool { return m.discountOverlaps }
func (m *Model) usesNormCache() bool    { return m.kind != Ltc && m.kind != Lnc }
func (m *Model) scalesNormByK1() bool   { return m.kind == Classic || m.kind == Robertson || m.kind == Plus }

// ComputeNorm returns the norm byte to store for one field of one document.
func (m *Model) ComputeNorm(state FieldInvertState) byte {
	length := state.Length
	if m.discountOverlaps {
		if state.NumOverlap >= length {
			length = 0
		} else {
			length -= state.NumOverlap
		}
	}
	return norm.Encode(length, state.Boost)
}
