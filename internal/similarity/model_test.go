package similarity

import (
	"errors"
	"math"
	"strings"
	"testing"

	"harshagw/relevance/internal/norm"
)

func TestModel_String(t *testing.T) {
	mustModel := func(m *Model, err error) *Model {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return m
	}

	tests := []struct {
		model *Model
		want  string
	}{
		{mustModel(NewBM25(1.2, 0.75)), "BM25(k1=1.2,b=0.75)"},
		{mustModel(NewBM25L(1.2, 0.75, 0.5)), "BM25L(k1=1.2,b=0.75,d=0.5)"},
		{mustModel(NewBM25Plus(1.2, 0.75, 1)), "BM25PLUS(k1=1.2,b=0.75,d=1)"},
		{mustModel(NewRobertson(2, 0)), "Robertson(k1=2,b=0)"},
		{NewLtc(), "LtcSimilarity"},
		{NewLnc(), "LncLtcSimilarity"},
		{NewLncLpc(), "LncLpcSimilarity"},
		{mustModel(NewLdp(0.75, 0.5)), "LdpSimilarity(b=0.75,d=0.5)"},
	}
	for _, tt := range tests {
		if got := tt.model.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestModel_Validation(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name  string
		build func() (*Model, error)
		param string
	}{
		{"negative k1", func() (*Model, error) { return NewBM25(-1, 0.75) }, "k1"},
		{"infinite k1", func() (*Model, error) { return NewBM25(inf, 0.75) }, "k1"},
		{"nan k1", func() (*Model, error) { return NewRobertson(nan, 0.75) }, "k1"},
		{"b above 1", func() (*Model, error) { return NewBM25(1.2, 1.01) }, "b"},
		{"negative b", func() (*Model, error) { return NewBM25L(1.2, -0.1, 0.5) }, "b"},
		{"nan b", func() (*Model, error) { return NewLdp(nan, 0.5) }, "b"},
		{"negative d", func() (*Model, error) { return NewBM25L(1.2, 0.75, -0.5) }, "d"},
		{"d above 1.5", func() (*Model, error) { return NewBM25Plus(1.2, 0.75, 1.6) }, "d"},
		{"ldp d below 1/e", func() (*Model, error) { return NewLdp(0.75, 0.36) }, "d"},
		{"ldp d of zero", func() (*Model, error) { return NewLdp(0.75, 0) }, "d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.build()
			if err == nil {
				t.Fatalf("expected error, got model %v", m)
			}
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("error %v does not wrap ErrInvalidParameter", err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error %v is not a *ConfigError", err)
			}
			if cfgErr.Param != tt.param {
				t.Errorf("Param = %q, want %q", cfgErr.Param, tt.param)
			}
		})
	}
}

func TestModel_ValidationMessage(t *testing.T) {
	_, err := NewBM25(1.2, 2)
	if err == nil {
		t.Fatal("expected error")
	}
	want := "BM25: illegal b value: 2, must be between 0 and 1"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestModel_BoundaryParametersAccepted(t *testing.T) {
	builders := []func() (*Model, error){
		func() (*Model, error) { return NewBM25(0, 0) },
		func() (*Model, error) { return NewBM25(100, 1) },
		func() (*Model, error) { return NewBM25L(1.2, 0.75, 0) },
		func() (*Model, error) { return NewBM25Plus(1.2, 0.75, 1.5) },
		func() (*Model, error) { return NewLdp(0, 1.5) },
		func() (*Model, error) { return NewLdp(1, 0.37) },
	}
	for i, build := range builders {
		if _, err := build(); err != nil {
			t.Errorf("builder %d: unexpected error: %v", i, err)
		}
	}
}

func TestDefault_AllKinds(t *testing.T) {
	for k := Classic; k <= Ldp; k++ {
		m, err := Default(k)
		if err != nil {
			t.Fatalf("Default(%v): %v", k, err)
		}
		if m.Kind() != k {
			t.Errorf("Default(%v).Kind() = %v", k, m.Kind())
		}
		if !m.DiscountOverlaps() {
			t.Errorf("Default(%v) should discount overlaps", k)
		}
	}

	plus, _ := Default(Plus)
	if plus.D() != 1 {
		t.Errorf("BM25+ default d = %v, want 1", plus.D())
	}
	l, _ := Default(L)
	if l.D() != 0.5 {
		t.Errorf("BM25L default d = %v, want 0.5", l.D())
	}

	if _, err := Default(Kind(42)); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Default(42) error = %v, want ErrUnknownModel", err)
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"bm25":      Classic,
		"BM25":      Classic,
		"classic":   Classic,
		"bm25l":     L,
		"bm25+":     Plus,
		"BM25Plus":  Plus,
		"robertson": Robertson,
		"ltc":       Ltc,
		" lnc ":     Lnc,
		"ldp":       Ldp,
	}
	for in, want := range tests {
		got, err := ParseKind(in)
		if err != nil {
			t.Errorf("ParseKind(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseKind(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseKind("tfidf"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("ParseKind(tfidf) error = %v", err)
	}

	for k := Classic; k <= Ldp; k++ {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
}

func TestModel_ComputeNorm(t *testing.T) {
	m, _ := Default(Classic)

	t.Run("discounts overlaps", func(t *testing.T) {
		b := m.ComputeNorm(FieldInvertState{Length: 12, NumOverlap: 4, Boost: 1})
		if got := norm.DecodeLength(b); got != 8 {
			t.Errorf("decoded length = %d, want 8", got)
		}
	})

	t.Run("counts overlaps when disabled", func(t *testing.T) {
		keep, _ := NewBM25(1.2, 0.75, WithDiscountOverlaps(false))
		b := keep.ComputeNorm(FieldInvertState{Length: 12, NumOverlap: 4, Boost: 1})
		if got := norm.DecodeLength(b); got != 12 {
			t.Errorf("decoded length = %d, want 12", got)
		}
	})

	t.Run("boost shortens", func(t *testing.T) {
		b := m.ComputeNorm(FieldInvertState{Length: 20, Boost: 2})
		if got := norm.DecodeLength(b); got != 5 {
			t.Errorf("decoded length = %d, want 5", got)
		}
	})

	t.Run("empty field", func(t *testing.T) {
		if b := m.ComputeNorm(FieldInvertState{Boost: 1}); b != 0 {
			t.Errorf("ComputeNorm(empty) = %d, want 0", b)
		}
	})

	t.Run("same byte for every model", func(t *testing.T) {
		state := FieldInvertState{Length: 100, NumOverlap: 3, Boost: 1}
		want := m.ComputeNorm(state)
		for k := Classic; k <= Ldp; k++ {
			other, _ := Default(k)
			if got := other.ComputeNorm(state); got != want {
				t.Errorf("%v: ComputeNorm = %d, want %d", k, got, want)
			}
		}
	})
}

func TestKind_String(t *testing.T) {
	if got := Kind(99).String(); !strings.HasPrefix(got, "kind(") {
		t.Errorf("Kind(99).String() = %q", got)
	}
}
