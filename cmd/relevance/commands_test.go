package main

import (
	"testing"

	"harshagw/relevance/internal/config"
)

func TestLookupCommand(t *testing.T) {
	for _, name := range []string{"index", "search", "explain", "exit", "quit"} {
		if _, ok := lookupCommand(name); !ok {
			t.Errorf("lookupCommand(%q) not found", name)
		}
	}
	if _, ok := lookupCommand("frobnicate"); ok {
		t.Error("unknown command should not resolve")
	}
	if len(suggestions()) != len(commands) {
		t.Errorf("suggestions = %d, commands = %d", len(suggestions()), len(commands))
	}
}

func TestParseSimilarityArgs(t *testing.T) {
	d := float32(0.7)
	base := config.SimilarityConfig{Model: "bm25l", K1: 1.2, B: 0.75, D: &d}

	sc, err := parseSimilarityArgs(base, []string{"bm25", "k1=2", "b=0.5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Model != "bm25" || sc.K1 != 2 || sc.B != 0.5 || sc.D != nil {
		t.Errorf("got %+v", sc)
	}
	if base.Model != "bm25l" || base.K1 != 1.2 {
		t.Errorf("base modified: %+v", base)
	}

	sc, err = parseSimilarityArgs(base, []string{"ldp", "d=1.2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.D == nil || *sc.D != 1.2 {
		t.Errorf("d = %v, want 1.2", sc.D)
	}

	for _, args := range [][]string{
		{"bm25", "k1"},
		{"bm25", "k1=abc"},
		{"bm25", "z=1"},
		{"nosuchmodel"},
		{"ldp", "d=2"},
	} {
		if _, err := parseSimilarityArgs(base, args); err == nil {
			t.Errorf("parseSimilarityArgs(%v) should fail", args)
		}
	}
}
