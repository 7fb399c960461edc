package search

import (
	"testing"
)

func TestPhraseFreq(t *testing.T) {
	tests := []struct {
		name      string
		positions [][]uint64
		offsets   []uint64
		want      int
	}{
		{"adjacent once", [][]uint64{{0}, {1}}, []uint64{0, 1}, 1},
		{"adjacent twice", [][]uint64{{0, 5, 9}, {1, 6, 12}}, []uint64{0, 1}, 2},
		{"reversed", [][]uint64{{1}, {0}}, []uint64{0, 1}, 0},
		{"gap", [][]uint64{{0}, {2}}, []uint64{0, 2}, 1},
		{"three terms", [][]uint64{{0, 4}, {1, 5}, {2, 7}}, []uint64{0, 1, 2}, 1},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := phraseFreq(tt.positions, tt.offsets); got != tt.want {
				t.Errorf("phraseFreq = %d, want %d", got, tt.want)
			}
		})
	}
}

// ============ Phrase Query E2E Tests ============

func TestE2E_PhraseQuery(t *testing.T) {
	s := createTestSearcher(t)

	results, err := s.RunQueryString(`"hello world"`)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if len(results) != 1 || results[0].DocID != "doc1" {
		t.Fatalf("expected only doc1 for phrase query, got %v", docIDs(results))
	}
	if got := results[0].MatchedTerms; len(got) != 1 || got[0] != `title:"hello world"` {
		t.Errorf("matched terms = %v", got)
	}
}

func TestE2E_PhraseQuery_NonAdjacent(t *testing.T) {
	s := createTestSearcher(t)

	results, err := s.RunQueryString(`"hello programming"`)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results for non-adjacent phrase, got %d", len(results))
	}
}

func TestE2E_PhraseQuery_FieldSpecific(t *testing.T) {
	s := createTestSearcher(t)

	results, err := s.RunQueryString(`body:"go programming"`)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if len(results) != 1 || results[0].DocID != "doc2" {
		t.Errorf("expected only doc2, got %v", docIDs(results))
	}
}

func TestPhraseSearch_SingleTokenIsTermSearch(t *testing.T) {
	s := createTestSearcher(t)

	phrase, err := s.PhraseSearch("Hello!", "title", 1)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	term, err := s.Search("hello", "title", 1)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if len(phrase) != len(term) {
		t.Fatalf("got %d results, want %d", len(phrase), len(term))
	}
	for i := range term {
		if phrase[i].DocID != term[i].DocID || phrase[i].Score != term[i].Score {
			t.Errorf("result %d: %s=%v, want %s=%v", i, phrase[i].DocID, phrase[i].Score, term[i].DocID, term[i].Score)
		}
	}
}

func TestPhraseSearch_RepeatedPhraseScoresHigher(t *testing.T) {
	idx := newTestIndex(t, nil)
	indexDocs(t, idx, []testDoc{
		{"once", map[string]any{"body": "new york is big and busy"}},
		{"twice", map[string]any{"body": "new york is new york yes"}},
	})
	s := newTestSearcher(t, idx)

	results, err := s.PhraseSearch("new york", "body", 1)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].DocID != "twice" {
		t.Errorf("expected the document with two occurrences first, got %s", results[0].DocID)
	}
}

func TestPhraseSearch_MissingTerm(t *testing.T) {
	s := createTestSearcher(t)

	results, err := s.PhraseSearch("hello nowhere", "", 1)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestPhraseSearch_Empty(t *testing.T) {
	s := createTestSearcher(t)

	results, err := s.PhraseSearch(" ... ", "", 1)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
