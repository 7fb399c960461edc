// verify indexes a fixed corpus under every similarity model and checks
// that queries match the expected documents, that hits come back best
// first and that every explanation adds up to the score it explains.
//
// Run with: go run ./cmd/verify
package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"harshagw/relevance/internal/config"
	"harshagw/relevance/internal/index"
	"harshagw/relevance/internal/search"
)

// Document represents a test document with known content.
type Document struct {
	ID     string
	Fields map[string]any
}

// TestCase represents a query with expected results.
type TestCase struct {
	Query    string
	Expected []string // Expected document IDs (order doesn't matter)
}

// report collects the output of one model so models can run concurrently
// and still print in order.
type report struct {
	model  string
	lines  []string
	failed int
	passed int
}

func (r *report) pass(format string, args ...any) {
	r.passed++
	r.lines = append(r.lines, "  ✓ "+fmt.Sprintf(format, args...))
}

func (r *report) fail(format string, args ...any) {
	r.failed++
	r.lines = append(r.lines, "  ✗ "+fmt.Sprintf(format, args...))
}

func main() {
	var models []string
	var flushThreshold int

	flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	flagSet.StringSliceVar(&models, "models",
		[]string{"bm25", "bm25l", "bm25plus", "robertson", "ltc", "lnc", "lnclpc", "ldp"},
		"similarity models to verify")
	flagSet.IntVar(&flushThreshold, "flush-threshold", 3, "documents per segment")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	fmt.Println("Ranking Verification")
	fmt.Println("====================")

	reports := make([]*report, len(models))
	g := new(errgroup.Group)
	g.SetLimit(4)
	for i, model := range models {
		g.Go(func() error {
			r, err := verifyModel(model, flushThreshold)
			if err != nil {
				return fmt.Errorf("%s: %w", model, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	passed, failed := 0, 0
	for _, r := range reports {
		fmt.Printf("\n%s\n", r.model)
		fmt.Println(strings.Repeat("-", len(r.model)))
		for _, line := range r.lines {
			fmt.Println(line)
		}
		passed += r.passed
		failed += r.failed
	}

	fmt.Println()
	fmt.Println("========================================")
	fmt.Printf("Results: %d passed, %d failed, %d total\n", passed, failed, passed+failed)

	if failed > 0 {
		os.Exit(1)
	}
	fmt.Println("\nAll checks passed!")
}

func verifyModel(name string, flushThreshold int) (*report, error) {
	sc := config.SimilarityConfig{Model: name, K1: 1.2, B: 0.75, DiscountOverlaps: true}
	model, err := sc.Build()
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "verify-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	cfg := index.DefaultConfig(dir)
	cfg.FlushThreshold = flushThreshold
	cfg.Similarity = model
	idx, err := index.New(cfg)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	for _, doc := range testDocuments() {
		if err := idx.Index(doc.ID, doc.Fields); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", doc.ID, err)
		}
	}

	snapshot, err := idx.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snapshot.Close()
	searcher := search.New(snapshot)
	defer searcher.Close()

	r := &report{model: fmt.Sprintf("%s (%d segments)", model, idx.NumSegments())}
	for _, tc := range testCases() {
		runTestCase(r, searcher, tc)
	}
	for _, text := range explainProbes() {
		checkExplanations(r, searcher, text)
	}
	return r, nil
}

func runTestCase(r *report, s *search.Searcher, tc TestCase) {
	results, err := s.RunQueryString(tc.Query)
	if err != nil {
		r.fail("%s: %v", tc.Query, err)
		return
	}

	gotIDs := make([]string, len(results))
	for i, res := range results {
		gotIDs[i] = res.DocID
		if i > 0 && res.Score > results[i-1].Score {
			r.fail("%s: %s scores %v above %s at %v", tc.Query, res.DocID, res.Score, results[i-1].DocID, results[i-1].Score)
			return
		}
	}

	slices.Sort(gotIDs)
	expected := slices.Clone(tc.Expected)
	slices.Sort(expected)

	if !slices.Equal(gotIDs, expected) {
		r.fail("%s: expected %v, got %v", tc.Query, expected, gotIDs)
		return
	}
	r.pass("%s", tc.Query)
}

func checkExplanations(r *report, s *search.Searcher, text string) {
	results, err := s.PhraseSearch(text, "", 1)
	if err != nil {
		r.fail("explain %q: %v", text, err)
		return
	}
	for _, res := range results {
		e, err := s.Explain(text, "", res.DocID, 1)
		if err != nil {
			r.fail("explain %q in %s: %v", text, res.DocID, err)
			return
		}
		if e.Value != res.Score {
			r.fail("explain %q in %s: explanation %v, score %v", text, res.DocID, e.Value, res.Score)
			return
		}
	}
	r.pass("explain %q (%d hits)", text, len(results))
}

func testDocuments() []Document {
	return []Document{
		{"doc1", map[string]any{
			"title": "Introduction to Go Programming",
			"body":  "Go is a statically typed compiled language with garbage collection",
		}},
		{"doc2", map[string]any{
			"title": "Python Programming Guide",
			"body":  "Python is an interpreted language used for data science and machine learning",
		}},
		{"doc3", map[string]any{
			"title": "Rust Programming Language",
			"body":  "Rust is a systems programming language with no garbage collection",
		}},
		{"doc4", map[string]any{
			"title": "PostgreSQL Guide",
			"body":  "PostgreSQL is a relational database with full text search",
		}},
		{"doc5", map[string]any{
			"title": "Redis In-Memory Database",
			"body":  "Redis is an in memory data store used as a database cache",
		}},
		{"doc6", map[string]any{
			"title": "Travel Guide to New York",
			"body":  "New York is the largest city in the United States",
		}},
		{"doc7", map[string]any{
			"title": "Los Angeles City Guide",
			"body":  "Los Angeles is a city in California in the United States",
		}},
		{"doc8", map[string]any{
			"title": "London Overview",
			"body":  "London is the capital of the United Kingdom",
		}},
	}
}

func testCases() []TestCase {
	return []TestCase{
		{"programming", []string{"doc1", "doc2", "doc3"}},
		{"title:guide", []string{"doc2", "doc4", "doc6", "doc7"}},
		{"data", []string{"doc2", "doc5"}},
		{"garbage AND collection", []string{"doc1", "doc3"}},
		{`"garbage collection"`, []string{"doc1", "doc3"}},
		{`"united states"`, []string{"doc6", "doc7"}},
		{`"united states" OR "united kingdom"`, []string{"doc6", "doc7", "doc8"}},
		{"database -redis", []string{"doc4"}},
		{"(python OR rust) AND language", []string{"doc2", "doc3"}},
		{"city AND california", []string{"doc7"}},
		{"title:guide^2 AND city", []string{"doc6", "doc7"}},
		{"nonexistent", []string{}},
	}
}

func explainProbes() []string {
	return []string{"programming", "guide", "city", "garbage collection", "united states"}
}
