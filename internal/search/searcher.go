// Package search scores term and phrase queries against an index snapshot
// with the snapshot's similarity model and combines them with the boolean
// operators of the query package.
package search

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"harshagw/relevance/internal/index"
	"harshagw/relevance/internal/metrics"
	"harshagw/relevance/internal/query"
	"harshagw/relevance/internal/similarity"
)

// ErrDocNotFound is returned when an external ID has no live document.
var ErrDocNotFound = errors.New("document not found")

// Result represents a search hit with score.
type Result = query.Result

// Searcher performs searches on an index snapshot.
type Searcher struct {
	snapshot *index.IndexSnapshot
	metrics  *metrics.Metrics
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithMetrics records queries and explanations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) {
		s.metrics = m
	}
}

// New creates a new searcher for a snapshot.
func New(snapshot *index.IndexSnapshot, opts ...Option) *Searcher {
	s := &Searcher{snapshot: snapshot}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases searcher resources.
func (s *Searcher) Close() error {
	return nil
}

// Model returns the similarity used for scoring.
func (s *Searcher) Model() *similarity.Model {
	return s.snapshot.Model()
}

// RunQueryString parses and runs a query string, best hits first.
func (s *Searcher) RunQueryString(queryString string) ([]Result, error) {
	q, err := query.ParseString(queryString)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	return s.RunQuery(q)
}

// RunQuery runs a parsed query and loads the stored document of every hit.
func (s *Searcher) RunQuery(q query.Query) ([]Result, error) {
	start := time.Now()
	results, err := s.runQuery(q)
	s.metrics.ObserveSearch(s.Model().String(), time.Since(start), len(results), err)
	return results, err
}

func (s *Searcher) runQuery(q query.Query) ([]Result, error) {
	results, err := query.NewExecutor(s).Execute(q)
	if err != nil {
		return nil, err
	}
	query.SortByScore(results)
	for i := range results {
		doc, err := s.Document(results[i].DocID)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", results[i].DocID, err)
		}
		results[i].Doc = doc
	}
	return results, nil
}

// Document loads the stored fields of the newest live version of docID.
func (s *Searcher) Document(docID string) (map[string]any, error) {
	r, docNum, ok := s.locate(docID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", docID, ErrDocNotFound)
	}
	return r.LoadDoc(docNum)
}

// locate finds the newest reader holding a live copy of docID.
func (s *Searcher) locate(docID string) (index.Reader, uint64, bool) {
	readers := s.snapshot.Readers()
	for i := len(readers) - 1; i >= 0; i-- {
		if docNum, ok := readers[i].DocNum(docID); ok {
			return readers[i], docNum, true
		}
	}
	return nil, 0, false
}

// fields returns the fields a query targets: the named one, or every field
// when field is empty.
func (s *Searcher) fields(field string) []string {
	if field != "" {
		return []string{field}
	}
	return s.snapshot.Fields()
}

// match is a document of one reader and how often the query occurs in it.
type match struct {
	docNum uint64
	freq   float32
}

// scoreField scores every live document matching terms in field. Readers
// are matched concurrently; a document present in several readers keeps
// the copy of the newest one.
func (s *Searcher) scoreField(field string, terms []string, offsets []uint64, boost float32) (map[string]Result, error) {
	w, err := s.weight(field, terms, boost)
	if err != nil || w == nil {
		return nil, err
	}
	scorer := w.Scorer()

	readers := s.snapshot.Readers()
	perReader := make([][]match, len(readers))
	g := new(errgroup.Group)
	for i, r := range readers {
		g.Go(func() error {
			matches, err := matchReader(r, field, terms, offsets)
			if err != nil {
				return fmt.Errorf("search %s: %w", r.ID(), err)
			}
			perReader[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matched := describe(field, terms)
	results := make(map[string]Result)
	for i := len(readers) - 1; i >= 0; i-- {
		r := readers[i]
		for _, m := range perReader[i] {
			extID, ok := r.ExternalID(m.docNum)
			if !ok {
				continue
			}
			if _, seen := results[extID]; seen {
				continue
			}
			results[extID] = Result{
				DocID:        extID,
				Score:        scorer.Score(m.freq, r.Norm(field, m.docNum)),
				MatchedTerms: []string{matched},
			}
		}
	}
	return results, nil
}

// weight builds the similarity weight of terms in field. It returns nil
// when one of the terms occurs nowhere in the field.
func (s *Searcher) weight(field string, terms []string, boost float32) (*similarity.Weight, error) {
	stats := make([]similarity.TermStatistics, len(terms))
	for i, term := range terms {
		ts, err := s.snapshot.TermStatistics(term, field)
		if err != nil {
			return nil, err
		}
		if ts.DocFreq == 0 {
			return nil, nil
		}
		stats[i] = ts
	}
	return similarity.BuildWeight(s.Model(), boost, s.snapshot.CollectionStatistics(field), stats...)
}

func matchReader(r index.Reader, field string, terms []string, offsets []uint64) ([]match, error) {
	if len(terms) == 1 {
		postings, err := r.Search(terms[0], field)
		if err != nil {
			return nil, err
		}
		matches := make([]match, len(postings))
		for i, p := range postings {
			matches[i] = match{docNum: p.DocNum, freq: float32(p.Frequency)}
		}
		return matches, nil
	}
	return matchPhrase(r, field, terms, offsets)
}

// searchAcross scores terms in every targeted field and keeps, per
// document, the best scoring field.
func (s *Searcher) searchAcross(terms []string, offsets []uint64, field string, boost float32) ([]Result, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	best := make(map[string]Result)
	for _, f := range s.fields(field) {
		results, err := s.scoreField(f, terms, offsets, boost)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		for docID, r := range results {
			if prev, ok := best[docID]; !ok || r.Score > prev.Score {
				best[docID] = r
			}
		}
	}

	out := make([]Result, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	query.SortByScore(out)
	return out, nil
}
