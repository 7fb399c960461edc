package query

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// Result represents a search hit with score.
type Result struct {
	DocID        string
	Score        float32
	Doc          map[string]any
	MatchedTerms []string
}

// SearchBackend defines the interface for primitive search operations.
// Scores must already include the boost.
type SearchBackend interface {
	Search(term, field string, boost float32) ([]Result, error)
	PhraseSearch(phrase, field string, boost float32) ([]Result, error)
}

// Executor executes a Query AST against a SearchBackend. Boolean clauses
// combine by summing the scores of the clauses a document matches.
type Executor struct {
	backend SearchBackend
}

// NewExecutor creates a new executor.
func NewExecutor(backend SearchBackend) *Executor {
	return &Executor{backend: backend}
}

// Execute executes a query and returns the results, best first.
func (e *Executor) Execute(q Query) ([]Result, error) {
	switch v := q.(type) {
	case nil:
		return nil, nil
	case *TermQuery:
		return e.backend.Search(v.Term, v.Field, v.EffectiveBoost())
	case *PhraseQuery:
		return e.backend.PhraseSearch(v.Phrase, v.Field, v.EffectiveBoost())
	case *BoolQuery:
		results, err := e.executeBool(v)
		if err != nil {
			return nil, err
		}
		if boost := v.EffectiveBoost(); boost != 1 {
			for i := range results {
				results[i].Score *= boost
			}
		}
		return results, nil
	default:
		return nil, fmt.Errorf("unknown query type: %T", q)
	}
}

// hitSet accumulates results by document, summing the scores of every
// clause a document matches.
type hitSet map[string]Result

func (h hitSet) add(r Result) {
	if prev, ok := h[r.DocID]; ok {
		prev.Score += r.Score
		prev.MatchedTerms = append(prev.MatchedTerms, r.MatchedTerms...)
		r = prev
	}
	h[r.DocID] = r
}

// retain keeps the documents also in results and adds their scores.
func (h hitSet) retain(results []Result) {
	matched := make(hitSet, len(results))
	for _, r := range results {
		if _, ok := h[r.DocID]; ok {
			matched[r.DocID] = h[r.DocID]
			matched.add(r)
		}
	}
	clear(h)
	maps.Copy(h, matched)
}

func (h hitSet) sorted() []Result {
	if len(h) == 0 {
		return nil
	}
	results := slices.Collect(maps.Values(h))
	SortByScore(results)
	return results
}

// splitClauses lifts the clauses of pure negations, like the "NOT b" in
// "a NOT b", into the exclusions of their parent.
func splitClauses(q *BoolQuery) (must, should, mustNot []Query) {
	mustNot = slices.Clone(q.MustNot)
	lift := func(clauses []Query) []Query {
		var kept []Query
		for _, c := range clauses {
			bq, ok := c.(*BoolQuery)
			if ok && len(bq.Must) == 0 && len(bq.Should) == 0 && len(bq.MustNot) > 0 {
				mustNot = append(mustNot, bq.MustNot...)
				continue
			}
			kept = append(kept, c)
		}
		return kept
	}
	return lift(q.Must), lift(q.Should), mustNot
}

func (e *Executor) executeBool(q *BoolQuery) ([]Result, error) {
	must, should, mustNot := splitClauses(q)
	if len(must) == 0 && len(should) == 0 {
		if len(mustNot) > 0 {
			return nil, fmt.Errorf("NOT queries require a positive clause")
		}
		return nil, nil
	}

	var hits hitSet
	var err error
	if len(must) > 0 {
		if hits, err = e.intersect(must); err != nil || len(hits) == 0 {
			return nil, err
		}
		// with required clauses present, optional ones only add score
		if len(should) > 0 {
			optional, err := e.union(should)
			if err != nil {
				return nil, err
			}
			for docID := range hits {
				if r, ok := optional[docID]; ok {
					hits.add(r)
				}
			}
		}
	} else if hits, err = e.union(should); err != nil {
		return nil, err
	}

	for _, c := range mustNot {
		results, err := e.Execute(c)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			delete(hits, r.DocID)
		}
	}
	return hits.sorted(), nil
}

func (e *Executor) union(queries []Query) (hitSet, error) {
	hits := make(hitSet)
	for _, q := range queries {
		results, err := e.Execute(q)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			hits.add(r)
		}
	}
	return hits, nil
}

func (e *Executor) intersect(queries []Query) (hitSet, error) {
	hits := make(hitSet)
	for i, q := range queries {
		results, err := e.Execute(q)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			for _, r := range results {
				hits.add(r)
			}
		} else {
			hits.retain(results)
		}
		if len(hits) == 0 {
			break
		}
	}
	return hits, nil
}

// SortByScore orders results by descending score, ties by DocID.
func SortByScore(results []Result) {
	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.DocID, b.DocID)
	})
}
