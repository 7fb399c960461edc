package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Query is the interface for all query types.
type Query interface {
	queryNode()
	String() string
}

// effectiveBoost treats an unset boost as 1.
func effectiveBoost(boost float32) float32 {
	if boost == 0 {
		return 1
	}
	return boost
}

func boostSuffix(boost float32) string {
	if b := effectiveBoost(boost); b != 1 {
		return "^" + strconv.FormatFloat(float64(b), 'g', -1, 32)
	}
	return ""
}

// TermQuery searches for a single term. Boost scales its score; zero
// means 1.
type TermQuery struct {
	Field string
	Term  string
	Boost float32
}

func (q *TermQuery) queryNode() {}

// EffectiveBoost returns the boost with an unset value read as 1.
func (q *TermQuery) EffectiveBoost() float32 { return effectiveBoost(q.Boost) }

func (q *TermQuery) String() string {
	if q.Field != "" {
		return fmt.Sprintf("term(%s:%s)%s", q.Field, q.Term, boostSuffix(q.Boost))
	}
	return fmt.Sprintf("term(%s)%s", q.Term, boostSuffix(q.Boost))
}

// PhraseQuery searches for an exact phrase.
type PhraseQuery struct {
	Field  string
	Phrase string
	Boost  float32
}

func (q *PhraseQuery) queryNode() {}

func (q *PhraseQuery) EffectiveBoost() float32 { return effectiveBoost(q.Boost) }

func (q *PhraseQuery) String() string {
	if q.Field != "" {
		return fmt.Sprintf("phrase(%s:\"%s\")%s", q.Field, q.Phrase, boostSuffix(q.Boost))
	}
	return fmt.Sprintf("phrase(\"%s\")%s", q.Phrase, boostSuffix(q.Boost))
}

// BoolQuery combines multiple queries with boolean logic. Boost scales the
// combined score.
type BoolQuery struct {
	Must    []Query
	Should  []Query
	MustNot []Query
	Boost   float32
}

func (q *BoolQuery) queryNode() {}

func (q *BoolQuery) EffectiveBoost() float32 { return effectiveBoost(q.Boost) }

func (q *BoolQuery) String() string {
	var parts []string

	if len(q.Must) > 0 {
		parts = append(parts, fmt.Sprintf("AND(%s)", joinQueries(q.Must)))
	}
	if len(q.Should) > 0 {
		parts = append(parts, fmt.Sprintf("OR(%s)", joinQueries(q.Should)))
	}
	if len(q.MustNot) > 0 {
		parts = append(parts, fmt.Sprintf("NOT(%s)", joinQueries(q.MustNot)))
	}

	if len(parts) == 0 {
		return "bool(empty)"
	}

	return fmt.Sprintf("bool(%s)%s", strings.Join(parts, " "), boostSuffix(q.Boost))
}

func joinQueries(queries []Query) string {
	strs := make([]string, len(queries))
	for i, q := range queries {
		strs[i] = q.String()
	}
	return strings.Join(strs, ", ")
}

// withBoost multiplies the boost of q by boost.
func withBoost(q Query, boost float32) Query {
	switch v := q.(type) {
	case *TermQuery:
		v.Boost = v.EffectiveBoost() * boost
	case *PhraseQuery:
		v.Boost = v.EffectiveBoost() * boost
	case *BoolQuery:
		v.Boost = v.EffectiveBoost() * boost
	}
	return q
}
