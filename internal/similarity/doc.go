// Package similarity implements the ranking functions used to score a
// document against a query term.
//
// A Model is chosen once (usually for the life of the process) and is used
// both at index time and at query time:
//
//   - At index time the host calls Model.ComputeNorm for every (document,
//     field) pair and stores the returned byte next to the document.
//   - At query time the host calls BuildWeight once per query term with the
//     collection and term statistics. The Weight precomputes the idf, the
//     average field length and, for the BM25 family and Ldp, a 256-entry
//     table of length normalization factors indexed by norm byte.
//   - For every matching document the host calls Scorer.Score with the raw
//     term frequency and the stored norm byte. Scorer.Explain computes the
//     same value and keeps each factor as a labeled node.
//
// Models, weights and scorers are immutable and safe for concurrent use.
package similarity
