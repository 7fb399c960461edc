package similarity

// CollectionStatistics describes one field across the whole collection.
// DocCount is the number of documents with at least one term in the field
// and never exceeds MaxDoc.
type CollectionStatistics struct {
	Field            string
	MaxDoc           uint64
	DocCount         uint64
	SumTotalTermFreq uint64
}

// TermStatistics describes one term of a field.
type TermStatistics struct {
	Term    string
	DocFreq uint64
}

// FieldInvertState is what the host knows about a field of a single
// document once it has been tokenized.
type FieldInvertState struct {
	Field string
	// Length is the number of tokens, including overlaps.
	Length uint32
	// NumOverlap counts tokens with a position increment of zero.
	NumOverlap uint32
	Boost      float32
}
