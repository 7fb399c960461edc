package segment

import (
	"github.com/RoaringBitmap/roaring"

	"harshagw/relevance/internal/analysis"
	"harshagw/relevance/internal/similarity"
)

// Builder accumulates documents before flushing to an immutable segment.
type Builder struct {
	Fields  map[string]map[string][]Posting // field -> term -> postings
	Norms   map[string][]byte               // field -> docNum -> norm byte
	Stats   map[string]*FieldStats          // field -> collection counters
	Docs    []map[string]any                // stored documents
	DocIDs  []string                        // external IDs by docNum
	Boosts  []float32                       // index-time boost by docNum
	Deleted *roaring.Bitmap                 // deleted docNums

	numDocs  uint64
	analyzer analysis.Analyzer
	model    *similarity.Model
}

// NewBuilder creates a new segment builder. model computes the norm byte
// stored for every (document, field).
func NewBuilder(analyzer analysis.Analyzer, model *similarity.Model) *Builder {
	return &Builder{
		Fields:   make(map[string]map[string][]Posting),
		Norms:    make(map[string][]byte),
		Stats:    make(map[string]*FieldStats),
		Docs:     make([]map[string]any, 0),
		DocIDs:   make([]string, 0),
		Boosts:   make([]float32, 0),
		Deleted:  roaring.New(),
		analyzer: analyzer,
		model:    model,
	}
}

// IDField is the special field name used to store document IDs for lookup.
const IDField = "_id"

// Model returns the similarity the builder computes norms with.
func (b *Builder) Model() *similarity.Model { return b.model }

// Add adds a document with an index-time boost of 1 and returns its docNum.
func (b *Builder) Add(externalID string, doc map[string]any) uint64 {
	return b.AddWithBoost(externalID, doc, 1)
}

// AddWithBoost adds a document whose field norms are scaled by boost.
func (b *Builder) AddWithBoost(externalID string, doc map[string]any, boost float32) uint64 {
	docNum := b.numDocs
	b.numDocs++

	b.Docs = append(b.Docs, doc)
	b.DocIDs = append(b.DocIDs, externalID)
	b.Boosts = append(b.Boosts, boost)

	if b.Fields[IDField] == nil {
		b.Fields[IDField] = make(map[string][]Posting)
	}
	b.Fields[IDField][externalID] = []Posting{{DocNum: docNum, Frequency: 1}}

	for fieldName, value := range doc {
		text, ok := value.(string)
		if !ok || fieldName == IDField {
			continue
		}

		if b.Fields[fieldName] == nil {
			b.Fields[fieldName] = make(map[string][]Posting)
			b.Stats[fieldName] = &FieldStats{}
		}

		tokens := b.analyzer.Analyze(text)
		b.setNorm(fieldName, docNum, b.model.ComputeNorm(analysis.InvertState(fieldName, tokens, boost)))
		if len(tokens) == 0 {
			continue
		}

		stats := b.Stats[fieldName]
		stats.DocCount++
		stats.SumTotalTermFreq += uint64(len(tokens))

		termPositions := make(map[string][]uint64)
		for _, tok := range tokens {
			termPositions[tok.Term] = append(termPositions[tok.Term], tok.Position)
		}
		for term, positions := range termPositions {
			b.Fields[fieldName][term] = append(b.Fields[fieldName][term], Posting{
				DocNum:    docNum,
				Frequency: uint64(len(positions)),
				Positions: positions,
			})
		}
	}

	return docNum
}

func (b *Builder) setNorm(field string, docNum uint64, n byte) {
	norms := b.Norms[field]
	for uint64(len(norms)) <= docNum {
		norms = append(norms, 0)
	}
	norms[docNum] = n
	b.Norms[field] = norms
}

// Delete marks a document as deleted. Returns true if found.
func (b *Builder) Delete(externalID string) bool {
	for i, id := range b.DocIDs {
		if id == externalID && !b.Deleted.Contains(uint32(i)) {
			b.Deleted.Add(uint32(i))
			return true
		}
	}
	return false
}

func (b *Builder) IsDeleted(docNum uint64) bool {
	return b.Deleted.Contains(uint32(docNum))
}

// NumDocs returns the number of non-deleted documents in the builder.
func (b *Builder) NumDocs() uint64 {
	return b.numDocs - b.Deleted.GetCardinality()
}

// TotalDocs returns the total number of documents (including deleted) for persistence.
func (b *Builder) TotalDocs() uint64 {
	return b.numDocs
}

// Norm returns the stored norm byte of a field in a document, 0 if the
// document has no such field.
func (b *Builder) Norm(field string, docNum uint64) byte {
	if norms, ok := b.Norms[field]; ok && docNum < uint64(len(norms)) {
		return norms[docNum]
	}
	return 0
}

// FieldStats returns the collection counters for a field.
func (b *Builder) FieldStats(field string) FieldStats {
	if stats, ok := b.Stats[field]; ok {
		return *stats
	}
	return FieldStats{}
}

// DocFreq returns the number of documents containing term in field.
func (b *Builder) DocFreq(term, field string) uint64 {
	return uint64(len(b.Fields[field][term]))
}

// persistedBoosts drops the boost table when every document has boost 1.
func (b *Builder) persistedBoosts() []float32 {
	for _, boost := range b.Boosts {
		if boost != 1 {
			return b.Boosts
		}
	}
	return nil
}
