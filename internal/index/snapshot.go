package index

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"

	"harshagw/relevance/internal/analysis"
	"harshagw/relevance/internal/segment"
	"harshagw/relevance/internal/similarity"
)

// Reader is the read surface shared by persisted segments and the
// in-memory builder. DocNums are local to the reader.
type Reader interface {
	ID() string
	// NumDocs counts documents visible to the reader, deleted ones included.
	NumDocs() uint64
	IsDeleted(docNum uint64) bool
	// Search returns the live postings of term in field.
	Search(term, field string) ([]segment.Posting, error)
	Norm(field string, docNum uint64) byte
	ExternalID(docNum uint64) (string, bool)
	// DocNum returns the live docNum of an external ID.
	DocNum(externalID string) (uint64, bool)
	LoadDoc(docNum uint64) (map[string]any, error)
	// Fields lists the indexed fields, the internal _id field excluded.
	Fields() []string
	FieldStats(field string) segment.FieldStats
	DocFreq(term, field string) (uint64, error)
}

// SegmentSnapshot represents a segment with its deletion bitmap.
type SegmentSnapshot struct {
	seg     *segment.Segment
	deleted *roaring.Bitmap
}

// Segment returns the underlying segment.
func (s *SegmentSnapshot) Segment() *segment.Segment { return s.seg }

// Deleted returns the deletion bitmap.
func (s *SegmentSnapshot) Deleted() *roaring.Bitmap { return s.deleted }

func (s *SegmentSnapshot) ID() string      { return s.seg.ID() }
func (s *SegmentSnapshot) NumDocs() uint64 { return s.seg.NumDocs() }

func (s *SegmentSnapshot) IsDeleted(docNum uint64) bool {
	return s.deleted != nil && s.deleted.Contains(uint32(docNum))
}

// Search searches for a term in a field. A field the segment never saw has
// no postings.
func (s *SegmentSnapshot) Search(term, field string) ([]segment.Posting, error) {
	postings, err := s.seg.Search(term, field, s.deleted)
	if errors.Is(err, segment.ErrFieldNotFound) {
		return nil, nil
	}
	return postings, err
}

func (s *SegmentSnapshot) Norm(field string, docNum uint64) byte {
	return s.seg.Norm(field, docNum)
}

func (s *SegmentSnapshot) ExternalID(docNum uint64) (string, bool) {
	return s.seg.ExternalID(docNum)
}

func (s *SegmentSnapshot) DocNum(externalID string) (uint64, bool) {
	docNum, ok := s.seg.DocNum(externalID)
	if !ok || s.IsDeleted(docNum) {
		return 0, false
	}
	return docNum, true
}

func (s *SegmentSnapshot) LoadDoc(docNum uint64) (map[string]any, error) {
	return s.seg.LoadDoc(docNum)
}

func (s *SegmentSnapshot) Fields() []string {
	var fields []string
	for _, f := range s.seg.Fields() {
		if f != segment.IDField {
			fields = append(fields, f)
		}
	}
	return fields
}

func (s *SegmentSnapshot) FieldStats(field string) segment.FieldStats {
	return s.seg.FieldStats(field)
}

func (s *SegmentSnapshot) DocFreq(term, field string) (uint64, error) {
	df, err := s.seg.DocFreq(term, field)
	if errors.Is(err, segment.ErrFieldNotFound) {
		return 0, nil
	}
	return df, err
}

// MemorySnapshot is a view of the in-memory builder frozen at snapshot
// time. Later additions and deletions are invisible to it.
type MemorySnapshot struct {
	mu      *sync.RWMutex
	builder *segment.Builder
	numDocs uint64
	deleted *roaring.Bitmap
	stats   map[string]segment.FieldStats
}

// newMemorySnapshot must be called with mu held.
func newMemorySnapshot(mu *sync.RWMutex, b *segment.Builder) *MemorySnapshot {
	stats := make(map[string]segment.FieldStats, len(b.Stats))
	for field, fs := range b.Stats {
		stats[field] = *fs
	}
	return &MemorySnapshot{
		mu:      mu,
		builder: b,
		numDocs: b.TotalDocs(),
		deleted: b.Deleted.Clone(),
		stats:   stats,
	}
}

func (m *MemorySnapshot) ID() string      { return "memory" }
func (m *MemorySnapshot) NumDocs() uint64 { return m.numDocs }

func (m *MemorySnapshot) IsDeleted(docNum uint64) bool {
	return docNum >= m.numDocs || m.deleted.Contains(uint32(docNum))
}

func (m *MemorySnapshot) Search(term, field string) ([]segment.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var postings []segment.Posting
	for _, p := range m.builder.Fields[field][term] {
		if !m.IsDeleted(p.DocNum) {
			postings = append(postings, p)
		}
	}
	return postings, nil
}

func (m *MemorySnapshot) Norm(field string, docNum uint64) byte {
	if docNum >= m.numDocs {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.builder.Norm(field, docNum)
}

func (m *MemorySnapshot) ExternalID(docNum uint64) (string, bool) {
	if docNum >= m.numDocs {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.builder.DocIDs[docNum], true
}

func (m *MemorySnapshot) DocNum(externalID string) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for docNum := m.numDocs; docNum > 0; docNum-- {
		if m.builder.DocIDs[docNum-1] == externalID && !m.IsDeleted(docNum-1) {
			return docNum - 1, true
		}
	}
	return 0, false
}

func (m *MemorySnapshot) LoadDoc(docNum uint64) (map[string]any, error) {
	if docNum >= m.numDocs {
		return nil, fmt.Errorf("docNum %d out of range", docNum)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.builder.Docs[docNum], nil
}

func (m *MemorySnapshot) Fields() []string {
	fields := make([]string, 0, len(m.stats))
	for f := range m.stats {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}

func (m *MemorySnapshot) FieldStats(field string) segment.FieldStats {
	return m.stats[field]
}

// DocFreq counts documents visible to the snapshot, deleted ones included.
func (m *MemorySnapshot) DocFreq(term, field string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var df uint64
	for _, p := range m.builder.Fields[field][term] {
		if p.DocNum < m.numDocs {
			df++
		}
	}
	return df, nil
}

// IndexSnapshot represents a point-in-time view of the index for searching.
type IndexSnapshot struct {
	segments []*SegmentSnapshot
	memory   *MemorySnapshot
	epoch    uint64
	analyzer analysis.Analyzer
	model    *similarity.Model
	closed   atomic.Bool
}

// Segments returns the segment snapshots, oldest first.
func (s *IndexSnapshot) Segments() []*SegmentSnapshot { return s.segments }

// Memory returns the view of the in-memory builder.
func (s *IndexSnapshot) Memory() *MemorySnapshot { return s.memory }

// Readers returns every reader oldest first, the in-memory one last.
func (s *IndexSnapshot) Readers() []Reader {
	readers := make([]Reader, 0, len(s.segments)+1)
	for _, seg := range s.segments {
		readers = append(readers, seg)
	}
	return append(readers, s.memory)
}

// Analyzer returns the index's analyzer.
func (s *IndexSnapshot) Analyzer() analysis.Analyzer { return s.analyzer }

// Model returns the similarity the index was opened with.
func (s *IndexSnapshot) Model() *similarity.Model { return s.model }

func (s *IndexSnapshot) Epoch() uint64 { return s.epoch }

// Fields returns the union of the fields of every reader, sorted.
func (s *IndexSnapshot) Fields() []string {
	set := make(map[string]struct{})
	for _, r := range s.Readers() {
		for _, f := range r.Fields() {
			set[f] = struct{}{}
		}
	}
	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}

// TotalDocs returns the number of live documents.
func (s *IndexSnapshot) TotalDocs() uint64 {
	var total uint64
	for _, r := range s.Readers() {
		total += r.NumDocs()
	}
	for _, seg := range s.segments {
		if seg.deleted != nil {
			total -= seg.deleted.GetCardinality()
		}
	}
	return total - s.memory.deleted.GetCardinality()
}

// CollectionStatistics aggregates the field statistics of every reader.
// Deleted documents keep counting until their segment is merged away.
func (s *IndexSnapshot) CollectionStatistics(field string) similarity.CollectionStatistics {
	coll := similarity.CollectionStatistics{Field: field}
	for _, r := range s.Readers() {
		fs := r.FieldStats(field)
		coll.MaxDoc += r.NumDocs()
		coll.DocCount += fs.DocCount
		coll.SumTotalTermFreq += fs.SumTotalTermFreq
	}
	return coll
}

// TermStatistics aggregates the document frequency of term in field.
func (s *IndexSnapshot) TermStatistics(term, field string) (similarity.TermStatistics, error) {
	stats := similarity.TermStatistics{Term: term}
	for _, r := range s.Readers() {
		df, err := r.DocFreq(term, field)
		if err != nil {
			return stats, fmt.Errorf("doc freq of %s:%s in %s: %w", field, term, r.ID(), err)
		}
		stats.DocFreq += df
	}
	return stats, nil
}

// Close releases the snapshot's hold on its segments. Segments merged away
// since the snapshot was taken are unmapped here.
func (s *IndexSnapshot) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var errs []error
	for _, ss := range s.segments {
		errs = append(errs, ss.seg.Release())
	}
	return errors.Join(errs...)
}
