package index

import (
	"fmt"
	"path/filepath"

	"harshagw/relevance/internal/segment"
)

// NumSegments returns the number of segments.
func (idx *Index) NumSegments() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.segments)
}

// SegmentInfo describes a persisted segment.
type SegmentInfo struct {
	ID      string
	Path    string
	NumDocs uint64
	Size    int64
	// Similarity is the model whose norms the segment stores.
	Similarity string
}

// Segments returns info about all segments, oldest first.
func (idx *Index) Segments() []SegmentInfo {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	info := make([]SegmentInfo, len(idx.segments))
	for i, seg := range idx.segments {
		info[i] = SegmentInfo{
			ID:         seg.ID(),
			Path:       filepath.Join(idx.dir, seg.ID()+".seg"),
			NumDocs:    seg.NumDocs(),
			Size:       seg.Size(),
			Similarity: seg.Similarity(),
		}
	}
	return info
}

// segmentByID must be called with mu held.
func (idx *Index) segmentByID(segID string) (*segment.Segment, error) {
	for _, seg := range idx.segments {
		if seg.ID() == segID {
			return seg, nil
		}
	}
	return nil, fmt.Errorf("segment not found: %s", segID)
}

// SegmentStats holds the document counts and per-field statistics of a
// segment.
type SegmentStats struct {
	NumDocs    uint64
	NumDeleted uint64
	Fields     map[string]segment.FieldStats
}

func (idx *Index) SegmentStats(segID string) (*SegmentStats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seg, err := idx.segmentByID(segID)
	if err != nil {
		return nil, err
	}
	deleted, err := idx.getDeletions(segID)
	if err != nil {
		return nil, err
	}

	stats := &SegmentStats{
		NumDocs:    seg.NumDocs(),
		NumDeleted: deleted.GetCardinality(),
		Fields:     make(map[string]segment.FieldStats),
	}
	for _, field := range seg.Fields() {
		if field != segment.IDField {
			stats.Fields[field] = seg.FieldStats(field)
		}
	}
	return stats, nil
}

// LoadDoc loads a stored document from a segment by docNum.
func (idx *Index) LoadDoc(segID string, docNum uint64) (map[string]any, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seg, err := idx.segmentByID(segID)
	if err != nil {
		return nil, err
	}
	return seg.LoadDoc(docNum)
}

// PostingEntry is one raw posting with the norm stored for its document.
type PostingEntry struct {
	SegmentID string
	DocNum    uint64
	Freq      uint64
	Norm      byte
	Positions []uint64
}

// DumpPostings returns raw postings and norms for a field:term across all
// segments, deleted documents included.
func (idx *Index) DumpPostings(field, term string) ([]PostingEntry, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var entries []PostingEntry
	for _, seg := range idx.segments {
		postings, err := seg.Search(term, field, nil)
		if err != nil {
			continue
		}
		for _, p := range postings {
			entries = append(entries, PostingEntry{
				SegmentID: seg.ID(),
				DocNum:    p.DocNum,
				Freq:      p.Frequency,
				Norm:      seg.Norm(field, p.DocNum),
				Positions: p.Positions,
			})
		}
	}
	return entries, nil
}

// DumpDeletions returns the deleted docNums of a segment, pending ones
// included.
func (idx *Index) DumpDeletions(segID string) ([]uint32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	deleted, err := idx.getDeletions(segID)
	if err != nil {
		return nil, err
	}
	return deleted.ToArray(), nil
}
