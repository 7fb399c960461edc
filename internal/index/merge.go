package index

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"harshagw/relevance/internal/segment"
	"harshagw/relevance/internal/store"
)

var errTooFewSegments = errors.New("need at least 2 segments to merge")

// Merge merges multiple segments into one. Norms are recomputed from the
// stored documents with the index's current similarity, and collection
// statistics stop counting the documents deleted from the merged segments.
func (idx *Index) Merge(segmentIDs []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}
	if len(segmentIDs) < 2 {
		return errTooFewSegments
	}

	status := "ok"
	err := idx.merge(segmentIDs)
	if err != nil {
		status = "error"
		idx.log.Error("merge failed", "segments", segmentIDs, "error", err)
	}
	idx.metrics.MergesTotal.WithLabelValues(status).Inc()
	idx.metrics.Segments.Set(float64(len(idx.segments)))
	return err
}

// ForceMerge merges every persisted segment into one.
func (idx *Index) ForceMerge() error {
	infos := idx.Segments()
	if len(infos) < 2 {
		return nil
	}
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.ID
	}
	return idx.Merge(ids)
}

// mergeSources returns the named segments oldest first with their current
// deletions, and the segments that stay as they are.
func (idx *Index) mergeSources(segmentIDs []string) (sources []*SegmentSnapshot, kept []*segment.Segment, err error) {
	for _, seg := range idx.segments {
		if !slices.Contains(segmentIDs, seg.ID()) {
			kept = append(kept, seg)
			continue
		}
		deleted, err := idx.getDeletions(seg.ID())
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, &SegmentSnapshot{seg: seg, deleted: deleted})
	}
	for _, id := range segmentIDs {
		if !slices.ContainsFunc(sources, func(s *SegmentSnapshot) bool { return s.ID() == id }) {
			return nil, nil, fmt.Errorf("segment not found: %s", id)
		}
	}
	return sources, kept, nil
}

// rebuild re-adds the live documents of sources to a fresh builder, so
// their norms are encoded again and their statistics lose deleted docs.
// Sources are visited oldest first, so a re-indexed document keeps its
// newest version.
func (idx *Index) rebuild(sources []*SegmentSnapshot) (*segment.Builder, error) {
	builder := idx.newBuilder()
	for _, ss := range sources {
		seg := ss.Segment()
		for docNum := range seg.NumDocs() {
			if ss.IsDeleted(docNum) {
				continue
			}
			extID, ok := seg.ExternalID(docNum)
			if !ok {
				continue
			}
			doc, err := seg.LoadDoc(docNum)
			if err != nil {
				return nil, fmt.Errorf("load doc %d of segment %s: %w", docNum, seg.ID(), err)
			}
			builder.Delete(extID)
			builder.AddWithBoost(extID, doc, seg.Boost(docNum))
		}
	}
	return builder, nil
}

func (idx *Index) merge(segmentIDs []string) error {
	sources, kept, err := idx.mergeSources(segmentIDs)
	if err != nil {
		return err
	}
	builder, err := idx.rebuild(sources)
	if err != nil {
		return err
	}

	epoch, err := idx.meta.GetEpoch()
	if err != nil {
		return err
	}
	mergedID := segmentName(epoch + 1)

	segPath, err := builder.Build(idx.dir, mergedID)
	if err != nil {
		return fmt.Errorf("build segment %s: %w", mergedID, err)
	}
	merged, err := segment.Open(segPath, mergedID)
	if err != nil {
		os.Remove(segPath)
		return err
	}
	next := append(kept, merged)

	err = idx.meta.Update(func(tx *store.Tx) error {
		if epoch, err = tx.IncrementEpoch(); err != nil {
			return err
		}
		for _, ss := range sources {
			if err := tx.DeleteDeletions(ss.ID()); err != nil {
				return err
			}
		}
		if !builder.Deleted.IsEmpty() {
			if err := tx.SetDeletions(mergedID, builder.Deleted); err != nil {
				return err
			}
		}
		ids := make([]string, len(next))
		for i, seg := range next {
			ids[i] = seg.ID()
		}
		return tx.SetSegments(ids)
	})
	if err != nil {
		merged.Close()
		os.Remove(segPath)
		return fmt.Errorf("commit merge %s: %w", mergedID, err)
	}

	idx.segments = next
	idx.epoch = epoch
	for _, ss := range sources {
		seg := ss.Segment()
		delete(idx.pendingDeletions, seg.ID())
		seg.MarkObsolete()
		if err := seg.Release(); err != nil {
			idx.log.Warn("failed to release merged segment", "segment", seg.ID(), "error", err)
		}
	}

	idx.log.Info("segments merged", "merged", len(sources), "segment", mergedID, "docs", builder.NumDocs())
	return nil
}
