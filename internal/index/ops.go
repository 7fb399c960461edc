package index

import (
	"errors"
	"fmt"
	"os"

	"github.com/RoaringBitmap/roaring"

	"harshagw/relevance/internal/segment"
	"harshagw/relevance/internal/store"
)

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("index is closed")

// segmentName derives a segment ID from the epoch that creates it, so IDs
// sort in creation order.
func segmentName(epoch uint64) string {
	return fmt.Sprintf("%012d", epoch)
}

// getDeletions returns the persisted deletions of a segment merged with
// the ones still pending in memory.
func (idx *Index) getDeletions(segID string) (*roaring.Bitmap, error) {
	persisted, err := idx.meta.GetDeletions(segID)
	if err != nil {
		return nil, err
	}
	if pending := idx.pendingDeletions[segID]; pending != nil {
		persisted.Or(pending)
	}
	return persisted, nil
}

// writePendingDeletions folds every pending deletion into tx.
func (idx *Index) writePendingDeletions(tx *store.Tx) error {
	for segID, pending := range idx.pendingDeletions {
		if pending == nil || pending.IsEmpty() {
			continue
		}
		existing, err := tx.GetDeletions(segID)
		if err != nil {
			return err
		}
		existing.Or(pending)
		if err := tx.SetDeletions(segID, existing); err != nil {
			return fmt.Errorf("deletions of %s: %w", segID, err)
		}
	}
	return nil
}

// Flush writes the in-memory documents to a new segment. With no new
// documents it only persists pending deletions.
func (idx *Index) Flush() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}
	return idx.flushInternal()
}

// flushInternal performs flush without locking.
func (idx *Index) flushInternal() error {
	if idx.builder.NumDocs() == 0 {
		return idx.persistDeletions()
	}

	status := "ok"
	err := idx.flushBuilder()
	if err != nil {
		status = "error"
		idx.log.Error("flush failed", "error", err)
	}
	idx.metrics.IndexFlushesTotal.WithLabelValues(status).Inc()
	idx.metrics.Segments.Set(float64(len(idx.segments)))
	return err
}

// flushBuilder writes the segment file first and commits it to metadata
// second; a failed commit removes the orphaned file.
func (idx *Index) flushBuilder() error {
	segmentIDs, err := idx.meta.GetSegments()
	if err != nil {
		return err
	}
	epoch, err := idx.meta.GetEpoch()
	if err != nil {
		return err
	}
	segmentID := segmentName(epoch + 1)

	segPath, err := idx.builder.Build(idx.dir, segmentID)
	if err != nil {
		return fmt.Errorf("build segment %s: %w", segmentID, err)
	}

	err = idx.meta.Update(func(tx *store.Tx) error {
		if epoch, err = tx.IncrementEpoch(); err != nil {
			return err
		}
		if err := idx.writePendingDeletions(tx); err != nil {
			return err
		}
		if !idx.builder.Deleted.IsEmpty() {
			if err := tx.SetDeletions(segmentID, idx.builder.Deleted); err != nil {
				return err
			}
		}
		return tx.SetSegments(append(segmentIDs, segmentID))
	})
	if err != nil {
		os.Remove(segPath)
		return fmt.Errorf("commit segment %s: %w", segmentID, err)
	}

	seg, err := segment.Open(segPath, segmentID)
	if err != nil {
		return err
	}

	idx.log.Debug("segment flushed",
		"segment", segmentID,
		"docs", idx.builder.TotalDocs(),
		"deleted", idx.builder.Deleted.GetCardinality())

	idx.segments = append(idx.segments, seg)
	idx.epoch = epoch
	idx.pendingDeletions = make(map[string]*roaring.Bitmap)
	idx.builder = idx.newBuilder()
	return nil
}

// persistDeletions writes pending deletions of persisted segments without
// building a new segment.
func (idx *Index) persistDeletions() error {
	if len(idx.pendingDeletions) == 0 {
		return nil
	}
	if err := idx.meta.Update(idx.writePendingDeletions); err != nil {
		return err
	}
	idx.pendingDeletions = make(map[string]*roaring.Bitmap)
	return nil
}

// Snapshot returns a point-in-time view for searching. Documents indexed
// or deleted afterwards are invisible to it. The caller must Close it.
func (idx *Index) Snapshot() (*IndexSnapshot, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ErrClosed
	}

	snapshots := make([]*SegmentSnapshot, len(idx.segments))
	for i, seg := range idx.segments {
		deleted, err := idx.getDeletions(seg.ID())
		if err != nil {
			return nil, err
		}
		snapshots[i] = &SegmentSnapshot{seg: seg, deleted: deleted}
	}
	// each snapshot pins its segments until Close, so a merge can drop
	// them from the index without unmapping them underneath a search
	for _, ss := range snapshots {
		ss.seg.Acquire()
	}

	return &IndexSnapshot{
		segments: snapshots,
		memory:   newMemorySnapshot(&idx.mu, idx.builder),
		epoch:    idx.epoch,
		analyzer: idx.analyzer,
		model:    idx.model,
	}, nil
}

// Close persists pending deletions and releases resources. Documents still
// in memory are dropped; call Flush first to keep them.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true

	var errs []error
	if err := idx.persistDeletions(); err != nil {
		idx.log.Error("failed to persist deletions on close", "error", err)
		errs = append(errs, err)
	}
	idx.pendingDeletions = nil
	idx.builder = nil
	idx.closeSegments()

	if idx.meta != nil {
		errs = append(errs, idx.meta.Close())
	}
	return errors.Join(errs...)
}
