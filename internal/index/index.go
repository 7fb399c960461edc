// Package index maintains a set of immutable segments plus an in-memory
// builder, and hands out point-in-time snapshots for scoring.
package index

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"harshagw/relevance/internal/analysis"
	"harshagw/relevance/internal/logger"
	"harshagw/relevance/internal/metrics"
	"harshagw/relevance/internal/segment"
	"harshagw/relevance/internal/similarity"
	"harshagw/relevance/internal/store"
)

type Index struct {
	mu sync.RWMutex

	dir              string
	meta             *store.Metadata
	segments         []*segment.Segment
	builder          *segment.Builder
	epoch            uint64
	pendingDeletions map[string]*roaring.Bitmap

	analyzer       analysis.Analyzer
	model          *similarity.Model
	flushThreshold int
	metrics        *metrics.Metrics
	log            *slog.Logger

	closed bool
}

type Config struct {
	Dir            string
	FlushThreshold int
	Analyzer       analysis.Analyzer
	// Similarity computes norms at index time and scores at query time.
	Similarity *similarity.Model
	// Metrics is optional; a private registry is used when nil.
	Metrics *metrics.Metrics
}

func DefaultConfig(dir string) Config {
	model, _ := similarity.Default(similarity.Classic)
	return Config{
		Dir:            dir,
		FlushThreshold: 1000,
		Analyzer:       analysis.NewSimple(),
		Similarity:     model,
	}
}

// New creates or opens an index at the given directory.
func New(config Config) (*Index, error) {
	defaults := DefaultConfig(config.Dir)
	if config.Analyzer == nil {
		config.Analyzer = defaults.Analyzer
	}
	if config.Similarity == nil {
		config.Similarity = defaults.Similarity
	}
	if config.FlushThreshold <= 0 {
		config.FlushThreshold = defaults.FlushThreshold
	}
	if config.Metrics == nil {
		config.Metrics = metrics.New(nil)
	}

	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	meta, err := store.NewMetadata(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	idx := &Index{
		dir:              config.Dir,
		meta:             meta,
		segments:         make([]*segment.Segment, 0),
		pendingDeletions: make(map[string]*roaring.Bitmap),
		analyzer:         config.Analyzer,
		model:            config.Similarity,
		flushThreshold:   config.FlushThreshold,
		metrics:          config.Metrics,
		log:              logger.WithComponent("index"),
	}

	idx.builder = idx.newBuilder()

	if err := idx.loadSegments(); err != nil {
		idx.closeSegments()
		meta.Close()
		return nil, fmt.Errorf("failed to load segments: %w", err)
	}

	if err := idx.recordSimilarity(); err != nil {
		idx.closeSegments()
		meta.Close()
		return nil, fmt.Errorf("failed to record similarity: %w", err)
	}

	idx.epoch, _ = meta.GetEpoch()
	idx.metrics.Segments.Set(float64(len(idx.segments)))

	idx.log.Info("index opened", "dir", idx.dir, "segments", len(idx.segments), "similarity", idx.model.String())
	return idx, nil
}

func (idx *Index) newBuilder() *segment.Builder {
	return segment.NewBuilder(idx.analyzer, idx.model)
}

// loadSegments loads all segments from the metadata store.
func (idx *Index) loadSegments() error {
	segmentIDs, err := idx.meta.GetSegments()
	if err != nil {
		return err
	}

	for _, segID := range segmentIDs {
		segPath := filepath.Join(idx.dir, segID+".seg")
		seg, err := segment.Open(segPath, segID)
		if err != nil {
			return fmt.Errorf("failed to open segment %s: %w", segID, err)
		}
		idx.segments = append(idx.segments, seg)
		idx.log.Debug("segment loaded", "segment", segID, "docs", seg.NumDocs(), "similarity", seg.Similarity())
	}

	return nil
}

// recordSimilarity stores the display string of the similarity in use.
// Norms already on disk were computed by whatever was recorded before; a
// change is allowed but logged.
func (idx *Index) recordSimilarity() error {
	current := idx.model.String()
	stored, err := idx.meta.GetSimilarity()
	if err != nil {
		return err
	}
	if stored == current {
		return nil
	}
	if stored != "" {
		idx.log.Warn("similarity differs from the one the index was built with",
			"stored", stored, "current", current)
	}
	return idx.meta.Update(func(tx *store.Tx) error {
		return tx.SetSimilarity(current)
	})
}

// Model returns the similarity the index scores and computes norms with.
func (idx *Index) Model() *similarity.Model { return idx.model }

// Metrics returns the collectors the index reports to.
func (idx *Index) Metrics() *metrics.Metrics { return idx.metrics }

// Index indexes a document with an index-time boost of 1.
func (idx *Index) Index(docID string, doc map[string]any) error {
	return idx.IndexWithBoost(docID, doc, 1)
}

// IndexWithBoost indexes a document whose field norms are scaled by
// 1/boost². Replaces any previous document with the same ID.
func (idx *Index) IndexWithBoost(docID string, doc map[string]any, boost float32) error {
	if !(boost > 0) || math.IsInf(float64(boost), 0) {
		return fmt.Errorf("invalid boost %v for document %s: must be a positive finite number", boost, docID)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}

	idx.builder.Delete(docID)
	idx.markObsoletes([]string{docID})
	idx.builder.AddWithBoost(docID, doc, boost)
	idx.metrics.DocsIndexedTotal.Inc()

	if idx.builder.NumDocs() >= uint64(idx.flushThreshold) {
		return idx.flushInternal()
	}

	return nil
}

func (idx *Index) Delete(docID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}

	idx.builder.Delete(docID)
	idx.markObsoletes([]string{docID})
	idx.metrics.DocsDeletedTotal.Inc()
	return nil
}

// markObsoletes updates deletion bitmaps for docs in persisted segments.
func (idx *Index) markObsoletes(docIDs []string) {
	for _, seg := range idx.segments {
		obsoletes := seg.DocNumbers(docIDs)
		if obsoletes.IsEmpty() {
			continue
		}
		segID := seg.ID()
		if idx.pendingDeletions[segID] == nil {
			idx.pendingDeletions[segID] = roaring.New()
		}
		idx.pendingDeletions[segID].Or(obsoletes)
	}
}

func (idx *Index) closeSegments() {
	for _, seg := range idx.segments {
		seg.Release()
	}
	idx.segments = nil
}
