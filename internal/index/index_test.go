package index

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"harshagw/relevance/internal/similarity"
)

func newTestIndex(t *testing.T, dir string) *Index {
	t.Helper()
	cfg := DefaultConfig(dir)
	cfg.FlushThreshold = 100
	idx, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func mustSnapshot(t *testing.T, idx *Index) *IndexSnapshot {
	t.Helper()
	snap, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	t.Cleanup(func() { snap.Close() })
	return snap
}

func TestIndex_CollectionStatistics_SpansSegmentsAndMemory(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())

	idx.Index("doc1", map[string]any{"title": "a b"})
	idx.Index("doc2", map[string]any{"title": "a b c d"})
	if err := idx.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	idx.Index("doc3", map[string]any{"title": "a b c"})
	idx.Index("doc4", map[string]any{"body": "other field"})

	coll := mustSnapshot(t, idx).CollectionStatistics("title")
	want := similarity.CollectionStatistics{Field: "title", MaxDoc: 4, DocCount: 3, SumTotalTermFreq: 9}
	if coll != want {
		t.Errorf("CollectionStatistics = %+v, want %+v", coll, want)
	}
}

func TestIndex_TermStatistics(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())

	idx.Index("doc1", map[string]any{"title": "apple banana"})
	idx.Flush()
	idx.Index("doc2", map[string]any{"title": "apple"})
	idx.Index("doc3", map[string]any{"body": "apple"})

	snap := mustSnapshot(t, idx)
	ts, err := snap.TermStatistics("apple", "title")
	if err != nil {
		t.Fatalf("TermStatistics: %v", err)
	}
	if ts.DocFreq != 2 || ts.Term != "apple" {
		t.Errorf("TermStatistics = %+v, want apple/2", ts)
	}

	ts, err = snap.TermStatistics("apple", "missing")
	if err != nil || ts.DocFreq != 0 {
		t.Errorf("missing field: %+v, %v", ts, err)
	}
}

func TestIndex_DeletedDocsCountUntilMerge(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())

	idx.Index("doc1", map[string]any{"title": "a b"})
	idx.Flush()
	idx.Index("doc2", map[string]any{"title": "a b c d"})
	idx.Flush()
	idx.Delete("doc2")
	idx.Flush()

	snap := mustSnapshot(t, idx)
	if got := snap.TotalDocs(); got != 1 {
		t.Errorf("TotalDocs = %d, want 1", got)
	}
	coll := snap.CollectionStatistics("title")
	if coll.DocCount != 2 || coll.SumTotalTermFreq != 6 {
		t.Errorf("stats before merge = %+v, want deleted doc still counted", coll)
	}

	if err := idx.ForceMerge(); err != nil {
		t.Fatalf("ForceMerge: %v", err)
	}
	coll = mustSnapshot(t, idx).CollectionStatistics("title")
	if coll.MaxDoc != 1 || coll.DocCount != 1 || coll.SumTotalTermFreq != 2 {
		t.Errorf("stats after merge = %+v", coll)
	}
	if idx.NumSegments() != 1 {
		t.Errorf("NumSegments = %d, want 1", idx.NumSegments())
	}
}

func TestIndex_MergeHonorsPendingDeletions(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())

	idx.Index("doc1", map[string]any{"title": "alpha"})
	idx.Flush()
	idx.Index("doc2", map[string]any{"title": "beta"})
	idx.Flush()
	idx.Delete("doc1")

	if err := idx.ForceMerge(); err != nil {
		t.Fatalf("ForceMerge: %v", err)
	}

	snap := mustSnapshot(t, idx)
	if got := snap.TotalDocs(); got != 1 {
		t.Errorf("TotalDocs = %d, want 1", got)
	}
	for _, r := range snap.Readers() {
		if _, ok := r.DocNum("doc1"); ok {
			t.Errorf("doc1 resurrected in %s", r.ID())
		}
	}
}

func TestIndex_SnapshotOutlivesMerge(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())

	idx.Index("doc1", map[string]any{"title": "alpha beta"})
	idx.Flush()
	idx.Index("doc2", map[string]any{"title": "alpha"})
	idx.Flush()

	snap, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var paths []string
	for _, ss := range snap.Segments() {
		paths = append(paths, ss.Segment().Path())
	}

	if err := idx.ForceMerge(); err != nil {
		t.Fatalf("ForceMerge: %v", err)
	}
	if idx.NumSegments() != 1 {
		t.Fatalf("NumSegments = %d, want 1", idx.NumSegments())
	}

	for _, ss := range snap.Segments() {
		postings, err := ss.Search("alpha", "title")
		if err != nil || len(postings) != 1 {
			t.Fatalf("%s: Search = %+v, %v", ss.ID(), postings, err)
		}
		if ss.Norm("title", postings[0].DocNum) == 0 {
			t.Errorf("%s: norm lost after merge", ss.ID())
		}
		if _, err := ss.LoadDoc(postings[0].DocNum); err != nil {
			t.Errorf("%s: LoadDoc: %v", ss.ID(), err)
		}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s removed while still referenced: %v", path, err)
		}
	}

	if err := snap.Close(); err != nil {
		t.Fatalf("snapshot Close: %v", err)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s not removed after the last reference: %v", path, err)
		}
	}
	if err := snap.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}

	if got := mustSnapshot(t, idx).TotalDocs(); got != 2 {
		t.Errorf("TotalDocs after merge = %d, want 2", got)
	}
}

func TestIndex_MergePreservesBoost(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())

	if err := idx.IndexWithBoost("doc1", map[string]any{"title": "a b c d e f g h"}, 2); err != nil {
		t.Fatalf("IndexWithBoost: %v", err)
	}
	idx.Flush()
	idx.Index("doc2", map[string]any{"title": "x"})
	idx.Flush()
	if err := idx.ForceMerge(); err != nil {
		t.Fatalf("ForceMerge: %v", err)
	}

	seg := mustSnapshot(t, idx).Segments()[0]
	docNum, ok := seg.DocNum("doc1")
	if !ok {
		t.Fatal("doc1 missing after merge")
	}
	if got := seg.Segment().Boost(docNum); got != 2 {
		t.Errorf("boost after merge = %v, want 2", got)
	}
	if got := seg.Norm("title", docNum); got != 2 {
		t.Errorf("norm after merge = %d, want 2", got)
	}
}

func TestIndex_IndexWithBoost_RejectsInvalid(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())
	for _, boost := range []float32{0, -1} {
		if err := idx.IndexWithBoost("doc", map[string]any{"title": "x"}, boost); err == nil {
			t.Errorf("boost %v: expected error", boost)
		}
	}
}

func TestIndex_ReindexReplaces(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())

	idx.Index("doc1", map[string]any{"title": "old text"})
	idx.Flush()
	idx.Index("doc1", map[string]any{"title": "new"})

	snap := mustSnapshot(t, idx)
	if got := snap.TotalDocs(); got != 1 {
		t.Errorf("TotalDocs = %d, want 1", got)
	}
	if _, ok := snap.Segments()[0].DocNum("doc1"); ok {
		t.Error("old version should be deleted from the segment")
	}
	docNum, ok := snap.Memory().DocNum("doc1")
	if !ok {
		t.Fatal("new version missing from memory")
	}
	doc, _ := snap.Memory().LoadDoc(docNum)
	if doc["title"] != "new" {
		t.Errorf("doc = %v", doc)
	}
}

func TestIndex_SnapshotIsPointInTime(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())

	idx.Index("doc1", map[string]any{"title": "shared"})
	snap := mustSnapshot(t, idx)

	idx.Index("doc2", map[string]any{"title": "shared"})
	idx.Delete("doc1")

	mem := snap.Memory()
	postings, _ := mem.Search("shared", "title")
	if len(postings) != 1 || postings[0].DocNum != 0 {
		t.Errorf("postings = %+v, want only doc1", postings)
	}
	if df, _ := mem.DocFreq("shared", "title"); df != 1 {
		t.Errorf("DocFreq = %d, want 1", df)
	}
	if coll := snap.CollectionStatistics("title"); coll.DocCount != 1 {
		t.Errorf("DocCount = %d, want 1", coll.DocCount)
	}
	if _, ok := mem.DocNum("doc2"); ok {
		t.Error("doc2 indexed after the snapshot should be invisible")
	}
}

func TestIndex_AutoFlush(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.FlushThreshold = 2
	idx, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer idx.Close()

	idx.Index("doc1", map[string]any{"title": "a"})
	idx.Index("doc2", map[string]any{"title": "b"})
	if idx.NumSegments() != 1 {
		t.Errorf("NumSegments = %d, want 1 after reaching the threshold", idx.NumSegments())
	}
}

func TestIndex_ReopenKeepsSegments(t *testing.T) {
	dir := t.TempDir()
	idx, err := New(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	idx.Index("doc1", map[string]any{"title": "persisted words"})
	idx.Flush()
	idx.Close()

	idx = newTestIndex(t, dir)
	coll := mustSnapshot(t, idx).CollectionStatistics("title")
	if coll.DocCount != 1 || coll.SumTotalTermFreq != 2 {
		t.Errorf("stats after reopen = %+v", coll)
	}
	segs := idx.Segments()
	if len(segs) != 1 || segs[0].Similarity != "BM25(k1=1.2,b=0.75)" {
		t.Errorf("segments = %+v", segs)
	}
}

func TestIndex_WarnsOnSimilarityChange(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	dir := t.TempDir()
	idx, err := New(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	idx.Close()

	cfg := DefaultConfig(dir)
	cfg.Similarity = similarity.NewLtc()
	idx, err = New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	idx.Close()

	out := buf.String()
	if !strings.Contains(out, "similarity differs") || !strings.Contains(out, "LtcSimilarity") {
		t.Errorf("expected a mismatch warning, got:\n%s", out)
	}
}

func TestIndex_SegmentStats(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())
	idx.Index("doc1", map[string]any{"title": "a b", "body": "c"})
	idx.Index("doc2", map[string]any{"title": "d"})
	idx.Delete("doc2")
	idx.Index("doc3", map[string]any{"title": "e"})
	idx.Flush()

	segs := idx.Segments()
	stats, err := idx.SegmentStats(segs[0].ID)
	if err != nil {
		t.Fatalf("SegmentStats: %v", err)
	}
	if stats.NumDocs != 3 || stats.NumDeleted != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if fs := stats.Fields["title"]; fs.DocCount != 3 || fs.SumTotalTermFreq != 4 {
		t.Errorf("title stats = %+v", fs)
	}
	if _, ok := stats.Fields["_id"]; ok {
		t.Error("_id should not be reported")
	}

	entries, _ := idx.DumpPostings("title", "a")
	if len(entries) != 1 || entries[0].Norm != 2 {
		t.Errorf("DumpPostings = %+v", entries)
	}
}

func TestIndex_ClosedRejectsWrites(t *testing.T) {
	idx, err := New(DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	idx.Close()

	if err := idx.Index("doc", map[string]any{"title": "x"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Index on closed index = %v, want ErrClosed", err)
	}
	if _, err := idx.Snapshot(); !errors.Is(err, ErrClosed) {
		t.Errorf("Snapshot on closed index = %v, want ErrClosed", err)
	}
	if err := idx.Merge([]string{"a", "b"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Merge on closed index = %v, want ErrClosed", err)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestIndex_DeletionSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	idx, err := New(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	idx.Index("doc1", map[string]any{"title": "a"})
	idx.Index("doc2", map[string]any{"title": "b"})
	idx.Flush()
	idx.Delete("doc1")
	idx.Close()

	idx = newTestIndex(t, dir)
	if got := mustSnapshot(t, idx).TotalDocs(); got != 1 {
		t.Errorf("TotalDocs after reopen = %d, want 1", got)
	}
}
