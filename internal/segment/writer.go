package segment

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/couchbase/vellum"
	"github.com/golang/snappy"
)

// segmentWriter buffers writes to a segment file and tracks the offset of
// the next byte. The first write error sticks and is reported by flush.
type segmentWriter struct {
	w   *bufio.Writer
	off uint64
	err error
}

func newSegmentWriter(f *os.File) *segmentWriter {
	return &segmentWriter{w: bufio.NewWriterSize(f, 64<<10)}
}

func (w *segmentWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.w.Write(p)
	w.off += uint64(n)
	w.err = err
	return n, err
}

func (w *segmentWriter) putUint32(v uint32) {
	w.Write(binary.BigEndian.AppendUint32(nil, v))
}

func (w *segmentWriter) putUint64(v uint64) {
	w.Write(binary.BigEndian.AppendUint64(nil, v))
}

func (w *segmentWriter) flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// Build writes the segment to dir and returns its path. The file is
// written under a temporary name and renamed once complete.
//
// Layout: magic, version, doc count, stored-field chunks, per-field
// postings/dictionary/norms, JSON footer, then the footer offset and size.
func (b *Builder) Build(dir, segmentID string) (string, error) {
	segPath := filepath.Join(dir, segmentID+".seg")
	tmpPath := segPath + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create segment file: %w", err)
	}
	done := false
	defer func() {
		if !done {
			file.Close()
			os.Remove(tmpPath)
		}
	}()

	w := newSegmentWriter(file)
	w.Write([]byte(SegmentMagic))
	w.putUint32(SegmentVersion)
	w.putUint64(b.TotalDocs())

	footer := Footer{
		DocIDs:  b.DocIDs,
		NumDocs: b.TotalDocs(),
		Boosts:  b.persistedBoosts(),
	}
	if b.model != nil {
		footer.Similarity = b.model.String()
	}

	footer.StoredFieldsOffset = w.off
	if footer.ChunkOffsets, err = b.writeStoredFields(w); err != nil {
		return "", fmt.Errorf("failed to write stored fields: %w", err)
	}
	footer.FieldsIndexOffset = w.off
	if footer.FieldsMeta, err = b.writeFieldsIndex(w); err != nil {
		return "", fmt.Errorf("failed to write fields index: %w", err)
	}

	footerOffset := w.off
	footerData, err := json.Marshal(footer)
	if err != nil {
		return "", err
	}
	w.Write(footerData)
	w.putUint64(footerOffset)
	w.putUint64(uint64(len(footerData)))

	if err := w.flush(); err != nil {
		return "", err
	}
	if err := file.Sync(); err != nil {
		return "", err
	}
	done = true
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, segPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return segPath, nil
}

// writeStoredFields writes the documents as snappy-compressed JSON chunks
// of ChunkSize, each prefixed with its length, and returns chunk offsets.
func (b *Builder) writeStoredFields(w *segmentWriter) ([]uint64, error) {
	var offsets []uint64
	for start := 0; start < len(b.Docs); start += ChunkSize {
		raw, err := json.Marshal(b.Docs[start:min(start+ChunkSize, len(b.Docs))])
		if err != nil {
			return nil, err
		}
		block := snappy.Encode(nil, raw)

		offsets = append(offsets, w.off)
		w.putUint32(uint32(len(block)))
		w.Write(block)
	}
	return offsets, w.err
}

// writeFieldsIndex writes every field's index in name order.
func (b *Builder) writeFieldsIndex(w *segmentWriter) ([]FieldMeta, error) {
	names := make([]string, 0, len(b.Fields))
	for name := range b.Fields {
		names = append(names, name)
	}
	slices.Sort(names)

	metas := make([]FieldMeta, 0, len(names))
	for _, name := range names {
		meta, err := b.writeFieldIndex(w, name)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// writeFieldIndex writes the postings of one field, its FST dictionary
// behind an 8-byte length, and one norm byte per docNum.
func (b *Builder) writeFieldIndex(w *segmentWriter, field string) (FieldMeta, error) {
	terms := b.Fields[field]
	meta := FieldMeta{Name: field, FieldStats: b.FieldStats(field)}

	sorted := make([]string, 0, len(terms))
	for term := range terms {
		sorted = append(sorted, term)
	}
	slices.Sort(sorted)

	// dictionary values are offsets relative to PostingsOffset, except for
	// _id whose terms map straight to their docNum
	meta.PostingsOffset = w.off
	values := make([]uint64, len(sorted))
	for i, term := range sorted {
		postings := terms[term]
		if field == IDField {
			values[i] = EncodeOneHit(postings[len(postings)-1].DocNum)
			continue
		}
		slices.SortFunc(postings, func(x, y Posting) int {
			return cmp.Compare(x.DocNum, y.DocNum)
		})
		values[i] = w.off - meta.PostingsOffset
		w.Write(EncodePostings(postings))
	}
	meta.PostingsSize = w.off - meta.PostingsOffset

	var dict bytes.Buffer
	fst, err := vellum.New(&dict, nil)
	if err != nil {
		return meta, err
	}
	for i, term := range sorted {
		if err := fst.Insert([]byte(term), values[i]); err != nil {
			return meta, err
		}
	}
	if err := fst.Close(); err != nil {
		return meta, err
	}

	meta.DictOffset = w.off
	w.putUint64(uint64(dict.Len()))
	w.Write(dict.Bytes())
	meta.DictSize = w.off - meta.DictOffset

	if norms, ok := b.Norms[field]; ok {
		block := make([]byte, b.TotalDocs())
		copy(block, norms)
		meta.NormsOffset = w.off
		w.Write(block)
	}
	return meta, w.err
}
