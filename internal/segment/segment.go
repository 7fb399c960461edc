package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"
	"github.com/couchbase/vellum"
	"github.com/edsrzf/mmap-go"
	"github.com/golang/snappy"
)

// Segment represents an immutable, mmap'd segment.
type Segment struct {
	id     string
	path   string
	file   *os.File
	data   mmap.MMap
	footer Footer

	fieldMetaByName map[string]*FieldMeta

	fsts   map[string]*vellum.FST
	fstsMu sync.RWMutex

	refs     atomic.Int32
	obsolete atomic.Bool
}

// headerSize covers the magic, the version and the doc count. The file
// ends with the footer offset and size.
const (
	headerSize  = len(SegmentMagic) + 4 + 8
	trailerSize = 16
)

// Open maps an existing segment file read-only and decodes its footer.
func Open(path, segmentID string) (*Segment, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if stat.Size() < int64(headerSize+trailerSize) {
		file.Close()
		return nil, fmt.Errorf("segment file too small: %s", path)
	}

	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap segment %s: %w", path, err)
	}

	footer, err := readFooter(data)
	if err != nil {
		data.Unmap()
		file.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}

	fieldMetaByName := make(map[string]*FieldMeta, len(footer.FieldsMeta))
	for i := range footer.FieldsMeta {
		fieldMetaByName[footer.FieldsMeta[i].Name] = &footer.FieldsMeta[i]
	}

	seg := &Segment{
		id:              segmentID,
		path:            path,
		file:            file,
		data:            data,
		footer:          footer,
		fieldMetaByName: fieldMetaByName,
		fsts:            make(map[string]*vellum.FST),
	}
	seg.refs.Store(1)
	return seg, nil
}

// readFooter checks the header of a mapped segment and decodes the footer,
// making sure every norm block lies before it.
func readFooter(data []byte) (Footer, error) {
	var footer Footer
	if string(data[:len(SegmentMagic)]) != SegmentMagic {
		return footer, errors.New("invalid segment magic")
	}
	if v := binary.BigEndian.Uint32(data[len(SegmentMagic):]); v != SegmentVersion {
		return footer, fmt.Errorf("unsupported segment version %d", v)
	}

	trailer := data[len(data)-trailerSize:]
	offset := binary.BigEndian.Uint64(trailer)
	size := binary.BigEndian.Uint64(trailer[8:])
	if offset < uint64(headerSize) || offset+size > uint64(len(data)-trailerSize) {
		return footer, errors.New("corrupt segment footer")
	}
	if err := json.Unmarshal(data[offset:offset+size], &footer); err != nil {
		return footer, fmt.Errorf("failed to parse segment footer: %w", err)
	}

	for _, meta := range footer.FieldsMeta {
		if meta.NormsOffset != 0 && meta.NormsOffset+footer.NumDocs > offset {
			return footer, fmt.Errorf("norms of field %s out of range", meta.Name)
		}
	}
	return footer, nil
}

func (s *Segment) ID() string { return s.id }

func (s *Segment) Path() string { return s.path }

// NumDocs returns the total number of documents, deleted ones included.
func (s *Segment) NumDocs() uint64 { return s.footer.NumDocs }

// Similarity returns the display string of the model the norms were
// computed with.
func (s *Segment) Similarity() string { return s.footer.Similarity }

// ExternalID returns the external ID for a given docNum.
func (s *Segment) ExternalID(docNum uint64) (string, bool) {
	if docNum >= s.footer.NumDocs {
		return "", false
	}
	return s.footer.DocIDs[docNum], true
}

// DocNumbers returns a bitmap of docNums for the given external IDs.
func (s *Segment) DocNumbers(externalIDs []string) *roaring.Bitmap {
	bm := roaring.New()
	for _, id := range externalIDs {
		if docNum, ok := s.DocNum(id); ok {
			bm.Add(uint32(docNum))
		}
	}
	return bm
}

// DocNum returns the docNum of an external ID.
func (s *Segment) DocNum(externalID string) (uint64, bool) {
	val, exists, err := s.lookup(externalID, IDField)
	if err != nil || !exists || !IsOneHit(val) {
		return 0, false
	}
	return DecodeOneHit(val), true
}

// Size returns the size of the segment file in bytes.
func (s *Segment) Size() int64 { return int64(len(s.data)) }

// Fields returns the list of indexed field names.
func (s *Segment) Fields() []string {
	fields := make([]string, len(s.footer.FieldsMeta))
	for i, fm := range s.footer.FieldsMeta {
		fields[i] = fm.Name
	}
	return fields
}

// Norm returns the stored norm byte of a field in a document, read
// straight from the mapped file.
func (s *Segment) Norm(field string, docNum uint64) byte {
	meta, ok := s.fieldMetaByName[field]
	if !ok || meta.NormsOffset == 0 || docNum >= s.footer.NumDocs {
		return 0
	}
	return s.data[meta.NormsOffset+docNum]
}

// FieldStats returns the collection counters for a field.
func (s *Segment) FieldStats(field string) FieldStats {
	if meta, ok := s.fieldMetaByName[field]; ok {
		return meta.FieldStats
	}
	return FieldStats{}
}

// Boost returns the index-time boost of a document.
func (s *Segment) Boost(docNum uint64) float32 {
	if docNum < uint64(len(s.footer.Boosts)) {
		return s.footer.Boosts[docNum]
	}
	return 1
}

// LoadDoc loads a document by docNum from stored fields.
func (s *Segment) LoadDoc(docNum uint64) (map[string]any, error) {
	if docNum >= s.footer.NumDocs {
		return nil, fmt.Errorf("docNum %d out of range", docNum)
	}
	chunk, err := s.storedChunk(docNum / ChunkSize)
	if err != nil {
		return nil, err
	}
	i := docNum % ChunkSize
	if i >= uint64(len(chunk)) {
		return nil, fmt.Errorf("docNum %d missing from its chunk", docNum)
	}
	return chunk[i], nil
}

// storedChunk decompresses and decodes one chunk of stored documents.
func (s *Segment) storedChunk(n uint64) ([]map[string]any, error) {
	if n >= uint64(len(s.footer.ChunkOffsets)) {
		return nil, fmt.Errorf("chunk %d out of range", n)
	}
	offset := s.footer.ChunkOffsets[n]
	size := uint64(binary.BigEndian.Uint32(s.data[offset:]))
	block := s.data[offset+4 : offset+4+size]

	raw, err := snappy.Decode(nil, block)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress chunk %d: %w", n, err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse chunk %d: %w", n, err)
	}
	return docs, nil
}

// Acquire takes a reference that keeps the segment mapped until the
// matching Release. Open returns a segment holding one reference.
func (s *Segment) Acquire() { s.refs.Add(1) }

// Release drops a reference. The last one closes the segment and, if it
// was marked obsolete, removes its file.
func (s *Segment) Release() error {
	if s.refs.Add(-1) > 0 {
		return nil
	}
	err := s.Close()
	if s.obsolete.Load() {
		err = errors.Join(err, os.Remove(s.path))
	}
	return err
}

// MarkObsolete makes the last Release delete the segment file. A merge
// marks its sources this way so open snapshots can keep reading them.
func (s *Segment) MarkObsolete() { s.obsolete.Store(true) }

// Close releases segment resources regardless of outstanding references.
func (s *Segment) Close() error {
	s.fstsMu.Lock()
	defer s.fstsMu.Unlock()

	for _, fst := range s.fsts {
		fst.Close()
	}
	s.fsts = nil

	if s.data != nil {
		s.data.Unmap()
		s.data = nil
	}
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}
