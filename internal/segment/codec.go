package segment

import (
	"encoding/binary"
	"errors"
)

// Segment file format constants
const (
	SegmentMagic   = "RLV\x00"
	SegmentVersion = uint32(3)
	ChunkSize      = 1024 // Documents per chunk for stored fields
)

// OneHitFlag - high bit set means the dictionary value is a docNum rather
// than a postings offset. Only used for the _id field.
const OneHitFlag = uint64(1 << 63)

func IsOneHit(val uint64) bool {
	return (val & OneHitFlag) != 0
}

func EncodeOneHit(docNum uint64) uint64 {
	return OneHitFlag | docNum
}

func DecodeOneHit(val uint64) uint64 {
	return val &^ OneHitFlag
}

type Posting struct {
	DocNum    uint64
	Frequency uint64
	Positions []uint64
}

// FieldStats are the per-field collection counters of a segment. Deleted
// documents keep contributing until the segment is merged away.
type FieldStats struct {
	DocCount         uint64 `json:"doc_count"`
	SumTotalTermFreq uint64 `json:"sum_ttf"`
}

type Footer struct {
	StoredFieldsOffset uint64      `json:"stored_offset"`
	FieldsIndexOffset  uint64      `json:"fields_offset"`
	ChunkOffsets       []uint64    `json:"chunks"`
	FieldsMeta         []FieldMeta `json:"fields"`
	DocIDs             []string    `json:"doc_ids"`
	NumDocs            uint64      `json:"num_docs"`
	// Boosts holds the index-time boost of every document, nil when all are 1.
	Boosts []float32 `json:"boosts,omitempty"`
	// Similarity is the display string of the model that computed the norms.
	Similarity string `json:"similarity"`
}

type FieldMeta struct {
	Name           string `json:"name"`
	DictOffset     uint64 `json:"dict_offset"`
	DictSize       uint64 `json:"dict_size"`
	PostingsOffset uint64 `json:"postings_offset"`
	PostingsSize   uint64 `json:"postings_size"`
	// NormsOffset points at NumDocs norm bytes, one per docNum. Zero when
	// the field carries no norms.
	NormsOffset uint64 `json:"norms_offset,omitempty"`
	FieldStats
}

// EncodePostings encodes a posting list: count, delta-coded docNums,
// frequencies, then delta-coded positions per posting.
func EncodePostings(postings []Posting) []byte {
	buf := make([]byte, 0, len(postings)*8+binary.MaxVarintLen64)

	buf = binary.AppendUvarint(buf, uint64(len(postings)))

	var prevDocNum uint64
	for _, p := range postings {
		buf = binary.AppendUvarint(buf, p.DocNum-prevDocNum)
		prevDocNum = p.DocNum
	}

	for _, p := range postings {
		buf = binary.AppendUvarint(buf, p.Frequency)
	}

	for _, p := range postings {
		buf = binary.AppendUvarint(buf, uint64(len(p.Positions)))
		var prevPos uint64
		for _, pos := range p.Positions {
			buf = binary.AppendUvarint(buf, pos-prevPos)
			prevPos = pos
		}
	}

	return buf
}

// ErrCorruptPostings is returned when an encoded posting list ends early
// or holds a varint wider than 64 bits.
var ErrCorruptPostings = errors.New("corrupt postings")

// uvarintDecoder reads consecutive uvarints and keeps the first error, so
// callers check once after a batch of reads.
type uvarintDecoder struct {
	buf []byte
	err error
}

func (d *uvarintDecoder) next() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.err = ErrCorruptPostings
		d.buf = nil
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

// DecodePostings decodes a posting list written by EncodePostings. data
// may extend past the end of the list.
func DecodePostings(data []byte) ([]Posting, error) {
	d := &uvarintDecoder{buf: data}

	count := d.next()
	if d.err != nil {
		return nil, d.err
	}
	// every posting takes at least one byte
	if count > uint64(len(d.buf)) {
		return nil, ErrCorruptPostings
	}
	postings := make([]Posting, count)

	var docNum uint64
	for i := range postings {
		docNum += d.next()
		postings[i].DocNum = docNum
	}
	for i := range postings {
		postings[i].Frequency = d.next()
	}
	for i := range postings {
		n := d.next()
		if d.err == nil && n > uint64(len(d.buf)) {
			d.err = ErrCorruptPostings
		}
		if d.err != nil {
			return nil, d.err
		}
		positions := make([]uint64, n)
		var pos uint64
		for j := range positions {
			pos += d.next()
			positions[j] = pos
		}
		postings[i].Positions = positions
	}

	if d.err != nil {
		return nil, d.err
	}
	return postings, nil
}

// postingsCount reads only the leading count of an encoded posting list.
func postingsCount(data []byte) (uint64, error) {
	d := &uvarintDecoder{buf: data}
	n := d.next()
	return n, d.err
}
