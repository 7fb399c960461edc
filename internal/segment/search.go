package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring"
	"github.com/couchbase/vellum"
)

// ErrFieldNotFound is returned when a segment has no postings for a field.
var ErrFieldNotFound = errors.New("field not found")

// getFST returns the FST for a field, loading it lazily.
func (s *Segment) getFST(fieldName string) (*vellum.FST, error) {
	s.fstsMu.RLock()
	fst, ok := s.fsts[fieldName]
	s.fstsMu.RUnlock()
	if ok {
		return fst, nil
	}

	s.fstsMu.Lock()
	defer s.fstsMu.Unlock()

	if fst, ok := s.fsts[fieldName]; ok {
		return fst, nil
	}
	if s.fsts == nil {
		return nil, fmt.Errorf("segment %s is closed", s.id)
	}

	meta, ok := s.fieldMetaByName[fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldName)
	}
	size := binary.BigEndian.Uint64(s.data[meta.DictOffset:])
	fst, err := vellum.Load(s.data[meta.DictOffset+8 : meta.DictOffset+8+size])
	if err != nil {
		return nil, fmt.Errorf("failed to load FST for field %s: %w", fieldName, err)
	}

	s.fsts[fieldName] = fst
	return fst, nil
}

// lookup returns the dictionary value of term, or false if absent.
func (s *Segment) lookup(term, fieldName string) (uint64, bool, error) {
	fst, err := s.getFST(fieldName)
	if err != nil {
		return 0, false, err
	}
	return fst.Get([]byte(term))
}

// postingsAt returns the encoded posting list at a dictionary value.
func (s *Segment) postingsAt(fieldName string, val uint64) []byte {
	return s.data[s.fieldMetaByName[fieldName].PostingsOffset+val:]
}

// Search returns the postings of term in a field, skipping docs in deleted.
func (s *Segment) Search(term, fieldName string, deleted *roaring.Bitmap) ([]Posting, error) {
	val, exists, err := s.lookup(term, fieldName)
	if err != nil || !exists {
		return nil, err
	}

	var postings []Posting
	if IsOneHit(val) {
		postings = []Posting{{DocNum: DecodeOneHit(val), Frequency: 1}}
	} else if postings, err = DecodePostings(s.postingsAt(fieldName, val)); err != nil {
		return nil, fmt.Errorf("decode postings for %s:%s: %w", fieldName, term, err)
	}

	if deleted == nil || deleted.IsEmpty() {
		return postings, nil
	}
	return slices.DeleteFunc(postings, func(p Posting) bool {
		return deleted.Contains(uint32(p.DocNum))
	}), nil
}

// DocFreq returns the number of documents containing term in a field,
// deleted documents included.
func (s *Segment) DocFreq(term, fieldName string) (uint64, error) {
	val, exists, err := s.lookup(term, fieldName)
	switch {
	case err != nil || !exists:
		return 0, err
	case IsOneHit(val):
		return 1, nil
	}
	return postingsCount(s.postingsAt(fieldName, val))
}
