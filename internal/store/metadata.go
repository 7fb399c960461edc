// Package store persists index metadata in a bolt database: the live
// segment list, per-segment deletion bitmaps, the flush epoch and the
// similarity the norms were written with.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/RoaringBitmap/roaring"
	"github.com/boltdb/bolt"
)

// FileName is the name of the metadata database inside an index directory.
const FileName = "meta.db"

var (
	bucketSegments  = []byte("segments")
	bucketDeletions = []byte("deletions")
	bucketMeta      = []byte("meta")

	keySegmentList = []byte("list")
	keyEpoch       = []byte("epoch")
	keySimilarity  = []byte("similarity")
)

// Metadata is the metadata store of one index directory.
type Metadata struct {
	db *bolt.DB
}

// NewMetadata opens or creates the metadata store in dir.
func NewMetadata(dir string) (*Metadata, error) {
	db, err := bolt.Open(filepath.Join(dir, FileName), 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSegments, bucketDeletions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Metadata{db: db}, nil
}

func (m *Metadata) Close() error {
	return m.db.Close()
}

// view runs fn in a read-only transaction.
func (m *Metadata) view(fn func(*Tx) error) error {
	return m.db.View(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// Update runs fn in a write transaction. Nothing fn writes is visible
// unless it returns nil.
func (m *Metadata) Update(fn func(*Tx) error) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// GetSegments returns the live segment IDs, oldest first.
func (m *Metadata) GetSegments() (ids []string, err error) {
	err = m.view(func(tx *Tx) error {
		ids, err = tx.GetSegments()
		return err
	})
	return ids, err
}

// GetDeletions returns the deletion bitmap of a segment. A segment with no
// deletions yields an empty bitmap.
func (m *Metadata) GetDeletions(segmentID string) (bm *roaring.Bitmap, err error) {
	err = m.view(func(tx *Tx) error {
		bm, err = tx.GetDeletions(segmentID)
		return err
	})
	return bm, err
}

// GetEpoch returns the number of committed flushes and merges.
func (m *Metadata) GetEpoch() (epoch uint64, err error) {
	err = m.view(func(tx *Tx) error {
		epoch = tx.epoch()
		return nil
	})
	return epoch, err
}

// GetSimilarity returns the display string of the similarity recorded for
// the index, or "" if none was recorded yet.
func (m *Metadata) GetSimilarity() (similarity string, err error) {
	err = m.view(func(tx *Tx) error {
		similarity = string(tx.tx.Bucket(bucketMeta).Get(keySimilarity))
		return nil
	})
	return similarity, err
}

// Tx is a metadata transaction. Setters fail inside a read-only one.
type Tx struct {
	tx *bolt.Tx
}

func (t *Tx) GetSegments() ([]string, error) {
	data := t.tx.Bucket(bucketSegments).Get(keySegmentList)
	if data == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode segment list: %w", err)
	}
	return ids, nil
}

// SetSegments replaces the live segment list.
func (t *Tx) SetSegments(segmentIDs []string) error {
	data, err := json.Marshal(segmentIDs)
	if err != nil {
		return err
	}
	return t.tx.Bucket(bucketSegments).Put(keySegmentList, data)
}

func (t *Tx) GetDeletions(segmentID string) (*roaring.Bitmap, error) {
	bm := roaring.New()
	data := t.tx.Bucket(bucketDeletions).Get([]byte(segmentID))
	if data == nil {
		return bm, nil
	}
	if _, err := bm.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("decode deletions of %s: %w", segmentID, err)
	}
	return bm, nil
}

// SetDeletions replaces the deletion bitmap of a segment.
func (t *Tx) SetDeletions(segmentID string, bm *roaring.Bitmap) error {
	var buf bytes.Buffer
	if _, err := bm.WriteTo(&buf); err != nil {
		return err
	}
	return t.tx.Bucket(bucketDeletions).Put([]byte(segmentID), buf.Bytes())
}

// DeleteDeletions drops the deletion bitmap of a segment that no longer
// exists.
func (t *Tx) DeleteDeletions(segmentID string) error {
	return t.tx.Bucket(bucketDeletions).Delete([]byte(segmentID))
}

func (t *Tx) epoch() uint64 {
	data := t.tx.Bucket(bucketMeta).Get(keyEpoch)
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// IncrementEpoch bumps the epoch and returns the new value.
func (t *Tx) IncrementEpoch() (uint64, error) {
	next := t.epoch() + 1
	return next, t.tx.Bucket(bucketMeta).Put(keyEpoch, binary.BigEndian.AppendUint64(nil, next))
}

// SetSimilarity records the similarity new segments are written with.
func (t *Tx) SetSimilarity(similarity string) error {
	return t.tx.Bucket(bucketMeta).Put(keySimilarity, []byte(similarity))
}
