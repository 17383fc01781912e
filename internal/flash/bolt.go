package flash

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var pageBucket = []byte("flash")

// BoltStorage persists the flash image as pages in a bbolt database, so the
// sentinel survives process restarts the way real flash survives reboots.
type BoltStorage struct {
	db       *bolt.DB
	capacity uint32
}

// OpenBolt opens (or creates) the flash image at path.
func OpenBolt(path string, capacity uint32) (*BoltStorage, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("flash: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pageBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("flash: init %s: %w", path, err)
	}
	return &BoltStorage{db: db, capacity: capacity}, nil
}

func (s *BoltStorage) Capacity() uint32 { return s.capacity }

func pageKey(page uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, page)
	return k
}

func (s *BoltStorage) Read(offset uint32, buf []byte) error {
	if err := checkRange(offset, len(buf), s.capacity); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(pageBucket)
		return pageSpan(offset, len(buf), func(page uint32, pageOff, off, length int) error {
			p := b.Get(pageKey(page))
			if p == nil {
				for i := 0; i < length; i++ {
					buf[off+i] = Erased
				}
				return nil
			}
			copy(buf[off:off+length], p[pageOff:])
			return nil
		})
	})
}

func (s *BoltStorage) Write(offset uint32, data []byte) error {
	if err := checkRange(offset, len(data), s.capacity); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pageBucket)
		return pageSpan(offset, len(data), func(page uint32, pageOff, off, length int) error {
			key := pageKey(page)
			p := erasedPage()
			if old := b.Get(key); old != nil {
				copy(p, old)
			}
			copy(p[pageOff:], data[off:off+length])
			if err := b.Put(key, p); err != nil {
				return fmt.Errorf("flash: store page %d: %w", page, err)
			}
			return nil
		})
	})
}

// Close flushes and closes the database.
func (s *BoltStorage) Close() error {
	return s.db.Close()
}
