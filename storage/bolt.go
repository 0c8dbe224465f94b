package storage

import (
	"bytes"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketState = []byte("state")

// BoltDB stores every key in a single bucket of a bbolt file.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (creating if needed) the bbolt file at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Put(key []byte, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Put(key, value)
	})
}

func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketState).Get(key)
		if value == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), value...)
		return nil
	})
	return out, err
}

func (b *BoltDB) Has(key []byte) (bool, error) {
	_, err := b.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (b *BoltDB) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Delete(key)
	})
}

func (b *BoltDB) NewBatch() Batch {
	return &boltBatch{db: b.db}
}

func (b *BoltDB) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketState).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !fn(append([]byte(nil), k...), append([]byte(nil), v...)) {
				return nil
			}
		}
		return nil
	})
}

// Close releases the underlying Bolt database handle.
func (b *BoltDB) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

type boltOp struct {
	key    []byte
	value  []byte
	delete bool
}

// boltBatch applies its operations inside one read-write transaction.
type boltBatch struct {
	db  *bolt.DB
	ops []boltOp
}

func (b *boltBatch) Put(key []byte, value []byte) {
	b.ops = append(b.ops, boltOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *boltBatch) Delete(key []byte) {
	b.ops = append(b.ops, boltOp{key: append([]byte(nil), key...), delete: true})
}

func (b *boltBatch) Len() int { return len(b.ops) }

func (b *boltBatch) Reset() { b.ops = b.ops[:0] }

func (b *boltBatch) Write() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketState)
		for _, op := range b.ops {
			if op.delete {
				if err := bucket.Delete(op.key); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put(op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
}
