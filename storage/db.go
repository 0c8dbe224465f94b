package storage

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when a key has no value in the backing store.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// Backends are interchangeable: the ledger only relies on point reads, prefix
// iteration and atomic write batches.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	// NewBatch returns a write set that is applied all-or-nothing on Write.
	NewBatch() Batch
	// Iterate visits every key with the given prefix in ascending order.
	// Returning false from fn stops the iteration.
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
	Close() error
}

// Batch buffers writes until Write commits them atomically.
type Batch interface {
	Put(key []byte, value []byte)
	Delete(key []byte)
	Len() int
	Write() error
	Reset()
}

// Open returns the database backend named by kind. An empty kind or "memory"
// yields an in-memory store; path is ignored in that case.
func Open(kind, path string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory", "mem":
		return NewMemDB(), nil
	case "leveldb", "level":
		return NewLevelDB(path)
	case "bolt", "bbolt", "boltdb":
		return NewBoltDB(path)
	default:
		return nil, errors.New("storage: unknown backend " + kind)
	}
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) NewBatch() Batch {
	return &memBatch{db: db}
}

func (db *MemDB) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	db.mu.RLock()
	keys := make([]string, 0)
	for k := range db.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make([][]byte, len(keys))
	for i, k := range keys {
		snapshot[i] = append([]byte(nil), db.data[k]...)
	}
	db.mu.RUnlock()

	for i, k := range keys {
		if !fn([]byte(k), snapshot[i]) {
			return nil
		}
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error {
	db.mu.Lock()
	db.closed = true
	db.mu.Unlock()
	return nil
}

type memOp struct {
	key    string
	value  []byte
	delete bool
}

type memBatch struct {
	db  *MemDB
	ops []memOp
}

func (b *memBatch) Put(key []byte, value []byte) {
	b.ops = append(b.ops, memOp{key: string(key), value: append([]byte(nil), value...)})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: string(key), delete: true})
}

func (b *memBatch) Len() int { return len(b.ops) }

func (b *memBatch) Reset() { b.ops = b.ops[:0] }

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	if b.db.closed {
		return errors.New("storage: database closed")
	}
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.data, op.key)
			continue
		}
		b.db.data[op.key] = op.value
	}
	return nil
}

// --- Persistent DB (default) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

func (ldb *LevelDB) NewBatch() Batch {
	return &levelBatch{db: ldb.db, batch: new(leveldb.Batch)}
}

func (ldb *LevelDB) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	iter := ldb.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if !fn(key, value) {
			break
		}
	}
	return iter.Error()
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key []byte, value []byte) { b.batch.Put(key, value) }

func (b *levelBatch) Delete(key []byte) { b.batch.Delete(key) }

func (b *levelBatch) Len() int { return b.batch.Len() }

func (b *levelBatch) Reset() { b.batch.Reset() }

func (b *levelBatch) Write() error {
	return b.db.Write(b.batch, nil)
}
