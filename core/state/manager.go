package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/storage"
)

// ErrNotWritable is returned when a transaction writes to an address it did
// not lock when it began.
var ErrNotWritable = errors.New("state: address not declared writable")

// ErrTxnClosed is returned when a committed or discarded transaction is reused.
var ErrTxnClosed = errors.New("state: transaction already closed")

// Manager owns the ledger records stored in a key-value database and
// serialises writers per address.
type Manager struct {
	db    storage.Database
	locks *lockTable
}

// NewManager creates a state manager on top of db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, locks: newLockTable()}
}

// Begin locks the writable addresses and returns a transaction scoped to them.
// The caller must Commit or Discard it.
func (m *Manager) Begin(writable ...crypto.Address) *Txn {
	release := m.locks.acquire(writable)
	set := make(map[crypto.Address]struct{}, len(writable))
	for _, addr := range writable {
		set[addr] = struct{}{}
	}
	return &Txn{
		m:        m,
		writable: set,
		pending:  make(map[crypto.Address][]byte),
		nonces:   make(map[crypto.Address]uint64),
		release:  release,
	}
}

// Load reads a committed record.
func (m *Manager) Load(addr crypto.Address, rec types.Record) error {
	raw, err := m.raw(addr)
	if err != nil {
		return err
	}
	return types.DecodeRecord(raw, rec)
}

// Exists reports whether a committed record lives at addr.
func (m *Manager) Exists(addr crypto.Address) (bool, error) {
	return m.db.Has(recordKey(addr))
}

// Nonce returns the next expected transaction nonce for addr.
func (m *Manager) Nonce(addr crypto.Address) (uint64, error) {
	raw, err := m.db.Get(nonceKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("state: corrupt nonce for %s", addr)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (m *Manager) raw(addr crypto.Address) ([]byte, error) {
	raw, err := m.db.Get(recordKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, types.ErrRecordNotFound
	}
	return raw, err
}
