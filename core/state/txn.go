package state

import (
	"encoding/binary"
	"fmt"

	"otoledger/core/types"
	"otoledger/crypto"
)

// Txn buffers the writes of one operation. Reads see the buffered writes
// first; nothing reaches the database until Commit.
type Txn struct {
	m        *Manager
	writable map[crypto.Address]struct{}
	pending  map[crypto.Address][]byte
	order    []crypto.Address
	nonces   map[crypto.Address]uint64
	events   []*types.Event
	onCommit []func()
	release  func()
	closed   bool
}

func (t *Txn) raw(addr crypto.Address) ([]byte, error) {
	if raw, ok := t.pending[addr]; ok {
		return raw, nil
	}
	return t.m.raw(addr)
}

// Load decodes the record at addr into rec.
func (t *Txn) Load(addr crypto.Address, rec types.Record) error {
	if t.closed {
		return ErrTxnClosed
	}
	raw, err := t.raw(addr)
	if err != nil {
		return err
	}
	if err := types.DecodeRecord(raw, rec); err != nil {
		return fmt.Errorf("state: load %s: %w", addr, err)
	}
	return nil
}

// Exists reports whether a record is present at addr.
func (t *Txn) Exists(addr crypto.Address) (bool, error) {
	if t.closed {
		return false, ErrTxnClosed
	}
	if _, ok := t.pending[addr]; ok {
		return true, nil
	}
	return t.m.Exists(addr)
}

// Create writes a new record. It fails with types.ErrRecordExists when the
// address is already occupied.
func (t *Txn) Create(addr crypto.Address, rec types.Record) error {
	exists, err := t.Exists(addr)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s at %s", types.ErrRecordExists, rec.Kind(), addr)
	}
	return t.put(addr, rec)
}

// Store overwrites an existing record.
func (t *Txn) Store(addr crypto.Address, rec types.Record) error {
	exists, err := t.Exists(addr)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s at %s", types.ErrRecordNotFound, rec.Kind(), addr)
	}
	return t.put(addr, rec)
}

func (t *Txn) put(addr crypto.Address, rec types.Record) error {
	if _, ok := t.writable[addr]; !ok {
		return fmt.Errorf("%w: %s", ErrNotWritable, addr)
	}
	if _, ok := t.pending[addr]; !ok {
		t.order = append(t.order, addr)
	}
	t.pending[addr] = types.EncodeRecord(rec)
	return nil
}

// Nonce returns the next expected nonce of addr, including an uncommitted bump.
func (t *Txn) Nonce(addr crypto.Address) (uint64, error) {
	if n, ok := t.nonces[addr]; ok {
		return n, nil
	}
	return t.m.Nonce(addr)
}

// SetNonce records the next expected nonce of a locked address.
func (t *Txn) SetNonce(addr crypto.Address, nonce uint64) error {
	if _, ok := t.writable[addr]; !ok {
		return fmt.Errorf("%w: %s", ErrNotWritable, addr)
	}
	t.nonces[addr] = nonce
	return nil
}

// AppendEvent queues an event that becomes visible once the transaction commits.
func (t *Txn) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	t.events = append(t.events, evt)
}

// Events returns the events queued so far.
func (t *Txn) Events() []*types.Event {
	return append([]*types.Event(nil), t.events...)
}

// OnCommit registers fn to run after a successful Commit, before the locks
// are released. Hooks run in registration order and must not block.
func (t *Txn) OnCommit(fn func()) {
	if fn != nil {
		t.onCommit = append(t.onCommit, fn)
	}
}

// Commit writes every buffered record in one batch, runs the commit hooks and
// releases the locks.
func (t *Txn) Commit() error {
	if t.closed {
		return ErrTxnClosed
	}
	defer t.close()
	batch := t.m.db.NewBatch()
	for _, addr := range t.order {
		batch.Put(recordKey(addr), t.pending[addr])
	}
	for addr, nonce := range t.nonces {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], nonce)
		batch.Put(nonceKey(addr), buf[:])
	}
	if batch.Len() > 0 {
		if err := batch.Write(); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	for _, fn := range t.onCommit {
		fn()
	}
	return nil
}

// Discard drops the buffered writes and releases the locks. Calling it after
// Commit is a no-op.
func (t *Txn) Discard() {
	if t.closed {
		return
	}
	t.close()
}

func (t *Txn) close() {
	t.closed = true
	t.pending = nil
	t.order = nil
	t.onCommit = nil
	if t.release != nil {
		t.release()
	}
}
