// Package nativetest provides an in-memory record store for native module tests.
package nativetest

import (
	"fmt"
	"sort"
	"strings"

	"otoledger/core/types"
	"otoledger/crypto"
)

// MemState implements common.State over a map. It has no locking and no
// rollback; callers that need atomicity use Snapshot/Restore.
type MemState struct {
	Records map[crypto.Address][]byte
	Events  []*types.Event
}

func NewMemState() *MemState {
	return &MemState{Records: make(map[crypto.Address][]byte)}
}

func (s *MemState) Load(addr crypto.Address, rec types.Record) error {
	raw, ok := s.Records[addr]
	if !ok {
		return types.ErrRecordNotFound
	}
	return types.DecodeRecord(raw, rec)
}

func (s *MemState) Exists(addr crypto.Address) (bool, error) {
	_, ok := s.Records[addr]
	return ok, nil
}

func (s *MemState) Create(addr crypto.Address, rec types.Record) error {
	if _, ok := s.Records[addr]; ok {
		return fmt.Errorf("%w: %s", types.ErrRecordExists, rec.Kind())
	}
	s.Records[addr] = types.EncodeRecord(rec)
	return nil
}

func (s *MemState) Store(addr crypto.Address, rec types.Record) error {
	if _, ok := s.Records[addr]; !ok {
		return fmt.Errorf("%w: %s", types.ErrRecordNotFound, rec.Kind())
	}
	s.Records[addr] = types.EncodeRecord(rec)
	return nil
}

func (s *MemState) AppendEvent(evt *types.Event) {
	if evt != nil {
		s.Events = append(s.Events, evt)
	}
}

// Snapshot returns a deep copy of the records.
func (s *MemState) Snapshot() map[crypto.Address][]byte {
	out := make(map[crypto.Address][]byte, len(s.Records))
	for k, v := range s.Records {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Restore replaces the records with a snapshot, emulating a rolled back transaction.
func (s *MemState) Restore(snapshot map[crypto.Address][]byte) {
	s.Records = make(map[crypto.Address][]byte, len(snapshot))
	for k, v := range snapshot {
		s.Records[k] = append([]byte(nil), v...)
	}
}

// Dump renders the records in address order, convenient for equality checks
// in failure messages.
func (s *MemState) Dump() string {
	keys := make([]string, 0, len(s.Records))
	byKey := make(map[string][]byte, len(s.Records))
	for k, v := range s.Records {
		keys = append(keys, k.Hex())
		byKey[k.Hex()] = v
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%x\n", k, byKey[k])
	}
	return b.String()
}

// EventTypes lists the types of the recorded events in order.
func (s *MemState) EventTypes() []string {
	out := make([]string, len(s.Events))
	for i, evt := range s.Events {
		out[i] = evt.Type
	}
	return out
}
