package state

import (
	"bytes"
	"sort"
	"sync"

	"otoledger/crypto"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lockTable hands out one mutex per address. Entries are dropped once no
// transaction holds or waits on them.
type lockTable struct {
	mu      sync.Mutex
	entries map[crypto.Address]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[crypto.Address]*lockEntry)}
}

// acquire locks every address in ascending byte order so that two callers
// with overlapping sets can never wait on each other in a cycle.
func (t *lockTable) acquire(addrs []crypto.Address) func() {
	ordered := sortedUnique(addrs)
	held := make([]*lockEntry, 0, len(ordered))
	for _, addr := range ordered {
		t.mu.Lock()
		entry, ok := t.entries[addr]
		if !ok {
			entry = &lockEntry{}
			t.entries[addr] = entry
		}
		entry.refs++
		t.mu.Unlock()

		entry.mu.Lock()
		held = append(held, entry)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
			}
			t.mu.Lock()
			for i, addr := range ordered {
				held[i].refs--
				if held[i].refs == 0 {
					delete(t.entries, addr)
				}
			}
			t.mu.Unlock()
		})
	}
}

func sortedUnique(addrs []crypto.Address) []crypto.Address {
	out := make([]crypto.Address, 0, len(addrs))
	seen := make(map[crypto.Address]struct{}, len(addrs))
	for _, addr := range addrs {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
