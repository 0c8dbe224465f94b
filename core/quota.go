package core

import (
	"sync"
	"time"

	"otoledger/crypto"
	"otoledger/native/common"
)

type quotaTracker struct {
	mu     sync.Mutex
	limits common.Quota
	usage  map[crypto.Address]common.Usage
}

func newQuotaTracker(q common.Quota) *quotaTracker {
	if q.WindowSeconds == 0 {
		q.WindowSeconds = 60
	}
	return &quotaTracker{limits: q, usage: make(map[crypto.Address]common.Usage)}
}

func (t *quotaTracker) window(now time.Time) uint64 {
	return uint64(now.Unix()) / uint64(t.limits.WindowSeconds)
}

// charge books one request and units of escrow against signer.
func (t *quotaTracker) charge(signer crypto.Address, units uint64, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	window := t.window(now)
	next, err := common.CheckQuota(t.limits, window, t.usage[signer], 1, units)
	if err != nil {
		return err
	}
	t.usage[signer] = next
	// Drop counters from earlier windows so idle signers do not accumulate.
	if len(t.usage) > 1024 {
		for addr, usage := range t.usage {
			if usage.Window != window {
				delete(t.usage, addr)
			}
		}
	}
	return nil
}
