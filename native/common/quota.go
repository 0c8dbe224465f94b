package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaUnitsExceeded    = errors.New("quota token units exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// Usage captures the counters accumulated by one signer in the current window.
type Usage struct {
	Requests uint32
	Units    uint64
	Window   uint64
}

// Quota bounds how many transactions a signer may submit, and how many token
// units it may move into escrow, per window. Zero disables a limit.
type Quota struct {
	MaxRequests   uint32
	MaxUnits      uint64
	WindowSeconds uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.MaxRequests > 0 || q.MaxUnits > 0
}

// CheckQuota returns the counters after charging addReq requests and addUnits
// token units. On rejection the previous counters are returned unchanged.
func CheckQuota(q Quota, window uint64, prev Usage, addReq uint32, addUnits uint64) (Usage, error) {
	next := prev
	if prev.Window != window {
		next = Usage{Window: window}
	}

	if next.Requests > math.MaxUint32-addReq {
		return prev, ErrQuotaCounterOverflow
	}
	next.Requests += addReq
	if q.MaxRequests > 0 && next.Requests > q.MaxRequests {
		return prev, ErrQuotaRequestsExceeded
	}

	if next.Units > math.MaxUint64-addUnits {
		return prev, ErrQuotaCounterOverflow
	}
	next.Units += addUnits
	if q.MaxUnits > 0 && next.Units > q.MaxUnits {
		return prev, ErrQuotaUnitsExceeded
	}
	return next, nil
}
