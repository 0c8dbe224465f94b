package common

import (
	"errors"
	"math"
	"testing"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequests: 10}
	prev := Usage{Window: 1}

	next, err := CheckQuota(q, 1, prev, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Requests != 10 {
		t.Fatalf("unexpected request count: %d", next.Requests)
	}

	denied, err := CheckQuota(q, 1, next, 1, 0)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("counters changed on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error after window rollover: %v", err)
	}
	if rollover.Window != 2 || rollover.Requests != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaUnits(t *testing.T) {
	q := Quota{MaxUnits: 1000}
	next, err := CheckQuota(q, 5, Usage{Window: 5}, 0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := CheckQuota(q, 5, next, 0, 1); !errors.Is(err, ErrQuotaUnitsExceeded) {
		t.Fatalf("expected ErrQuotaUnitsExceeded, got %v", err)
	}
	if _, err := CheckQuota(Quota{}, 5, Usage{Window: 5, Units: math.MaxUint64}, 0, 1); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if !q.Enabled() || (Quota{}).Enabled() {
		t.Fatalf("unexpected Enabled result")
	}
}
