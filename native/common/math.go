package common

import (
	"fmt"

	"github.com/holiman/uint256"
)

// CheckedAdd returns a+b or ErrArithmeticOverflow when the sum exceeds 64 bits.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, fmt.Errorf("%w: %d + %d", ErrArithmeticOverflow, a, b)
	}
	return sum.Uint64(), nil
}

// CheckedSub returns a-b or ErrArithmeticOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, underflow := new(uint256.Int).SubOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if underflow {
		return 0, fmt.Errorf("%w: %d - %d", ErrArithmeticOverflow, a, b)
	}
	return diff.Uint64(), nil
}
