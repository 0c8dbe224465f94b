package crypto

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxSeeds bounds the number of seeds (bump included) in a derivation.
	MaxSeeds = 16
	// MaxSeedLength bounds each individual seed.
	MaxSeedLength = 32
)

var (
	ErrTooManySeeds   = errors.New("crypto: too many derivation seeds")
	ErrSeedTooLong    = errors.New("crypto: derivation seed exceeds 32 bytes")
	ErrOnCurve        = errors.New("crypto: derivation lands on the secp256k1 curve")
	ErrNoViableBump   = errors.New("crypto: no viable derivation bump")
	ErrSignerMismatch = errors.New("crypto: derived signer does not match authority")
)

// ProgramID namespaces every derived address produced by this ledger.
var ProgramID = Keccak256([]byte("oto.ledger.program.v1"))

var derivationMarker = []byte("DerivedAddress")

// CreateDerivedAddress hashes seeds (bump included as the final seed) with the
// program id. Digests that are valid secp256k1 x-coordinates are rejected so a
// derived address never coincides with a point a private key could produce.
func CreateDerivedAddress(seeds ...[]byte) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, ErrTooManySeeds
	}
	parts := make([][]byte, 0, len(seeds)+2)
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, ErrSeedTooLong
		}
		parts = append(parts, seed)
	}
	parts = append(parts, ProgramID[:], derivationMarker)
	digest := crypto.Keccak256(parts...)
	if onCurve(digest) {
		return Address{}, ErrOnCurve
	}
	var addr Address
	copy(addr[:], digest[32-AddressLength:])
	return addr, nil
}

// FindDerivedAddress searches bumps from 255 downward and returns the first
// address that is off the curve together with the bump that produced it.
func FindDerivedAddress(seeds ...[]byte) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, ErrTooManySeeds
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateDerivedAddress(withBump...)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

func onCurve(x []byte) bool {
	params := crypto.S256().Params()
	xi := new(big.Int).SetBytes(x)
	if xi.Cmp(params.P) >= 0 {
		return false
	}
	// y^2 = x^3 + 7 has a solution iff the right-hand side is a quadratic residue.
	rhs := new(big.Int).Exp(xi, big.NewInt(3), params.P)
	rhs.Add(rhs, big.NewInt(7))
	rhs.Mod(rhs, params.P)
	if rhs.Sign() == 0 {
		return true
	}
	return big.Jacobi(rhs, params.P) == 1
}

// DerivedSigner lets a derived address authorize actions for itself. It holds
// the seeds and bump the address was derived from; the ledger re-derives the
// address and compares it with the authority it is asked to act for.
type DerivedSigner struct {
	Seeds [][]byte
	Bump  uint8
}

// NewDerivedSigner copies seeds so later mutation by the caller has no effect.
func NewDerivedSigner(bump uint8, seeds ...[]byte) DerivedSigner {
	copied := make([][]byte, len(seeds))
	for i, seed := range seeds {
		copied[i] = append([]byte(nil), seed...)
	}
	return DerivedSigner{Seeds: copied, Bump: bump}
}

// Address re-derives the address this signer speaks for.
func (s DerivedSigner) Address() (Address, error) {
	seeds := make([][]byte, 0, len(s.Seeds)+1)
	seeds = append(seeds, s.Seeds...)
	seeds = append(seeds, []byte{s.Bump})
	return CreateDerivedAddress(seeds...)
}

// Authorizes reports nil when the signer re-derives to authority.
func (s DerivedSigner) Authorizes(authority Address) error {
	addr, err := s.Address()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignerMismatch, err)
	}
	if addr != authority {
		return ErrSignerMismatch
	}
	return nil
}
