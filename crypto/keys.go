package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the bech32 human-readable part used for ledger addresses.
const AddressPrefix = "oto"

// AddressLength is the byte width of every ledger address.
const AddressLength = 20

// Address identifies an account on the ledger. Key-owned addresses are the
// keccak digest of the public key; derived addresses come from FindDerivedAddress.
type Address [AddressLength]byte

// ZeroAddress is the empty address.
var ZeroAddress Address

// BytesToAddress copies b into an Address. It fails when b has the wrong length.
func BytesToAddress(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("crypto: address must be %d bytes, got %d", AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// Hex returns the 0x-prefixed hex form, mainly for logs and CLI output.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) IsZero() bool { return a == ZeroAddress }

// MarshalText encodes the address in bech32 form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts bech32 or 0x-prefixed hex.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("crypto: unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return BytesToAddress(conv)
}

// ParseAddress decodes either the bech32 or the hex representation.
func ParseAddress(s string) (Address, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Address{}, errors.New("crypto: empty address")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		raw, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return Address{}, fmt.Errorf("crypto: invalid hex address: %w", err)
		}
		return BytesToAddress(raw)
	}
	return DecodeAddress(trimmed)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Sign produces a 65-byte recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, k.PrivateKey)
}

func (k *PublicKey) Address() Address {
	var a Address
	copy(a[:], crypto.PubkeyToAddress(*k.PublicKey).Bytes())
	return a
}

// Compressed returns the 33-byte SEC1 compressed encoding.
func (k *PublicKey) Compressed() [33]byte {
	var out [33]byte
	copy(out[:], crypto.CompressPubkey(k.PublicKey))
	return out
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(data...))
	return out
}

// RecoverAddress returns the address whose key produced sig over digest.
func RecoverAddress(digest, sig []byte) (Address, error) {
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return Address{}, err
	}
	return (&PublicKey{pub}).Address(), nil
}

// VerifyCompact checks a 64-byte [R || S] signature over digest against a
// compressed or uncompressed public key.
func VerifyCompact(pubkey, digest, sig []byte) bool {
	if len(sig) != 64 || len(digest) != 32 {
		return false
	}
	return crypto.VerifySignature(pubkey, digest, sig)
}
