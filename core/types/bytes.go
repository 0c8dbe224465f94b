package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash is a 32-byte digest, used for content hashes and transaction ids.
type Hash [32]byte

// Signature is a compact 64-byte [R || S] secp256k1 signature.
type Signature [64]byte

// PublicKey is a 33-byte compressed secp256k1 public key.
type PublicKey [33]byte

func (h Hash) Hex() string      { return "0x" + hex.EncodeToString(h[:]) }
func (s Signature) Hex() string { return "0x" + hex.EncodeToString(s[:]) }
func (p PublicKey) Hex() string { return "0x" + hex.EncodeToString(p[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error)      { return []byte(h.Hex()), nil }
func (s Signature) MarshalText() ([]byte, error) { return []byte(s.Hex()), nil }
func (p PublicKey) MarshalText() ([]byte, error) { return []byte(p.Hex()), nil }

func (h *Hash) UnmarshalText(text []byte) error      { return decodeFixedHex(string(text), h[:]) }
func (s *Signature) UnmarshalText(text []byte) error { return decodeFixedHex(string(text), s[:]) }
func (p *PublicKey) UnmarshalText(text []byte) error { return decodeFixedHex(string(text), p[:]) }

// ParseHash decodes a hex digest with or without the 0x prefix.
func ParseHash(s string) (Hash, error) {
	var h Hash
	err := decodeFixedHex(s, h[:])
	return h, err
}

func decodeFixedHex(s string, dst []byte) error {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return fmt.Errorf("types: invalid hex: %w", err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("types: expected %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}
