package crypto

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if encoded[:4] != "oto1" {
		t.Fatalf("unexpected prefix in %s", encoded)
	}
	decoded, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded != addr {
		t.Fatalf("decoded %x want %x", decoded, addr)
	}
	fromHex, err := ParseAddress(addr.Hex())
	if err != nil || fromHex != addr {
		t.Fatalf("hex parse mismatch: %v", err)
	}
}

func TestFindDerivedAddressDeterministic(t *testing.T) {
	owner := Address{1, 2, 3}
	a1, b1, err := FindDerivedAddress([]byte("purchase"), owner[:], []byte{7})
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	a2, b2, err := FindDerivedAddress([]byte("purchase"), owner[:], []byte{7})
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a1 != a2 || b1 != b2 {
		t.Fatalf("derivation not deterministic")
	}
	other, _, err := FindDerivedAddress([]byte("purchase"), owner[:], []byte{8})
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if other == a1 {
		t.Fatalf("distinct nonces derived the same address")
	}
	created, err := CreateDerivedAddress([]byte("purchase"), owner[:], []byte{7}, []byte{b1})
	if err != nil || created != a1 {
		t.Fatalf("create with found bump: %v", err)
	}
}

func TestFindDerivedAddressSkipsOnCurveBumps(t *testing.T) {
	// Every bump above the returned one must land on the curve.
	_, bump, err := FindDerivedAddress([]byte("mint"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	for b := 255; b > int(bump); b-- {
		if _, err := CreateDerivedAddress([]byte("mint"), []byte{byte(b)}); !errors.Is(err, ErrOnCurve) {
			t.Fatalf("bump %d should be on curve, got %v", b, err)
		}
	}
}

func TestDerivationSeedLimits(t *testing.T) {
	if _, _, err := FindDerivedAddress(make([]byte, 33)); !errors.Is(err, ErrSeedTooLong) {
		t.Fatalf("expected ErrSeedTooLong, got %v", err)
	}
	seeds := make([][]byte, MaxSeeds)
	if _, _, err := FindDerivedAddress(seeds...); !errors.Is(err, ErrTooManySeeds) {
		t.Fatalf("expected ErrTooManySeeds, got %v", err)
	}
}

func TestDerivedSignerAuthorizes(t *testing.T) {
	buyer := Address{9}
	addr, bump, err := FindDerivedAddress([]byte("purchase"), buyer[:], []byte{1})
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	signer := NewDerivedSigner(bump, []byte("purchase"), buyer[:], []byte{1})
	if err := signer.Authorizes(addr); err != nil {
		t.Fatalf("signer should authorize its own address: %v", err)
	}
	wrong := NewDerivedSigner(bump, []byte("purchase"), buyer[:], []byte{2})
	if err := wrong.Authorizes(addr); !errors.Is(err, ErrSignerMismatch) {
		t.Fatalf("expected ErrSignerMismatch, got %v", err)
	}
}

func TestVerifyCompact(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	digest := Keccak256([]byte("payload"))
	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pub := key.PubKey().Compressed()
	if !VerifyCompact(pub[:], digest[:], sig[:64]) {
		t.Fatalf("valid signature rejected")
	}
	other := Keccak256([]byte("other"))
	if VerifyCompact(pub[:], other[:], sig[:64]) {
		t.Fatalf("signature accepted for wrong digest")
	}
	recovered, err := RecoverAddress(digest[:], sig)
	if err != nil || recovered != key.PubKey().Address() {
		t.Fatalf("recover mismatch: %v", err)
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "node.json")
	if err := SaveToKeystoreWithParams(path, key, "secret", LightScrypt); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address() != key.PubKey().Address() {
		t.Fatalf("loaded key mismatch")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected error for wrong passphrase")
	}
}
