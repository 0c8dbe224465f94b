package main

import (
	"fmt"
	"io"
	"os"

	"lukechampine.com/blake3"

	"otoledger/core"
	"otoledger/core/types"
	"otoledger/crypto"
)

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "wallet.keystore", "keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		return fail(stderr, fmt.Errorf("%s already exists", *out))
	}
	pass, err := keystorePassphrase(true)
	if err != nil {
		return fail(stderr, err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fail(stderr, err)
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "Address: %s\nKeystore: %s\n", key.PubKey().Address(), *out)
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	keyFile := fs.String("key", "", "wallet keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return fail(stderr, err)
	}
	pub := key.PubKey()
	compressed := pub.Compressed()
	return exitOf(stderr, printJSON(stdout, map[string]string{
		"address": pub.Address().String(),
		"hex":     pub.Address().Hex(),
		"pubkey":  types.PublicKey(compressed).Hex(),
	}))
}

// contentHash is the blake3-256 digest used as an asset's content hash.
func contentHash(path string) (types.Hash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Hash{}, err
	}
	return types.Hash(blake3.Sum256(data)), nil
}

func runHash(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: oto-cli hash FILE")
		return 1
	}
	hash, err := contentHash(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, hash.Hex())
	return 0
}

func runDerive(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: oto-cli derive KIND [PARAMS...]")
		return 1
	}
	derived, err := core.DeriveAddress(args[0], args[1:]...)
	if err != nil {
		return fail(stderr, err)
	}
	return exitOf(stderr, printJSON(stdout, map[string]any{
		"kind":    args[0],
		"address": derived.Address.String(),
		"bump":    derived.Bump,
	}))
}

func exitOf(stderr io.Writer, err error) int {
	if err != nil {
		return fail(stderr, err)
	}
	return 0
}
