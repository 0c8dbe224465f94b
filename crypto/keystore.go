package crypto

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// ScryptParams selects the key derivation cost used when encrypting keys.
type ScryptParams struct {
	N int
	P int
}

var (
	// StandardScrypt is used for keys written by the node and CLI.
	StandardScrypt = ScryptParams{N: keystore.StandardScryptN, P: keystore.StandardScryptP}
	// LightScrypt trades security for speed; tests and throwaway dev keys only.
	LightScrypt = ScryptParams{N: keystore.LightScryptN, P: keystore.LightScryptP}
)

// SaveToKeystore writes key to a v3 keystore file at path using the standard
// scrypt parameters.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	return SaveToKeystoreWithParams(path, key, passphrase, StandardScrypt)
}

// SaveToKeystoreWithParams encrypts key with the given scrypt parameters. The
// file is replaced atomically and left with 0600 permissions.
func SaveToKeystoreWithParams(path string, key *PrivateKey, passphrase string, params ScryptParams) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	ks := keystore.NewKeyStore(tmpDir, params.N, params.P)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return err
	}
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("crypto: failed to create keystore file")
	}

	src := filepath.Join(tmpDir, entries[0].Name())
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(src, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts a v3 keystore file using the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
