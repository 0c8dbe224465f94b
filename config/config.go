package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"otoledger/crypto"
)

// Environment variables consulted by Load.
const (
	EnvEnvironment        = "OTO_ENV"
	EnvJWTSecret          = "OTO_RPC_JWT_SECRET"
	EnvKeystorePassphrase = "OTO_KEYSTORE_PASSPHRASE"
)

type Config struct {
	ListenAddress         string `toml:"ListenAddress"`
	DataDir               string `toml:"DataDir"`
	Backend               string `toml:"Backend"`
	KeystorePath          string `toml:"KeystorePath"`
	Environment           string `toml:"Environment"`
	LogFile               string `toml:"LogFile"`
	LogLevel              string `toml:"LogLevel"`
	VerifyBuyerSignatures bool   `toml:"VerifyBuyerSignatures"`

	Pauses    Pauses    `toml:"pauses"`
	Quota     Quota     `toml:"quota"`
	RPC       RPC       `toml:"rpc"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Load reads the configuration at path, writing a default one (and a fresh
// operator key) when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
		if err := ensureKeystore(path, cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = "leveldb"
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.RPC.JWTSecretEnv == "" {
		cfg.RPC.JWTSecretEnv = EnvJWTSecret
	}
	if cfg.RPC.TrustedProxies == nil {
		cfg.RPC.TrustedProxies = []string{}
	}
}

func applyEnv(cfg *Config) {
	if env := strings.TrimSpace(os.Getenv(EnvEnvironment)); env != "" {
		cfg.Environment = env
	}
	cfg.RPC.JWTSecret = strings.TrimSpace(os.Getenv(cfg.RPC.JWTSecretEnv))
}

// KeystorePassphrase returns the passphrase protecting the operator keystore.
func KeystorePassphrase() string {
	return os.Getenv(EnvKeystorePassphrase)
}

// OperatorKey decrypts the keystore referenced by cfg.
func (cfg *Config) OperatorKey() (*crypto.PrivateKey, error) {
	if strings.TrimSpace(cfg.KeystorePath) == "" {
		return nil, fmt.Errorf("config: KeystorePath not set")
	}
	return crypto.LoadFromKeystore(cfg.KeystorePath, KeystorePassphrase())
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.KeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, KeystorePassphrase()); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.KeystorePath != keystorePath {
		cfg.KeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault writes a default configuration next to a new operator key.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, KeystorePassphrase()); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress: "127.0.0.1:8547",
		DataDir:       "./oto-data",
		Backend:       "leveldb",
		KeystorePath:  keystorePath,
		Environment:   "local",
		LogLevel:      "info",
		Quota:         Quota{WindowSeconds: 60},
		RPC: RPC{
			JWTSecretEnv:    EnvJWTSecret,
			RateLimitPerSec: 20,
			RateBurst:       40,
			TrustedProxies:  []string{},
			MaxBodyBytes:    1 << 20,
		},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "operator.keystore")
}
