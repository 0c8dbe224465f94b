package indexer

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultEndpoint       = "http://127.0.0.1:8547"
	defaultDatabase       = "oto-index.db"
	defaultExportDir      = "exports"
	defaultExportInterval = 5 * time.Minute
	defaultReconnectDelay = 2 * time.Second
)

// Config captures the runtime settings of the indexer.
type Config struct {
	Endpoint       string        `yaml:"endpoint"`
	AuthToken      string        `yaml:"auth_token"`
	Types          []string      `yaml:"types"`
	Database       string        `yaml:"database"`
	ExportDir      string        `yaml:"export_dir"`
	ExportInterval time.Duration `yaml:"export_interval"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	Environment    string        `yaml:"environment"`
	LogLevel       string        `yaml:"log_level"`
}

// LoadConfig reads the YAML configuration at path and fills defaults.
func LoadConfig(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, errors.New("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if strings.TrimSpace(cfg.Database) == "" {
		cfg.Database = defaultDatabase
	}
	if strings.TrimSpace(cfg.ExportDir) == "" {
		cfg.ExportDir = defaultExportDir
	}
	if cfg.ExportInterval == 0 {
		cfg.ExportInterval = defaultExportInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	types := cfg.Types[:0]
	for _, t := range cfg.Types {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	cfg.Types = types
}

func (cfg Config) validate() error {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("endpoint: unsupported scheme %q", u.Scheme)
	}
	if cfg.ExportInterval < 0 {
		return errors.New("export_interval must not be negative")
	}
	return nil
}

// StreamURL is the websocket address of the node's event stream.
func (cfg Config) StreamURL() (string, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/rpc"), "/ws") + "/ws"
	q := u.Query()
	if len(cfg.Types) > 0 {
		q.Set("types", strings.Join(cfg.Types, ","))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
