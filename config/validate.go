package config

import (
	"fmt"
	"net"
	"strings"
)

var validBackends = map[string]struct{}{
	"leveldb": {},
	"bolt":    {},
	"memory":  {},
}

// Validate rejects configurations the node cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must be set")
	}
	if _, ok := validBackends[strings.ToLower(cfg.Backend)]; !ok {
		return fmt.Errorf("config: unknown Backend %q", cfg.Backend)
	}
	if cfg.Backend != "memory" && strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set for the %s backend", cfg.Backend)
	}
	if cfg.RPC.RateLimitPerSec < 0 || cfg.RPC.RateBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if cfg.RPC.RateLimitPerSec > 0 && cfg.RPC.RateBurst == 0 {
		return fmt.Errorf("rpc: RateBurst must be positive when RateLimitPerSec is set")
	}
	for _, proxy := range cfg.RPC.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("rpc: trusted proxy %q is neither an IP nor a CIDR", proxy)
		}
	}
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: SampleRatio %v outside [0,1]", r)
	}
	if cfg.Quota.MaxRequests > 0 && cfg.Quota.WindowSeconds == 0 {
		return fmt.Errorf("quota: WindowSeconds must be positive when MaxRequests is set")
	}
	return nil
}
