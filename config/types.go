package config

import (
	"strings"
	"time"

	"otoledger/native/common"
	"otoledger/observability/otel"
)

// Pauses switches individual native modules off. Paused modules reject every
// mutating operation with ModulePaused.
type Pauses struct {
	Points bool
	Market bool
}

// Runtime converts the switches into the view consulted by the engines.
func (p Pauses) Runtime() common.Pauses {
	out := common.Pauses{}
	if p.Points {
		out[common.ModulePoints] = true
	}
	if p.Market {
		out[common.ModuleMarket] = true
	}
	return out
}

// Quota bounds per-signer submissions. Zero values disable a limit.
type Quota struct {
	MaxRequests   uint32
	MaxUnits      uint64 // token base units moved into escrow
	WindowSeconds uint32 // e.g., 60
}

func (q Quota) Runtime() common.Quota {
	return common.Quota{MaxRequests: q.MaxRequests, MaxUnits: q.MaxUnits, WindowSeconds: q.WindowSeconds}
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	// JWTSecretEnv names the environment variable holding the HMAC secret
	// that guards oto_sendTransaction. Writes are open when it is unset.
	JWTSecretEnv      string
	JWTIssuer         string
	RateLimitPerSec   float64
	RateBurst         int
	TrustedProxies    []string
	ReadHeaderTimeout int // seconds
	ReadTimeout       int
	WriteTimeout      int
	IdleTimeout       int
	MaxBodyBytes      int64

	// JWTSecret is resolved from JWTSecretEnv at load time and never persisted.
	JWTSecret string `toml:"-"`
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

func (r RPC) ReadHeaderTimeoutDuration() time.Duration { return seconds(r.ReadHeaderTimeout, 5) }
func (r RPC) ReadTimeoutDuration() time.Duration       { return seconds(r.ReadTimeout, 15) }
func (r RPC) WriteTimeoutDuration() time.Duration      { return seconds(r.WriteTimeout, 15) }
func (r RPC) IdleTimeoutDuration() time.Duration       { return seconds(r.IdleTimeout, 60) }

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string
	Insecure    bool
	Metrics     bool
	Traces      bool
	Headers     string // key=value,key2=value2
	SampleRatio float64
}

// OTel builds the exporter configuration for service.
func (t Telemetry) OTel(service, env string) otel.Config {
	return otel.Config{
		ServiceName: service,
		Environment: env,
		Endpoint:    strings.TrimSpace(t.Endpoint),
		Insecure:    t.Insecure,
		Headers:     otel.ParseHeaders(t.Headers),
		Metrics:     t.Metrics,
		Traces:      t.Traces,
		SampleRatio: t.SampleRatio,
	}
}
