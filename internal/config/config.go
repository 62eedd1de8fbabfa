package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the AgentMint control plane.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Runtime   RuntimeConfig
	Proxy     ProxyConfig
	Queue     QueueConfig
	Cache     CacheConfig
	Archive   ArchiveConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty means the
	// in-memory store is used (local dev, tests).
	URL            string
	MaxConnections int
}

type RuntimeConfig struct {
	// BaseURL of the external agent runtime service.
	BaseURL string
	Timeout time.Duration
}

type ProxyConfig struct {
	// BaseURL of the LLM gateway; upgraded agents have their routing
	// endpoints rewritten to a per-user path under it.
	BaseURL string
}

type QueueConfig struct {
	// NATSURL is the job bus address. Empty means async applies are
	// queued in-process (local dev, tests).
	NATSURL string
	Subject string
}

type CacheConfig struct {
	// RedisURL is the template cache address. Empty disables caching.
	RedisURL string
	TTL      time.Duration
}

type ArchiveConfig struct {
	// Dir is where raw template sources are archived. Empty picks
	// ~/.agentmint/archive.
	Dir string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("AGENTMINT_PORT", 8080),
		Version: envStr("AGENTMINT_VERSION", "0.2.0"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Runtime: RuntimeConfig{
			BaseURL: envStr("AGENTMINT_RUNTIME_URL", "http://localhost:8283"),
			Timeout: envDuration("AGENTMINT_RUNTIME_TIMEOUT", 30*time.Second),
		},
		Proxy: ProxyConfig{
			BaseURL: envStr("AGENTMINT_PROXY_BASE_URL", "http://localhost:4000"),
		},
		Queue: QueueConfig{
			NATSURL: envStr("NATS_URL", ""),
			Subject: envStr("AGENTMINT_UPGRADE_SUBJECT", "agentmint.upgrades"),
		},
		Cache: CacheConfig{
			RedisURL: envStr("REDIS_URL", ""),
			TTL:      envDuration("AGENTMINT_CACHE_TTL", 5*time.Minute),
		},
		Archive: ArchiveConfig{
			Dir: envStr("AGENTMINT_ARCHIVE_DIR", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "agentmint-control-plane"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
