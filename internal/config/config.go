// Package config provides the YAML configuration schema and loader for the
// Manyfold façade.
package config

import (
	"time"

	"github.com/manyfold-ai/manyfold/pkg/types"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CacheBackend selects the embedding cache store implementation.
type CacheBackend string

const (
	CacheMemory   CacheBackend = "memory"
	CachePostgres CacheBackend = "postgres"
	CacheRedis    CacheBackend = "redis"
)

// IsValid reports whether b is a recognised cache backend.
func (b CacheBackend) IsValid() bool {
	switch b {
	case CacheMemory, CachePostgres, CacheRedis:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Providers []ProviderConfig `yaml:"providers"`
	Cache     CacheConfig      `yaml:"cache"`
	Retrieval RetrievalConfig  `yaml:"retrieval"`
}

// ServerConfig holds process-wide settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Empty means "info".
	LogLevel LogLevel `yaml:"log_level"`

	// HealthAddr, when set, serves /healthz, /readyz, and /metrics on the
	// given listen address (e.g. ":9090").
	HealthAddr string `yaml:"health_addr"`
}

// ProviderConfig declares one backend instance.
type ProviderConfig struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Kind        string `yaml:"kind"`
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
}

// Provider converts the config entry into the core provider type.
func (p ProviderConfig) Provider() types.Provider {
	return types.Provider{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Kind:        types.ProviderKind(p.Kind),
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Model:       p.Model,
	}
}

// CacheConfig selects and parameterises the embedding cache store.
type CacheConfig struct {
	// Backend is one of "memory" (default), "postgres", "redis".
	Backend CacheBackend `yaml:"backend"`

	// Namespace isolates this deployment's cache keys/tables. Defaults to
	// "manyfold".
	Namespace string `yaml:"namespace"`

	// DSN is the PostgreSQL connection string (postgres backend only).
	DSN string `yaml:"dsn"`

	// Addrs lists Redis endpoints (redis backend only).
	Addrs []string `yaml:"addrs"`

	// Username and Password authenticate against Redis when set.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// TTL expires Redis entries after the given duration, in Go duration
	// syntax ("1h", "30m"). Empty keeps entries indefinitely.
	TTL string `yaml:"ttl"`
}

// TTLDuration parses the configured TTL. Validation guarantees the value
// parses, so an empty or invalid string yields zero here.
func (c CacheConfig) TTLDuration() time.Duration {
	if c.TTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0
	}
	return d
}

// RetrievalConfig tunes the retrieval pipeline.
type RetrievalConfig struct {
	// MaxChunkLen bounds chunk length in bytes. Zero keeps the default.
	MaxChunkLen int `yaml:"max_chunk_len"`
}
