package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/manyfold-ai/manyfold/pkg/types"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	seen := make(map[string]bool)
	for i, p := range cfg.Providers {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("providers[%d].id must not be empty", i))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("providers[%d].id %q is duplicated", i, p.ID))
		}
		seen[p.ID] = true
		if !types.ProviderKind(p.Kind).IsValid() {
			errs = append(errs, fmt.Errorf("providers[%d].kind %q is invalid; valid values: openai, openai-compatible, ollama, anyllm", i, p.Kind))
		}
		if types.ProviderKind(p.Kind) == types.KindOpenAICompatible && p.BaseURL == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: kind openai-compatible requires base_url", i))
		}
	}

	if cfg.Cache.Backend != "" && !cfg.Cache.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid; valid values: memory, postgres, redis", cfg.Cache.Backend))
	}
	switch cfg.Cache.Backend {
	case CachePostgres:
		if cfg.Cache.DSN == "" {
			errs = append(errs, errors.New("cache.dsn is required for the postgres backend"))
		}
	case CacheRedis:
		if len(cfg.Cache.Addrs) == 0 {
			errs = append(errs, errors.New("cache.addrs is required for the redis backend"))
		}
	}
	if cfg.Cache.TTL != "" {
		if _, err := time.ParseDuration(cfg.Cache.TTL); err != nil {
			errs = append(errs, fmt.Errorf("cache.ttl %q is not a valid duration: %v", cfg.Cache.TTL, err))
		}
	}

	if cfg.Retrieval.MaxChunkLen < 0 {
		errs = append(errs, fmt.Errorf("retrieval.max_chunk_len must not be negative, got %d", cfg.Retrieval.MaxChunkLen))
	}

	return errors.Join(errs...)
}

// FindProvider returns the configured provider with the given id.
func (c *Config) FindProvider(id string) (types.Provider, error) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p.Provider(), nil
		}
	}
	return types.Provider{}, fmt.Errorf("config: provider %q not found", id)
}
