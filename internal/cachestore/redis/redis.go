// Package redis provides a Redis-backed embedding cache store via rueidis.
//
// Each cache entry is stored as one JSON value under a namespaced key. An
// optional TTL lets deployments bound cache growth without an eviction job.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/manyfold-ai/manyfold/internal/cachestore"
)

// Compile-time interface check.
var _ cachestore.Store = (*Store)(nil)

// Config holds connection parameters for a Redis store.
type Config struct {
	// Addrs is the list of Redis endpoints. Required.
	Addrs []string

	// Username and Password authenticate against the server when set.
	Username string
	Password string

	// DB selects the logical database.
	DB int

	// Namespace prefixes every key. Defaults to "manyfold".
	Namespace string

	// TTL, when positive, expires entries after the given duration. The TTL
	// is refreshed on every Set.
	TTL time.Duration
}

// Store is a Redis-backed cachestore.Store.
type Store struct {
	client    rueidis.Client
	namespace string
	ttl       time.Duration
}

// Open creates a Redis store via rueidis.
func Open(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("redis cache: addrs is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "manyfold"
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache: create client: %w", err)
	}

	return &Store{
		client:    client,
		namespace: cfg.Namespace,
		ttl:       cfg.TTL,
	}, nil
}

// key prefixes a cache key with the store namespace.
func (s *Store) key(k string) string {
	return s.namespace + ":emb_cache:" + k
}

// Get implements cachestore.Store.
func (s *Store) Get(ctx context.Context, key string) (*cachestore.Entry, error) {
	cmd := s.client.B().Get().Key(s.key(key)).Build()
	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, cachestore.ErrNotFound
		}
		return nil, fmt.Errorf("redis cache: get: %w", err)
	}

	var entry cachestore.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("redis cache: get: decode entry: %w", err)
	}
	return &entry, nil
}

// Set implements cachestore.Store.
func (s *Store) Set(ctx context.Context, key string, entry *cachestore.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis cache: set: encode entry: %w", err)
	}

	var cmd rueidis.Completed
	if s.ttl > 0 {
		cmd = s.client.B().Set().Key(s.key(key)).Value(string(data)).Ex(s.ttl).Build()
	} else {
		cmd = s.client.B().Set().Key(s.key(key)).Value(string(data)).Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis cache: set: %w", err)
	}
	return nil
}

// Close implements cachestore.Store.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}
