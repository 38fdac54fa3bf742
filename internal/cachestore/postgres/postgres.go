// Package postgres provides a PostgreSQL-backed embedding cache store.
//
// Each cache entry is stored as one row per chunk in a namespaced table, with
// the vector held in a pgvector column. The pgvector extension must be
// available in the target database; Open installs it automatically via
// CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.Open(ctx, dsn, "manyfold")
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/manyfold-ai/manyfold/internal/cachestore"
)

// Compile-time interface check.
var _ cachestore.Store = (*Store)(nil)

// namespacePattern restricts namespaces to identifier-safe strings, since the
// namespace is interpolated into DDL as part of the table name.
var namespacePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is a PostgreSQL-backed cachestore.Store. All operations are safe for
// concurrent use; concurrent Sets to the same key follow last-write-wins.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// Open establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and creates the cache table
// for the given namespace if it does not exist.
//
// The vector column is untyped in dimension (pgvector's bare "vector" type)
// because one store serves providers with differing embedding sizes.
func Open(ctx context.Context, dsn, namespace string) (*Store, error) {
	if !namespacePattern.MatchString(namespace) {
		return nil, fmt.Errorf("postgres cache: invalid namespace %q", namespace)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres cache: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres cache: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres cache: ping: %w", err)
	}

	s := &Store{pool: pool, table: namespace + "_embedding_cache"}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres cache: migrate: %w", err)
	}
	return s, nil
}

// migrate ensures the extension and cache table exist.
func (s *Store) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %s (
    cache_key      TEXT    NOT NULL,
    provider_id    TEXT    NOT NULL,
    provider_model TEXT    NOT NULL,
    content        TEXT    NOT NULL,
    embedding      VECTOR  NOT NULL,
    PRIMARY KEY (cache_key, content)
);

CREATE INDEX IF NOT EXISTS idx_%s_key ON %s (cache_key);`,
		s.table, s.table, s.table)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return err
	}
	return nil
}

// Get implements cachestore.Store. Rows under the key are assembled into one
// Entry; the identity columns are constant per key by construction, so they
// are read from the first row.
func (s *Store) Get(ctx context.Context, key string) (*cachestore.Entry, error) {
	q := fmt.Sprintf(`
		SELECT provider_id, provider_model, content, embedding
		FROM   %s
		WHERE  cache_key = $1`, s.table)

	rows, err := s.pool.Query(ctx, q, key)
	if err != nil {
		return nil, fmt.Errorf("postgres cache: get: %w", err)
	}

	entry := &cachestore.Entry{}
	type row struct {
		id, model, content string
		vec                pgvector.Vector
	}
	collected, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (row, error) {
		var out row
		err := r.Scan(&out.id, &out.model, &out.content, &out.vec)
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres cache: get: scan: %w", err)
	}
	if len(collected) == 0 {
		return nil, cachestore.ErrNotFound
	}

	entry.ProviderID = collected[0].id
	entry.ProviderModel = collected[0].model
	entry.Chunks = make([]cachestore.ChunkVector, len(collected))
	for i, r := range collected {
		entry.Chunks[i] = cachestore.ChunkVector{
			Content:   r.content,
			Embedding: r.vec.Slice(),
		}
	}
	return entry, nil
}

// Set implements cachestore.Store. The previous entry under the key is
// replaced wholesale inside one transaction, matching the coarse entry-level
// invalidation semantics of the cache.
func (s *Store) Set(ctx context.Context, key string, entry *cachestore.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres cache: set: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE cache_key = $1`, s.table), key); err != nil {
		return fmt.Errorf("postgres cache: set: clear: %w", err)
	}

	ins := fmt.Sprintf(`
		INSERT INTO %s (cache_key, provider_id, provider_model, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cache_key, content) DO UPDATE SET
		    provider_id    = EXCLUDED.provider_id,
		    provider_model = EXCLUDED.provider_model,
		    embedding      = EXCLUDED.embedding`, s.table)

	for _, c := range entry.Chunks {
		vec := pgvector.NewVector(c.Embedding)
		if _, err := tx.Exec(ctx, ins, key, entry.ProviderID, entry.ProviderModel, c.Content, vec); err != nil {
			return fmt.Errorf("postgres cache: set: insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres cache: set: commit: %w", err)
	}
	return nil
}

// Close implements cachestore.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
