// Package cachestore defines the persistent key-value store behind the
// embedding cache, plus an in-memory implementation.
//
// A store maps an opaque cache key to one Entry holding every chunk text ever
// embedded under that key together with its vector. Stores carry no business
// logic: hit/miss partitioning and invalidation live in the embedding service.
//
// Stores are constructed explicitly and injected into whoever assembles the
// orchestrator; there is no package-level singleton. They must tolerate
// concurrent reads; concurrent writes to the same key may clobber each other
// (last write wins), which the cache design accepts.
package cachestore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("cachestore: entry not found")

// ChunkVector pairs one chunk text with its embedding vector.
type ChunkVector struct {
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// Entry is the cached embedding set for one (provider, model) identity.
// Chunk contents within an entry are unique. The entry is valid only while
// ProviderID and ProviderModel match the requesting provider; any mismatch
// invalidates the whole entry.
type Entry struct {
	ProviderID    string        `json:"provider_id"`
	ProviderModel string        `json:"provider_model"`
	Chunks        []ChunkVector `json:"chunks"`
}

// Matches reports whether the entry was written under the given identity.
func (e *Entry) Matches(providerID, providerModel string) bool {
	return e != nil && e.ProviderID == providerID && e.ProviderModel == providerModel
}

// Store is the persistence contract for embedding cache entries.
type Store interface {
	// Get returns the entry stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores entry under key, replacing any previous entry.
	Set(ctx context.Context, key string, entry *Entry) error

	// Close releases the store's resources. The store must not be used
	// afterwards.
	Close() error
}
