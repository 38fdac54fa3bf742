// Package embed implements the cached embedding service: a caching decorator
// around a backend adapter's embedding operation that deduplicates vector
// computation at chunk granularity.
//
// One cache entry holds the evolving set of chunk→vector pairs for one
// (provider id, model) identity. The key is derived from identity rather than
// content because chunk sets are large and shift between calls; entry-level
// invalidation on provider/model change keeps lookups cheap while preserving
// hit rates for stable configurations.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/manyfold-ai/manyfold/internal/cachestore"
	"github.com/manyfold-ai/manyfold/internal/observe"
	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

// Service wraps backend embedding calls with the cache store. A nil store
// degrades gracefully to uncached passthrough.
type Service struct {
	store   cachestore.Store
	metrics *observe.Metrics
}

// Option is a functional option for Service.
type Option func(*Service)

// WithMetrics overrides the default metrics instance. Pass nil to disable
// metric recording entirely.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service over the given store. store may be nil, in which
// case every call delegates directly to the adapter.
func New(store cachestore.Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key derives the deterministic cache key for a provider identity. Only
// (ID, Model) participate: credentials and endpoints may rotate without
// invalidating cached vectors.
func Key(provider types.Provider) string {
	h := sha256.New()
	h.Write([]byte(provider.ID))
	h.Write([]byte{0})
	h.Write([]byte(provider.Model))
	return hex.EncodeToString(h.Sum(nil))
}

// Embed is the uncached passthrough: it forwards texts to the adapter without
// touching the store. Used for bare embedding calls (single queries) where
// caching would only churn the entry.
func (s *Service) Embed(ctx context.Context, adapter backend.Adapter, provider types.Provider, texts []string, onProgress backend.EmbedProgressFunc) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, backend.Cancelled(ctx)
	}
	vectors, err := adapter.Embed(ctx, provider, texts, onProgress)
	if err != nil {
		return nil, backend.Normalize(ctx, err)
	}
	if s.metrics != nil {
		s.metrics.EmbeddingBatchSize.Record(ctx, int64(len(texts)))
	}
	return vectors, nil
}

// EmbedChunks returns one vector per text, reusing cached vectors whenever
// the provider identity and exact text match, and persisting newly computed
// ones. Vectors are returned in input order regardless of hit/miss
// partitioning. Cache read and write failures are logged and swallowed; the
// cache is a performance optimisation, never a source of truth.
//
// onProgress, when non-nil, fires exactly once with the full text list after
// the result set is assembled.
func (s *Service) EmbedChunks(ctx context.Context, adapter backend.Adapter, provider types.Provider, texts []string, onProgress backend.EmbedProgressFunc) ([][]float32, error) {
	if s.store == nil {
		return s.Embed(ctx, adapter, provider, texts, onProgress)
	}
	if err := ctx.Err(); err != nil {
		return nil, backend.Cancelled(ctx)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	key := Key(provider)
	cached := s.load(ctx, key, provider)

	// Partition into hits and misses, preserving input order for the misses.
	var misses []string
	for _, t := range texts {
		if _, ok := cached[t]; !ok {
			misses = append(misses, t)
		}
	}
	if s.metrics != nil {
		s.metrics.RecordCacheLookups(ctx, len(texts)-len(misses), len(misses))
	}

	if len(misses) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, backend.Cancelled(ctx)
		}
		vectors, err := adapter.Embed(ctx, provider, misses, nil)
		if err != nil {
			return nil, backend.Normalize(ctx, err)
		}
		if len(vectors) != len(misses) {
			return nil, fmt.Errorf("embed: adapter returned %d vectors for %d texts", len(vectors), len(misses))
		}
		if s.metrics != nil {
			s.metrics.EmbeddingBatchSize.Record(ctx, int64(len(misses)))
		}
		for i, t := range misses {
			cached[t] = vectors[i]
		}
		s.persist(ctx, key, provider, cached)
	}

	result := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := cached[t]
		if !ok {
			return nil, fmt.Errorf("embed: missing vector for text %d after merge", i)
		}
		result[i] = vec
	}

	if onProgress != nil {
		onProgress(texts)
	}
	return result, nil
}

// load reads the cache entry for key and returns its chunks as a text-keyed
// map. A read failure or an identity mismatch yields an empty map (cold
// cache) rather than an error.
func (s *Service) load(ctx context.Context, key string, provider types.Provider) map[string][]float32 {
	cached := make(map[string][]float32)

	entry, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cachestore.ErrNotFound) {
			slog.Warn("embedding cache read failed, proceeding uncached",
				"key", key, "err", err)
		}
		return cached
	}
	if !entry.Matches(provider.ID, provider.Model) {
		// Coarse invalidation: the whole entry is stale once the identity
		// behind the key changes.
		return cached
	}
	for _, c := range entry.Chunks {
		cached[c.Content] = c.Embedding
	}
	return cached
}

// persist writes the full merged chunk set back to the store. Failures are
// logged and swallowed so a broken store never fails the embedding call.
func (s *Service) persist(ctx context.Context, key string, provider types.Provider, cached map[string][]float32) {
	entry := &cachestore.Entry{
		ProviderID:    provider.ID,
		ProviderModel: provider.Model,
		Chunks:        make([]cachestore.ChunkVector, 0, len(cached)),
	}
	for content, vec := range cached {
		entry.Chunks = append(entry.Chunks, cachestore.ChunkVector{
			Content:   content,
			Embedding: vec,
		})
	}
	if err := s.store.Set(ctx, key, entry); err != nil {
		slog.Warn("embedding cache write failed, result not cached",
			"key", key, "provider", provider.ID, "err", err)
	}
}
