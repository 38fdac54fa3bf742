package cachestore

import (
	"context"
	"sync"
)

// Ensure Memory implements the Store interface.
var _ Store = (*Memory)(nil)

// Memory is a mutex-guarded in-memory Store. It is the default store when no
// persistent backend is configured, and the store of choice in tests.
//
// Entries are deep-copied on both Get and Set so callers can never mutate
// cached state through shared slices.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// GetErr and SetErr, when non-nil, are returned by the corresponding
	// method. Tests use these to exercise cache-failure fallback paths.
	GetErr error
	SetErr error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Entry)}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEntry(entry), nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, key string, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.entries[key] = copyEntry(entry)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func copyEntry(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	out := &Entry{
		ProviderID:    e.ProviderID,
		ProviderModel: e.ProviderModel,
		Chunks:        make([]ChunkVector, len(e.Chunks)),
	}
	for i, c := range e.Chunks {
		out.Chunks[i] = ChunkVector{
			Content:   c.Content,
			Embedding: append([]float32(nil), c.Embedding...),
		}
	}
	return out
}
