package orchestrator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

// ErrKindNotRegistered is returned by Resolve when no adapter has been
// registered for the requested provider kind.
var ErrKindNotRegistered = errors.New("orchestrator: no adapter registered for provider kind")

// Registry maps provider kinds to their backend adapters. The kind set is the
// closed types.ProviderKind enum, so registration mistakes surface at
// assembly time rather than per request. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[types.ProviderKind]backend.Adapter
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[types.ProviderKind]backend.Adapter)}
}

// Register binds an adapter to a provider kind. Subsequent calls with the
// same kind overwrite the previous registration. Invalid kinds are rejected.
func (r *Registry) Register(kind types.ProviderKind, adapter backend.Adapter) error {
	if !kind.IsValid() {
		return fmt.Errorf("orchestrator: register: unknown provider kind %q", kind)
	}
	if adapter == nil {
		return fmt.Errorf("orchestrator: register: nil adapter for kind %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[kind] = adapter
	return nil
}

// Resolve returns the adapter registered for kind.
func (r *Registry) Resolve(kind types.ProviderKind) (backend.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKindNotRegistered, kind)
	}
	return adapter, nil
}
