package resilience

import (
	"context"
	"errors"
	"sync"

	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

// Ensure Adapter implements the backend contract.
var _ backend.Adapter = (*Adapter)(nil)

// Adapter decorates a backend.Adapter with one circuit breaker per provider
// id. Transport and server failures trip the breaker; cancellations,
// validation errors, and unsupported capabilities do not, since they say
// nothing about endpoint health.
type Adapter struct {
	inner backend.Adapter
	cfg   Config

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewAdapter wraps inner with per-provider circuit breakers tuned by cfg.
// cfg.Name is used as a prefix for the per-provider breaker names.
func NewAdapter(inner backend.Adapter, cfg Config) *Adapter {
	return &Adapter{
		inner:    inner,
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// breakerFor returns the breaker guarding one provider, creating it on first
// use.
func (a *Adapter) breakerFor(providerID string) *CircuitBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()
	cb, ok := a.breakers[providerID]
	if !ok {
		cfg := a.cfg
		cfg.Name = a.cfg.Name + "/" + providerID
		cb = NewCircuitBreaker(cfg)
		a.breakers[providerID] = cb
	}
	return cb
}

// countsAsFailure reports whether err indicates an unhealthy endpoint.
func countsAsFailure(err error) bool {
	if backend.IsCancellation(err) {
		return false
	}
	if errors.Is(err, backend.ErrInvalidInput) || errors.Is(err, backend.ErrUnsupported) {
		return false
	}
	return true
}

// ListModels implements backend.Adapter.
func (a *Adapter) ListModels(ctx context.Context, provider types.Provider) ([]string, error) {
	var models []string
	err := a.breakerFor(provider.ID).Execute(func() error {
		var innerErr error
		models, innerErr = a.inner.ListModels(ctx, provider)
		return innerErr
	}, countsAsFailure)
	if err != nil {
		return nil, err
	}
	return models, nil
}

// Complete implements backend.Adapter. The whole streamed completion runs
// under the breaker, so a mid-stream failure counts against the provider.
func (a *Adapter) Complete(ctx context.Context, req backend.CompletionRequest, onProgress backend.ProgressFunc) (string, error) {
	var text string
	err := a.breakerFor(req.Provider.ID).Execute(func() error {
		var innerErr error
		text, innerErr = a.inner.Complete(ctx, req, onProgress)
		return innerErr
	}, countsAsFailure)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Embed implements backend.Adapter.
func (a *Adapter) Embed(ctx context.Context, provider types.Provider, texts []string, onProgress backend.EmbedProgressFunc) ([][]float32, error) {
	var vectors [][]float32
	err := a.breakerFor(provider.ID).Execute(func() error {
		var innerErr error
		vectors, innerErr = a.inner.Embed(ctx, provider, texts, onProgress)
		return innerErr
	}, countsAsFailure)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}
