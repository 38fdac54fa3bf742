// Package mock provides a test double for the backend.Adapter interface.
//
// Use Adapter in unit tests to feed controlled completions and embeddings
// without a live backend, and to verify what the orchestrator submitted.
// All fields are safe to set before calling any method; mutating them during
// a concurrent call is the caller's responsibility.
//
// Example:
//
//	a := &mock.Adapter{
//	    CompleteText: "Hello!",
//	    EmbedFunc: func(texts []string) [][]float32 { ... },
//	}
//	text, err := a.Complete(ctx, req, nil)
package mock

import (
	"context"
	"sync"

	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req backend.CompletionRequest
}

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	// Ctx is the context passed to Embed.
	Ctx context.Context
	// Provider is the provider passed to Embed.
	Provider types.Provider
	// Texts is a copy of the string slice passed to Embed.
	Texts []string
}

// Adapter is a mock implementation of backend.Adapter.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Adapter struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Models is returned by ListModels.
	Models []string

	// ListModelsErr, if non-nil, is returned as the error from ListModels.
	ListModelsErr error

	// CompleteChunks, when non-empty, is streamed through onProgress before
	// Complete returns. The returned text is the chunk concatenation unless
	// CompleteText is set.
	CompleteChunks []string

	// CompleteText overrides the returned completion text.
	CompleteText string

	// CompleteErr, if non-nil, is returned as the error from Complete after
	// any chunks have been streamed.
	CompleteErr error

	// EmbedFunc, when non-nil, computes the vectors returned by Embed.
	// Otherwise EmbedVectors is returned as-is.
	EmbedFunc func(texts []string) [][]float32

	// EmbedVectors is returned by Embed when EmbedFunc is nil.
	EmbedVectors [][]float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// EmbedCalls records every invocation of Embed in order.
	EmbedCalls []EmbedCall
}

// Ensure Adapter implements the backend.Adapter contract.
var _ backend.Adapter = (*Adapter)(nil)

// ListModels implements backend.Adapter.
func (a *Adapter) ListModels(ctx context.Context, provider types.Provider) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, backend.Cancelled(ctx)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ListModelsErr != nil {
		return nil, a.ListModelsErr
	}
	return a.Models, nil
}

// Complete implements backend.Adapter. Chunks are streamed through onProgress
// with a context check at each boundary, mirroring real adapter behaviour.
func (a *Adapter) Complete(ctx context.Context, req backend.CompletionRequest, onProgress backend.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", backend.Cancelled(ctx)
	}
	a.mu.Lock()
	a.CompleteCalls = append(a.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	chunks := a.CompleteChunks
	text := a.CompleteText
	err := a.CompleteErr
	a.mu.Unlock()

	var accumulated string
	for _, c := range chunks {
		if ctx.Err() != nil {
			return "", backend.Cancelled(ctx)
		}
		accumulated += c
		if onProgress != nil {
			onProgress(c, accumulated)
		}
	}
	if err != nil {
		return "", backend.Normalize(ctx, err)
	}
	if text != "" {
		return text, nil
	}
	return accumulated, nil
}

// Embed implements backend.Adapter.
func (a *Adapter) Embed(ctx context.Context, provider types.Provider, texts []string, onProgress backend.EmbedProgressFunc) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, backend.Cancelled(ctx)
	}
	a.mu.Lock()
	a.EmbedCalls = append(a.EmbedCalls, EmbedCall{
		Ctx:      ctx,
		Provider: provider,
		Texts:    append([]string(nil), texts...),
	})
	fn := a.EmbedFunc
	vectors := a.EmbedVectors
	err := a.EmbedErr
	a.mu.Unlock()

	if err != nil {
		return nil, backend.Normalize(ctx, err)
	}
	if fn != nil {
		vectors = fn(texts)
	}
	if onProgress != nil && ctx.Err() == nil {
		onProgress(texts)
	}
	return vectors, nil
}

// EmbedCallCount returns how many times Embed has been invoked.
func (a *Adapter) EmbedCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.EmbedCalls)
}
