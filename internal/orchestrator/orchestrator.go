// Package orchestrator implements the provider-agnostic request façade: it
// resolves a provider to its backend adapter, validates input, adapts between
// the two streaming consumption styles, and runs the semantic retrieval
// pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/manyfold-ai/manyfold/internal/embed"
	"github.com/manyfold-ai/manyfold/internal/observe"
	"github.com/manyfold-ai/manyfold/internal/retrieval"
	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

// StreamRequest carries one completion request through Execute.
//
// The consumption mode is selected by what the caller supplies: when both
// OnProgress and Context are nil, Execute runs in legacy mode and returns a
// [StreamHandle]; when either is set, Execute runs in modern mode and blocks
// until the completion settles.
type StreamRequest struct {
	// Provider selects the backend instance.
	Provider types.Provider

	// Conversation is the prompt/system shorthand or full message list.
	Conversation types.Conversation

	// Options holds free-form generation parameters forwarded to the backend.
	Options map[string]any

	// OnProgress, when non-nil, receives each streamed chunk. Supplying it
	// selects modern mode.
	OnProgress backend.ProgressFunc

	// Context cancels the request when done. Supplying it selects modern
	// mode. Nil together with a nil OnProgress selects legacy mode, where the
	// orchestrator owns an internal context triggered by StreamHandle.Abort.
	Context context.Context
}

// RetrievalProgress reports incremental retrieval coverage. Events for one
// call are monotonic in ProcessedChunks; no event follows an observed
// cancellation.
type RetrievalProgress struct {
	TotalDocuments     int
	TotalChunks        int
	ProcessedDocuments int
	ProcessedChunks    int
}

// ProgressFunc receives retrieval progress events.
type ProgressFunc func(RetrievalProgress)

// Orchestrator is the façade exposed to callers. Construct with [New]; all
// methods are safe for concurrent use.
type Orchestrator struct {
	registry    *Registry
	embeds      *embed.Service
	metrics     *observe.Metrics
	maxChunkLen int
}

// Option is a functional option for Orchestrator.
type Option func(*Orchestrator)

// WithMaxChunkLen bounds retrieval chunk length in bytes. Values < 1 keep
// the default.
func WithMaxChunkLen(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxChunkLen = n
		}
	}
}

// WithMetrics overrides the default metrics instance. Pass nil to disable
// metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New constructs an Orchestrator over the given adapter registry and cached
// embedding service.
func New(registry *Registry, embeds *embed.Service, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		embeds:      embeds,
		metrics:     observe.DefaultMetrics(),
		maxChunkLen: retrieval.DefaultMaxChunkLen,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// resolve validates the provider and returns its adapter.
func (o *Orchestrator) resolve(provider types.Provider) (backend.Adapter, error) {
	if err := provider.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidInput, err)
	}
	return o.registry.Resolve(provider.Kind)
}

// ListModels returns the model identifiers available on the provider.
func (o *Orchestrator) ListModels(ctx context.Context, provider types.Provider) ([]string, error) {
	adapter, err := o.resolve(provider)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, backend.Cancelled(ctx)
	}

	models, err := adapter.ListModels(ctx, provider)
	o.record(ctx, provider, "list_models", err)
	if err != nil {
		return nil, backend.Normalize(ctx, err)
	}
	return models, nil
}

// Embed computes one vector per input text. A single-text input is treated as
// a bare embedding call and bypasses the cache; multi-text inputs run through
// the cached embedding service at chunk granularity.
func (o *Orchestrator) Embed(ctx context.Context, provider types.Provider, input []string, onProgress backend.EmbedProgressFunc) ([][]float32, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: embed input must not be empty", backend.ErrInvalidInput)
	}
	for i, t := range input {
		if t == "" {
			return nil, fmt.Errorf("%w: embed input %d is empty", backend.ErrInvalidInput, i)
		}
	}
	adapter, err := o.resolve(provider)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, backend.Cancelled(ctx)
	}

	start := time.Now()
	var vectors [][]float32
	if len(input) == 1 {
		vectors, err = o.embeds.Embed(ctx, adapter, provider, input, onProgress)
	} else {
		vectors, err = o.embeds.EmbedChunks(ctx, adapter, provider, input, onProgress)
	}
	o.record(ctx, provider, "embed", err)
	if o.metrics != nil {
		o.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, backend.Normalize(ctx, err)
	}
	return vectors, nil
}

// Execute runs one completion in either consumption mode.
//
// Legacy mode (no OnProgress, no Context): the returned *StreamHandle is
// non-nil and the string result is empty; the completion runs in the
// background and settles through the handle's listeners. Errors, including
// cancellation via Abort, are observable only through OnError.
//
// Modern mode (OnProgress or Context supplied): the request is forwarded
// directly to the backend adapter; Execute blocks and returns the accumulated
// text or the settlement error. The returned handle is nil.
func (o *Orchestrator) Execute(req StreamRequest) (string, *StreamHandle, error) {
	messages := req.Conversation.AsMessages()
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("%w: empty conversation", backend.ErrInvalidInput)
	}
	adapter, err := o.resolve(req.Provider)
	if err != nil {
		return "", nil, err
	}

	creq := backend.CompletionRequest{
		Provider: req.Provider,
		Messages: messages,
		Options:  req.Options,
	}

	if req.OnProgress == nil && req.Context == nil {
		return "", o.executeLegacy(adapter, creq), nil
	}

	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	text, err := o.complete(ctx, adapter, creq, req.OnProgress)
	return text, nil, err
}

// executeLegacy starts the completion in the background and returns the
// handle immediately. The handle owns the internal context; Abort triggers it.
func (o *Orchestrator) executeLegacy(adapter backend.Adapter, creq backend.CompletionRequest) *StreamHandle {
	ctx, cancel := context.WithCancel(context.Background())
	handle := newStreamHandle(cancel)

	go func() {
		defer cancel()
		text, err := o.complete(ctx, adapter, creq, handle.emitData)
		if err != nil {
			handle.fail(err)
			return
		}
		handle.finish(text)
	}()

	return handle
}

// complete issues the backend call with instrumentation and cancellation
// normalisation. Shared by both Execute modes.
func (o *Orchestrator) complete(ctx context.Context, adapter backend.Adapter, creq backend.CompletionRequest, onProgress backend.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", backend.Cancelled(ctx)
	}

	ctx, span := observe.StartSpan(ctx, "orchestrator.complete")
	defer span.End()

	start := time.Now()
	text, err := adapter.Complete(ctx, creq, onProgress)
	o.record(ctx, creq.Provider, "complete", err)
	if o.metrics != nil {
		o.metrics.CompletionDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return "", backend.Normalize(ctx, err)
	}
	return text, nil
}

// record increments the backend request counters for one finished call.
func (o *Orchestrator) record(ctx context.Context, provider types.Provider, op string, err error) {
	if o.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case backend.IsCancellation(err):
		status = "cancelled"
	case err != nil:
		status = "error"
	}
	o.metrics.RecordBackendRequest(ctx, provider.ID, op, status)
}
