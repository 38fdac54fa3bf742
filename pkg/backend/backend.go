// Package backend defines the Adapter capability contract that every backend
// family implements.
//
// An adapter wraps one provider family's API (the hosted OpenAI API, a local
// Ollama daemon, vendor chat APIs via any-llm) and exposes the three
// operations the orchestrator needs (list models, stream a completion, embed
// texts) without coupling the core to any specific SDK or wire format.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly: the transport-level request is aborted and no further
// progress callbacks fire once ctx is done.
package backend

import (
	"context"
	"errors"

	"github.com/manyfold-ai/manyfold/pkg/types"
)

// ErrUnsupported is returned when a provider family lacks the requested
// capability (e.g. embeddings on a chat-only family).
var ErrUnsupported = errors.New("backend: operation not supported by this provider")

// ErrCancelled is the cancellation sentinel. Every operation that observes a
// done context settles with an error wrapping ErrCancelled, so callers can
// distinguish an intentional abort from a real failure.
var ErrCancelled = errors.New("backend: operation cancelled")

// ErrInvalidInput is returned when a required input is missing or empty.
// Validation failures are fatal and never retried.
var ErrInvalidInput = errors.New("backend: invalid input")

// ProgressFunc receives streamed completion output. delta is the newly arrived
// fragment; accumulated is the full text received so far including delta.
type ProgressFunc func(delta, accumulated string)

// EmbedProgressFunc receives incremental embedding progress. done lists the
// texts whose vectors have been computed so far, in input order.
type EmbedProgressFunc func(done []string)

// CompletionRequest carries everything a backend needs to produce a chat
// completion. Provider selects credentials, endpoint, and model; Options holds
// free-form generation parameters (temperature, max_tokens, ...) passed
// through to the backend where supported.
type CompletionRequest struct {
	Provider types.Provider
	Messages []types.Message
	Options  map[string]any
}

// Adapter is the capability contract implemented once per provider family.
type Adapter interface {
	// ListModels returns the model identifiers available on the provider.
	ListModels(ctx context.Context, provider types.Provider) ([]string, error)

	// Complete produces the full completion for a conversation. When
	// onProgress is non-nil it fires once per streamed chunk; the returned
	// string is the complete accumulated text either way.
	Complete(ctx context.Context, req CompletionRequest, onProgress ProgressFunc) (string, error)

	// Embed computes one vector per input text, ordered to match texts.
	// Families without embedding capability return ErrUnsupported. When
	// onProgress is non-nil, implementations that embed in sub-batches
	// report after each batch boundary.
	Embed(ctx context.Context, provider types.Provider, texts []string, onProgress EmbedProgressFunc) ([][]float32, error)
}

// IsCancellation reports whether err represents a cooperative abort, whether
// expressed as the ErrCancelled sentinel or as a raw context error.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Cancelled wraps ctx's error into the ErrCancelled sentinel. Call only when
// ctx.Err() != nil.
func Cancelled(ctx context.Context) error {
	return errors.Join(ErrCancelled, ctx.Err())
}

// Normalize maps a backend failure that happened after cancellation onto the
// cancellation sentinel; all other errors pass through unchanged. This keeps
// the taxonomy stable for callers: a triggered cancellation always surfaces
// as ErrCancelled, regardless of how the transport reported it.
func Normalize(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || IsCancellation(err) {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		return errors.Join(ErrCancelled, err)
	}
	return err
}
