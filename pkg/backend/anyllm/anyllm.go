// Package anyllm implements the backend adapter for vendor chat APIs
// (Anthropic, Gemini, Mistral, Groq, DeepSeek, ...) through
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface.
//
// The vendor is selected per request from the provider's model string using
// the any-llm "vendor/model" convention (e.g. "anthropic/claude-sonnet-4-5");
// a bare model name falls back to the adapter's default vendor.
//
// This family is chat-only: Embed returns backend.ErrUnsupported.
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"

	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

// DefaultVendor is used when the model string carries no vendor prefix.
const DefaultVendor = "anthropic"

// Ensure Adapter implements the backend.Adapter contract.
var _ backend.Adapter = (*Adapter)(nil)

// Adapter implements backend.Adapter by wrapping any-llm-go. It is stateless;
// a vendor backend is constructed per call from the provider's credentials.
type Adapter struct {
	defaultVendor string
}

// Option is a functional option for Adapter.
type Option func(*Adapter)

// WithDefaultVendor overrides DefaultVendor for model strings without a
// vendor prefix.
func WithDefaultVendor(vendor string) Option {
	return func(a *Adapter) {
		if vendor != "" {
			a.defaultVendor = vendor
		}
	}
}

// New constructs an any-llm Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{defaultVendor: DefaultVendor}
	for _, o := range opts {
		o(a)
	}
	return a
}

// splitModel separates the vendor prefix from the model name.
func (a *Adapter) splitModel(model string) (vendor, name string) {
	if i := strings.IndexByte(model, '/'); i > 0 {
		return strings.ToLower(model[:i]), model[i+1:]
	}
	return a.defaultVendor, model
}

// backendFor creates the any-llm vendor backend for a provider.
func (a *Adapter) backendFor(provider types.Provider) (anyllmlib.Provider, string, error) {
	vendor, model := a.splitModel(provider.Model)

	var opts []anyllmlib.Option
	if provider.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(provider.APIKey))
	}
	if provider.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(provider.BaseURL))
	}

	var (
		b   anyllmlib.Provider
		err error
	)
	switch vendor {
	case "anthropic":
		b, err = anthropic.New(opts...)
	case "gemini":
		b, err = gemini.New(opts...)
	case "mistral":
		b, err = mistral.New(opts...)
	case "groq":
		b, err = groq.New(opts...)
	case "deepseek":
		b, err = deepseek.New(opts...)
	default:
		return nil, "", fmt.Errorf("anyllm: unsupported vendor %q; supported: anthropic, gemini, mistral, groq, deepseek", vendor)
	}
	if err != nil {
		return nil, "", fmt.Errorf("anyllm: create %q backend: %w", vendor, err)
	}
	return b, model, nil
}

// ListModels implements backend.Adapter. Vendor chat APIs expose no uniform
// model listing through any-llm, so this capability is unsupported.
func (a *Adapter) ListModels(ctx context.Context, provider types.Provider) ([]string, error) {
	return nil, fmt.Errorf("%w: model listing for vendor chat APIs", backend.ErrUnsupported)
}

// Complete implements backend.Adapter. The completion is streamed through the
// vendor backend; onProgress, when non-nil, fires once per received chunk.
func (a *Adapter) Complete(ctx context.Context, req backend.CompletionRequest, onProgress backend.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", backend.Cancelled(ctx)
	}
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("%w: empty conversation", backend.ErrInvalidInput)
	}

	vendorBackend, model, err := a.backendFor(req.Provider)
	if err != nil {
		return "", err
	}

	params := buildParams(model, req)
	chunks, errs := vendorBackend.CompletionStream(ctx, params)

	var accumulated strings.Builder
	for chunk := range chunks {
		if ctx.Err() != nil {
			return "", backend.Cancelled(ctx)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		accumulated.WriteString(delta)
		if onProgress != nil {
			onProgress(delta, accumulated.String())
		}
	}
	if err := <-errs; err != nil {
		return "", backend.Normalize(ctx, fmt.Errorf("anyllm: stream: %w", err))
	}
	return accumulated.String(), nil
}

// Embed implements backend.Adapter. Vendor chat APIs carry no embedding
// capability in this family.
func (a *Adapter) Embed(ctx context.Context, provider types.Provider, texts []string, onProgress backend.EmbedProgressFunc) ([][]float32, error) {
	return nil, fmt.Errorf("%w: embeddings for vendor chat APIs", backend.ErrUnsupported)
}

// buildParams converts a CompletionRequest into any-llm CompletionParams.
func buildParams(model string, req backend.CompletionRequest) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{
			Role:    string(m.Role),
			Content: flatten(m),
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    model,
		Messages: messages,
	}
	if v, ok := req.Options["temperature"].(float64); ok {
		params.Temperature = &v
	}
	if v, ok := req.Options["max_tokens"].(int); ok && v > 0 {
		params.MaxTokens = &v
	}
	return params
}

// flatten joins a message's content blocks into plain text. Image blocks are
// dropped: any-llm's message type is text-only and the vendors that accept
// images do so through SDK-specific shapes outside this adapter's scope.
func flatten(m types.Message) string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	parts := make([]string, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
