// Package openai implements the backend adapter for the OpenAI API and for
// any server speaking the OpenAI wire protocol (vLLM, LM Studio, LocalAI, ...)
// via a base URL override.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

// Ensure Adapter implements the backend.Adapter contract.
var _ backend.Adapter = (*Adapter)(nil)

// Adapter implements backend.Adapter using the official OpenAI SDK. It is
// stateless: credentials and endpoint come from the Provider on every call,
// so one Adapter instance serves any number of configured providers.
type Adapter struct {
	timeout time.Duration
}

// Option is a functional option for Adapter.
type Option func(*Adapter)

// WithTimeout sets a per-request HTTP timeout on the underlying client.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// New constructs an OpenAI Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{}
	for _, o := range opts {
		o(a)
	}
	return a
}

// clientFor builds an SDK client from the provider's credentials and endpoint.
func (a *Adapter) clientFor(provider types.Provider) oai.Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(provider.APIKey),
	}
	if provider.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(provider.BaseURL))
	}
	if a.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: a.timeout,
		}))
	}
	return oai.NewClient(reqOpts...)
}

// ListModels implements backend.Adapter.
func (a *Adapter) ListModels(ctx context.Context, provider types.Provider) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, backend.Cancelled(ctx)
	}

	client := a.clientFor(provider)
	var models []string
	iter := client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		models = append(models, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, backend.Normalize(ctx, fmt.Errorf("openai: list models: %w", err))
	}
	return models, nil
}

// Complete implements backend.Adapter. The completion is always requested in
// streaming mode; onProgress, when non-nil, fires once per received chunk.
func (a *Adapter) Complete(ctx context.Context, req backend.CompletionRequest, onProgress backend.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", backend.Cancelled(ctx)
	}

	params, err := buildParams(req)
	if err != nil {
		return "", fmt.Errorf("openai: build params: %w", err)
	}

	client := a.clientFor(req.Provider)
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var accumulated strings.Builder
	for stream.Next() {
		if ctx.Err() != nil {
			return "", backend.Cancelled(ctx)
		}
		chunk := stream.Current()
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
	if err := stream.Err(); err != nil {
		return "", backend.Normalize(ctx, fmt.Errorf("openai: stream: %w", err))
	}
	return accumulated.String(), nil
}

// Embed implements backend.Adapter. All texts are embedded in a single API
// call; the response is reassembled by index so the returned slice is ordered
// to match texts even when the server reorders its response data.
func (a *Adapter) Embed(ctx context.Context, provider types.Provider, texts []string, onProgress backend.EmbedProgressFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, backend.Cancelled(ctx)
	}

	client := a.clientFor(provider)
	resp, err := client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: provider.Model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, backend.Normalize(ctx, fmt.Errorf("openai: embed: %w", err))
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: embed: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	result := make([][]float32, len(texts))
	for _, e := range resp.Data {
		if int(e.Index) >= len(texts) {
			return nil, fmt.Errorf("openai: embed: unexpected index %d", e.Index)
		}
		result[e.Index] = float64ToFloat32(e.Embedding)
	}
	if onProgress != nil {
		onProgress(texts)
	}
	return result, nil
}

// buildParams converts a CompletionRequest into OpenAI SDK params.
func buildParams(req backend.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("%w: empty conversation", backend.ErrInvalidInput)
	}

	var messages []oai.ChatCompletionMessageParamUnion
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Provider.Model),
		Messages: messages,
	}
	applyOptions(&params, req.Options)
	return params, nil
}

// applyOptions maps the free-form generation options onto SDK params. Unknown
// keys are ignored rather than rejected; callers may carry options aimed at
// other provider families.
func applyOptions(params *oai.ChatCompletionNewParams, options map[string]any) {
	if v, ok := floatOption(options, "temperature"); ok {
		params.Temperature = param.NewOpt(v)
	}
	if v, ok := floatOption(options, "top_p"); ok {
		params.TopP = param.NewOpt(v)
	}
	if v, ok := floatOption(options, "max_tokens"); ok && v > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(v))
	}
}

// floatOption reads a numeric option regardless of how the host encoded it.
func floatOption(options map[string]any, key string) (float64, bool) {
	switch v := options[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// convertMessage converts a types.Message to an OpenAI SDK message param.
func convertMessage(m types.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case types.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case types.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	case types.RoleUser:
		if len(m.Blocks) == 0 {
			return oai.UserMessage(m.Content), nil
		}
		parts := make([]oai.ChatCompletionContentPartUnionParam, 0, len(m.Blocks))
		for _, b := range m.Blocks {
			if b.ImageURL != "" {
				parts = append(parts, oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
					URL: b.ImageURL,
				}))
				continue
			}
			parts = append(parts, oai.TextContentPart(b.Text))
		}
		return oai.UserMessage(parts), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("%w: unknown role %q", backend.ErrInvalidInput, m.Role)
	}
}

// float64ToFloat32 converts a []float64 slice to []float32.
func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
