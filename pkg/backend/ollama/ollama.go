// Package ollama implements the backend adapter for a local Ollama daemon.
//
// Ollama (https://ollama.com) hosts local chat and embedding models. This
// package talks to its native HTTP API: /api/chat for NDJSON-streamed
// completions, /api/embed for embeddings, and /api/tags for model discovery.
// Only standard library packages are used; no additional dependencies are
// required beyond Go's net/http and encoding/json.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// DefaultEmbedBatchSize bounds how many texts are sent per /api/embed request.
// Smaller batches keep memory flat on the daemon side and give cancellation
// and progress a checkpoint between batches.
const DefaultEmbedBatchSize = 32

// Ensure Adapter implements the backend.Adapter contract at compile time.
var _ backend.Adapter = (*Adapter)(nil)

// Adapter implements backend.Adapter against an Ollama daemon. It is safe for
// concurrent use.
type Adapter struct {
	httpClient *http.Client
	batchSize  int
}

// Option is a functional option for Adapter.
type Option func(*Adapter)

// WithTimeout sets a per-request HTTP timeout. A zero or negative value means
// no timeout (the default). Note that a timeout bounds the whole streamed
// completion, not just connection setup.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.httpClient.Timeout = d
		}
	}
}

// WithEmbedBatchSize overrides DefaultEmbedBatchSize. Values < 1 are ignored.
func WithEmbedBatchSize(n int) Option {
	return func(a *Adapter) {
		if n >= 1 {
			a.batchSize = n
		}
	}
}

// New constructs an Ollama Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		httpClient: &http.Client{},
		batchSize:  DefaultEmbedBatchSize,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// baseURL resolves the daemon endpoint for a provider, falling back to the
// local default. A trailing slash is stripped for consistent URL construction.
func baseURL(provider types.Provider) string {
	u := provider.BaseURL
	if u == "" {
		u = DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// tagsResponse is the JSON response body of GET /api/tags.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels implements backend.Adapter via GET /api/tags.
func (a *Adapter) ListModels(ctx context.Context, provider types.Provider) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, backend.Cancelled(ctx)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(provider)+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: list models: build request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, backend.Normalize(ctx, fmt.Errorf("ollama: list models: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: list models: unexpected status %d", resp.StatusCode)
	}

	var result tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama: list models: decode response: %w", err)
	}
	models := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// chatMessage is one message in an /api/chat request or response.
type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// chatRequest is the JSON request body sent to POST /api/chat.
type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// chatChunk is one NDJSON line of a streamed /api/chat response.
type chatChunk struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`
}

// Complete implements backend.Adapter by streaming POST /api/chat and
// accumulating the NDJSON deltas. The context is checked at every chunk
// boundary so cancellation interrupts the read loop promptly even when the
// daemon keeps producing.
func (a *Adapter) Complete(ctx context.Context, req backend.CompletionRequest, onProgress backend.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", backend.Cancelled(ctx)
	}
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("%w: empty conversation", backend.ErrInvalidInput)
	}

	body, err := json.Marshal(chatRequest{
		Model:    req.Provider.Model,
		Messages: convertMessages(req.Messages),
		Stream:   true,
		Options:  req.Options,
	})
	if err != nil {
		return "", fmt.Errorf("ollama: chat: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(req.Provider)+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: chat: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", backend.Normalize(ctx, fmt.Errorf("ollama: chat: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: chat: unexpected status %d", resp.StatusCode)
	}

	var accumulated strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return "", backend.Cancelled(ctx)
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("ollama: chat: decode chunk: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama: chat: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			accumulated.WriteString(chunk.Message.Content)
			if onProgress != nil {
				onProgress(chunk.Message.Content, accumulated.String())
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", backend.Normalize(ctx, fmt.Errorf("ollama: chat: read stream: %w", err))
	}
	return accumulated.String(), nil
}

// convertMessages flattens types.Message values into Ollama chat messages.
// Image blocks become base64 entries in the images array; Ollama has no
// notion of interleaved text/image parts.
func convertMessages(msgs []types.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := chatMessage{Role: string(m.Role), Content: m.Content}
		if len(m.Blocks) > 0 {
			var text strings.Builder
			for _, b := range m.Blocks {
				if b.ImageURL != "" {
					cm.Images = append(cm.Images, stripDataURI(b.ImageURL))
					continue
				}
				if text.Len() > 0 {
					text.WriteString("\n")
				}
				text.WriteString(b.Text)
			}
			cm.Content = text.String()
		}
		out = append(out, cm)
	}
	return out
}

// stripDataURI removes a data URI prefix, leaving the raw base64 payload that
// Ollama expects in the images array. Plain URLs pass through unchanged.
func stripDataURI(s string) string {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		return s[i+len(";base64,"):]
	}
	return s
}

// embedRequest is the JSON request body sent to Ollama's /api/embed endpoint.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the JSON response body returned by Ollama's /api/embed endpoint.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements backend.Adapter. Texts are embedded in bounded sub-batches;
// between batches the context is re-checked and onProgress, when non-nil, is
// invoked with every text processed so far in input order.
//
// On any error nil is returned; partial results are not exposed.
func (a *Adapter) Embed(ctx context.Context, provider types.Provider, texts []string, onProgress backend.EmbedProgressFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += a.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, backend.Cancelled(ctx)
		}
		end := min(start+a.batchSize, len(texts))
		batch := texts[start:end]

		vecs, err := a.callEmbed(ctx, provider, batch)
		if err != nil {
			return nil, backend.Normalize(ctx, fmt.Errorf("ollama: embed: %w", err))
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("ollama: embed: expected %d embeddings, got %d", len(batch), len(vecs))
		}
		result = append(result, vecs...)

		if onProgress != nil && ctx.Err() == nil {
			onProgress(texts[:end])
		}
	}
	return result, nil
}

// callEmbed sends one POST /api/embed request and returns the raw vectors.
func (a *Adapter) callEmbed(ctx context.Context, provider types.Provider, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{
		Model: provider.Model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(provider)+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embeddings in response")
	}
	return result.Embeddings, nil
}
