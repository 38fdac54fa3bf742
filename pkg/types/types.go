// Package types defines the shared types used across all Manyfold packages.
//
// These types form the lingua franca between backend adapters, the embedding
// cache, and the orchestrator. They are intentionally minimal: each package
// defines its own domain types, but cross-cutting data structures live here to
// avoid circular imports.
package types

import "fmt"

// ProviderKind enumerates the supported backend families. The set is closed:
// adapter dispatch switches over these values, and adding a family means
// adding a constant here plus an adapter registration at assembly time.
type ProviderKind string

const (
	// KindOpenAI is the hosted OpenAI API.
	KindOpenAI ProviderKind = "openai"

	// KindOpenAICompatible is any third-party or self-hosted server speaking
	// the OpenAI wire protocol (vLLM, LM Studio, LocalAI, ...). Requires
	// Provider.BaseURL to be set.
	KindOpenAICompatible ProviderKind = "openai-compatible"

	// KindOllama is a local Ollama daemon.
	KindOllama ProviderKind = "ollama"

	// KindAnyLLM routes to vendor chat APIs (Anthropic, Gemini, Mistral,
	// Groq, ...) through the any-llm universal adapter. Chat-only: this
	// family has no embedding capability.
	KindAnyLLM ProviderKind = "anyllm"
)

// IsValid reports whether k is a recognised provider kind.
func (k ProviderKind) IsValid() bool {
	switch k {
	case KindOpenAI, KindOpenAICompatible, KindOllama, KindAnyLLM:
		return true
	}
	return false
}

// Provider is one configured backend instance: an identity plus the
// credentials and endpoint needed to reach it.
//
// Identity for caching purposes is (ID, Model). APIKey and BaseURL may change
// without invalidating cached embeddings; switching Model invalidates them.
// Providers are created by the host's configuration layer and are read-only
// to the core.
type Provider struct {
	// ID uniquely identifies this provider instance within the host.
	ID string

	// DisplayName is the human-readable label shown by the host UI.
	DisplayName string

	// Kind selects the backend adapter family.
	Kind ProviderKind

	// APIKey authenticates against the backend. Empty for local backends.
	APIKey string

	// BaseURL overrides the backend's default endpoint. Required for
	// KindOpenAICompatible, optional elsewhere.
	BaseURL string

	// Model is the model identifier sent with every request.
	Model string

	// AvailableModels caches the most recent ListModels result. Informational
	// only; the core never consults it.
	AvailableModels []string
}

// Validate reports whether the provider carries enough information to be
// dispatched to an adapter.
func (p Provider) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("provider: id must not be empty")
	}
	if !p.Kind.IsValid() {
		return fmt.Errorf("provider %q: unknown kind %q", p.ID, p.Kind)
	}
	if p.Kind == KindOpenAICompatible && p.BaseURL == "" {
		return fmt.Errorf("provider %q: kind %q requires base_url", p.ID, p.Kind)
	}
	return nil
}

// Document is a caller-owned piece of content offered to retrieval. The core
// never mutates a Document; retrieval results alias it by pointer rather than
// copying it.
type Document struct {
	// Content is the full document text.
	Content string

	// Meta is an opaque key-value map carried through to results untouched
	// (source path, title, timestamps, whatever the host cares about).
	Meta map[string]string
}

// RetrievalResult is one ranked chunk returned by semantic retrieval.
type RetrievalResult struct {
	// Content is the raw chunk text.
	Content string

	// Score is the cosine similarity between the chunk and the query. It is
	// a similarity measure, not a probability: only the relative order of
	// scores within one retrieval call is meaningful.
	Score float64

	// Document points at the source document the chunk was split from.
	Document *Document
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentBlock is one ordered block inside a multi-part message. Exactly one
// of Text or ImageURL is set.
type ContentBlock struct {
	// Text is the block's text content.
	Text string

	// ImageURL references an image (https URL or data URI).
	ImageURL string
}

// Message is a single message in a conversation. Content carries plain text;
// Blocks, when non-empty, carries ordered text/image parts instead and takes
// precedence over Content.
type Message struct {
	Role    Role
	Content string
	Blocks  []ContentBlock
}

// Conversation assembles a message list from the prompt-and-system shorthand
// used by single-turn callers. Messages, when non-empty, wins over the
// shorthand fields.
type Conversation struct {
	// Messages is the ordered conversation history.
	Messages []Message

	// Prompt is the single-turn user prompt, used when Messages is empty.
	Prompt string

	// System is an optional system instruction accompanying Prompt.
	System string
}

// AsMessages normalises the conversation into an ordered message list.
// Returns nil when the conversation is empty.
func (c Conversation) AsMessages() []Message {
	if len(c.Messages) > 0 {
		return c.Messages
	}
	if c.Prompt == "" {
		return nil
	}
	var msgs []Message
	if c.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: c.System})
	}
	return append(msgs, Message{Role: RoleUser, Content: c.Prompt})
}
