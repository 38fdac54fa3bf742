package anyllm

import (
	"context"
	"errors"
	"testing"

	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

func TestSplitModel(t *testing.T) {
	a := New()
	cases := []struct {
		model      string
		wantVendor string
		wantName   string
	}{
		{"anthropic/claude-sonnet-4-5", "anthropic", "claude-sonnet-4-5"},
		{"Gemini/gemini-2.5-flash", "gemini", "gemini-2.5-flash"},
		{"claude-sonnet-4-5", "anthropic", "claude-sonnet-4-5"},
		{"mistral/open-mistral-nemo", "mistral", "open-mistral-nemo"},
	}
	for _, tc := range cases {
		vendor, name := a.splitModel(tc.model)
		if vendor != tc.wantVendor || name != tc.wantName {
			t.Errorf("splitModel(%q): got (%q, %q), want (%q, %q)",
				tc.model, vendor, name, tc.wantVendor, tc.wantName)
		}
	}
}

func TestSplitModel_CustomDefaultVendor(t *testing.T) {
	a := New(WithDefaultVendor("groq"))
	vendor, name := a.splitModel("llama-3.3-70b")
	if vendor != "groq" || name != "llama-3.3-70b" {
		t.Errorf("splitModel: got (%q, %q)", vendor, name)
	}
}

func TestBackendFor_UnknownVendor(t *testing.T) {
	a := New()
	_, _, err := a.backendFor(types.Provider{
		ID:    "p",
		Kind:  types.KindAnyLLM,
		Model: "cohere/command-r",
	})
	if err == nil {
		t.Fatal("unknown vendor accepted")
	}
}

func TestListModels_Unsupported(t *testing.T) {
	_, err := New().ListModels(context.Background(), types.Provider{ID: "p", Kind: types.KindAnyLLM})
	if !errors.Is(err, backend.ErrUnsupported) {
		t.Fatalf("err: got %v, want ErrUnsupported", err)
	}
}

func TestEmbed_Unsupported(t *testing.T) {
	_, err := New().Embed(context.Background(), types.Provider{ID: "p", Kind: types.KindAnyLLM}, []string{"x"}, nil)
	if !errors.Is(err, backend.ErrUnsupported) {
		t.Fatalf("err: got %v, want ErrUnsupported", err)
	}
}

func TestComplete_EmptyConversation(t *testing.T) {
	_, err := New().Complete(context.Background(), backend.CompletionRequest{
		Provider: types.Provider{ID: "p", Kind: types.KindAnyLLM, Model: "anthropic/claude-sonnet-4-5"},
	}, nil)
	if !errors.Is(err, backend.ErrInvalidInput) {
		t.Fatalf("err: got %v, want ErrInvalidInput", err)
	}
}

func TestBuildParams(t *testing.T) {
	params := buildParams("claude-sonnet-4-5", backend.CompletionRequest{
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: "be brief"},
			{Role: types.RoleUser, Content: "hi"},
		},
		Options: map[string]any{"temperature": 0.3, "max_tokens": 256},
	})
	if params.Model != "claude-sonnet-4-5" {
		t.Errorf("model: got %q", params.Model)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != "system" {
		t.Errorf("messages: got %+v", params.Messages)
	}
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("temperature: got %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("max tokens: got %v", params.MaxTokens)
	}
}

func TestFlatten(t *testing.T) {
	plain := types.Message{Role: types.RoleUser, Content: "hi"}
	if got := flatten(plain); got != "hi" {
		t.Errorf("plain: got %q", got)
	}

	blocks := types.Message{
		Role: types.RoleUser,
		Blocks: []types.ContentBlock{
			{Text: "first"},
			{ImageURL: "data:image/png;base64,AAAA"},
			{Text: "second"},
		},
	}
	if got := flatten(blocks); got != "first\nsecond" {
		t.Errorf("blocks: got %q", got)
	}
}
