package openai

import (
	"errors"
	"testing"

	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

// TestConvertMessage_System checks that system role is converted correctly.
func TestConvertMessage_System(t *testing.T) {
	param, err := convertMessage(types.Message{Role: types.RoleSystem, Content: "be brief"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

// TestConvertMessage_User checks that user role is converted correctly.
func TestConvertMessage_User(t *testing.T) {
	param, err := convertMessage(types.Message{Role: types.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

// TestConvertMessage_Assistant checks that assistant role is converted.
func TestConvertMessage_Assistant(t *testing.T) {
	param, err := convertMessage(types.Message{Role: types.RoleAssistant, Content: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
}

// TestConvertMessage_UserWithBlocks checks multimodal block conversion.
func TestConvertMessage_UserWithBlocks(t *testing.T) {
	param, err := convertMessage(types.Message{
		Role: types.RoleUser,
		Blocks: []types.ContentBlock{
			{Text: "what is this?"},
			{ImageURL: "https://example.com/x.png"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
	parts := param.OfUser.Content.OfArrayOfContentParts
	if len(parts) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(parts))
	}
	if parts[0].OfText == nil || parts[0].OfText.Text != "what is this?" {
		t.Errorf("unexpected text part: %+v", parts[0])
	}
	if parts[1].OfImageURL == nil || parts[1].OfImageURL.ImageURL.URL != "https://example.com/x.png" {
		t.Errorf("unexpected image part: %+v", parts[1])
	}
}

// TestConvertMessage_UnknownRole checks that unknown roles are rejected.
func TestConvertMessage_UnknownRole(t *testing.T) {
	_, err := convertMessage(types.Message{Role: "moderator", Content: "x"})
	if !errors.Is(err, backend.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBuildParams(t *testing.T) {
	params, err := buildParams(backend.CompletionRequest{
		Provider: types.Provider{ID: "p", Kind: types.KindOpenAI, Model: "gpt-4o-mini"},
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: "be brief"},
			{Role: types.RoleUser, Content: "hi"},
		},
		Options: map[string]any{
			"temperature": 0.2,
			"max_tokens":  128,
			"mirostat":    2, // foreign option, must be ignored
		},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model: got %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Errorf("messages: got %d, want 2", len(params.Messages))
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.2 {
		t.Errorf("temperature: got %+v", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 128 {
		t.Errorf("max tokens: got %+v", params.MaxCompletionTokens)
	}
	if params.TopP.Valid() {
		t.Errorf("top_p set without an option: %+v", params.TopP)
	}
}

func TestBuildParams_EmptyConversation(t *testing.T) {
	_, err := buildParams(backend.CompletionRequest{
		Provider: types.Provider{ID: "p", Kind: types.KindOpenAI, Model: "gpt-4o-mini"},
	})
	if !errors.Is(err, backend.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFloatOption(t *testing.T) {
	opts := map[string]any{
		"f64": float64(1.5),
		"f32": float32(2.5),
		"i":   3,
		"i64": int64(4),
		"s":   "not a number",
	}
	for key, want := range map[string]float64{"f64": 1.5, "f32": 2.5, "i": 3, "i64": 4} {
		got, ok := floatOption(opts, key)
		if !ok || got != want {
			t.Errorf("floatOption(%q): got (%v, %v), want (%v, true)", key, got, ok, want)
		}
	}
	if _, ok := floatOption(opts, "s"); ok {
		t.Error("string option treated as numeric")
	}
	if _, ok := floatOption(opts, "absent"); ok {
		t.Error("absent option reported present")
	}
}

func TestFloat64ToFloat32(t *testing.T) {
	got := float64ToFloat32([]float64{0.5, -1.25})
	if len(got) != 2 || got[0] != 0.5 || got[1] != -1.25 {
		t.Errorf("float64ToFloat32: got %v", got)
	}
}
