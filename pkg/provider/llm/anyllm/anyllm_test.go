package anyllm

import (
	"strings"
	"testing"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/llm"
)

// ── Constructor validation ────────────────────────────────────────────────────

func TestNew_EmptyProviderName(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty provider name")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("watson", "some-model")
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "unsupported provider") {
		t.Errorf("error should name the unsupported provider, got: %v", err)
	}
}

func TestNew_SupportedProviders(t *testing.T) {
	for _, name := range []string{"openai", "anthropic", "ollama", "groq"} {
		if _, err := New(name, "some-model"); err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptPrepended(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.Request{
		SystemPrompt: "You schedule apartment viewings.",
		Messages: []llm.Message{
			{Role: "user", Content: "Hi"},
		},
	})

	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].ContentString() != "Hi" {
		t.Errorf("second message content = %q, want Hi", params.Messages[1].ContentString())
	}
	if params.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", params.Model)
	}
}

func TestBuildParams_OptionalFields(t *testing.T) {
	p := &Provider{model: "m"}

	params := p.buildParams(llm.Request{Messages: []llm.Message{{Role: "user", Content: "x"}}})
	if params.Temperature != nil {
		t.Error("zero temperature should not be forwarded")
	}
	if params.MaxTokens != nil {
		t.Error("zero max tokens should not be forwarded")
	}

	params = p.buildParams(llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: "x"}},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature not forwarded: %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 200 {
		t.Errorf("max tokens not forwarded: %v", params.MaxTokens)
	}
}
