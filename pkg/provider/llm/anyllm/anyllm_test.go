package anyllm

import (
	"context"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/larder/pkg/provider/llm"
)

// ── buildParams ──────────────────────────────────────────────────────────────

func TestBuildParams_SystemAndUser(t *testing.T) {
	p := &Provider{model: "qwen2.5:7b"}
	params := p.buildParams(llm.UserPrompt("You extract items.", "放入 鸡蛋 六个"))

	if params.Model != "qwen2.5:7b" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "You extract items." {
		t.Errorf("system message = %+v", params.Messages[0])
	}
	if params.Messages[1].Role != llm.RoleUser || params.Messages[1].ContentString() != "放入 鸡蛋 六个" {
		t.Errorf("user message = %+v", params.Messages[1])
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("zero temperature and max tokens must be left unset")
	}
}

func TestBuildParams_JSONModeAddsInstruction(t *testing.T) {
	p := &Provider{model: "m"}

	req := llm.UserPrompt("Extract.", "x")
	req.JSON = true
	params := p.buildParams(req)
	if got := params.Messages[0].ContentString(); !strings.HasSuffix(got, llm.JSONInstruction) || !strings.HasPrefix(got, "Extract.") {
		t.Errorf("system prompt = %q", got)
	}

	req.SystemPrompt = ""
	params = p.buildParams(req)
	if params.Messages[0].ContentString() != llm.JSONInstruction {
		t.Errorf("system prompt without base = %q", params.Messages[0].ContentString())
	}
}

func TestBuildParams_Limits(t *testing.T) {
	p := &Provider{model: "m"}
	req := llm.UserPrompt("", "x")
	req.Temperature = 0.7
	req.MaxTokens = 300
	params := p.buildParams(req)

	if len(params.Messages) != 1 {
		t.Errorf("messages = %d, want only the user message", len(params.Messages))
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Error("temperature not set")
	}
	if params.MaxTokens == nil || *params.MaxTokens != 300 {
		t.Error("max tokens not set")
	}
}

// ── New ──────────────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
	}{
		{"empty provider", "", "gpt-4o"},
		{"empty model", "openai", ""},
		{"unsupported provider", "fakecloud", "some-model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.provider, tt.model, anyllmlib.WithAPIKey("dummy")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_NameIsBackend(t *testing.T) {
	p, err := New("OpenAI", "gpt-4o", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name = %q, want openai", p.Name())
	}
}

func TestNewOllama_NoAPIKey(t *testing.T) {
	p, err := NewOllama("qwen2.5:7b")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name = %q", p.Name())
	}
}

func TestComplete_NoMessages(t *testing.T) {
	p, err := NewOllama("qwen2.5:7b")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{SystemPrompt: "x"}); err == nil {
		t.Fatal("expected error for request without messages")
	}
}
