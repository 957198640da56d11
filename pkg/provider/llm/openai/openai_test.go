package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/larder/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: llm.RoleSystem},
		{role: llm.RoleUser},
		{role: llm.RoleAssistant},
		{role: "tool", wantErr: true},
	}
	for _, tt := range tests {
		param, err := convertMessage(llm.Message{Role: tt.role, Content: "x"})
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.role)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.role, err)
		}
		switch tt.role {
		case llm.RoleSystem:
			if param.OfSystem == nil {
				t.Error("expected OfSystem to be set")
			}
		case llm.RoleUser:
			if param.OfUser == nil {
				t.Error("expected OfUser to be set")
			}
		case llm.RoleAssistant:
			if param.OfAssistant == nil {
				t.Error("expected OfAssistant to be set")
			}
		}
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := llm.UserPrompt("extract items", "放入 牛奶")
	req.JSON = true
	req.MaxTokens = 200
	params, err := p.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 || params.Messages[0].OfSystem == nil {
		t.Fatalf("messages = %d, want system + user", len(params.Messages))
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("JSON mode not requested")
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 200 {
		t.Error("max tokens not set")
	}

	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty request")
	}
}

func TestComplete_AgainstServer(t *testing.T) {
	t.Parallel()

	formats := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		formats <- body.ResponseFormat.Type

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"name\":\"牛奶\"}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := llm.UserPrompt("extract", "放入 牛奶")
	req.JSON = true
	resp, err := p.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"name":"牛奶"}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("total tokens = %d, want 17", resp.Usage.TotalTokens)
	}
	if gotFormat := <-formats; gotFormat != "json_object" {
		t.Errorf("response_format.type = %q, want json_object", gotFormat)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	t.Cleanup(srv.Close)

	p, _ := New("sk-test", "m", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), llm.UserPrompt("", "hi"))
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := New("sk", ""); err == nil {
		t.Error("expected error for empty model")
	}
	p, err := New("sk", "gpt-4o")
	if err != nil || p.Name() != "openai" {
		t.Fatalf("New = %v, %v", p, err)
	}
}
