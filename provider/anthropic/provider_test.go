package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	shadow "github.com/shadowhq/shadow"
)

func TestProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("unexpected api key header: %s", r.Header.Get("x-api-key"))
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["model"] != "claude-sonnet-4" {
			t.Errorf("expected model claude-sonnet-4, got %v", req["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"content":     []map[string]any{{"type": "text", "text": "Hello!"}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 5, "output_tokens": 2},
		})
	}))
	defer srv.Close()

	p := NewProvider("test-key", "claude-sonnet-4", srv.URL)

	resp, err := p.Chat(context.Background(), shadow.ChatRequest{
		Messages: []shadow.ChatMessage{{Role: shadow.RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("expected content 'Hello!', got %q", resp.Content)
	}
	if resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 2 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestProvider_ChatWithToolsOnRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		tools, _ := req["tools"].([]any)
		if len(tools) != 1 {
			t.Fatalf("expected 1 tool, got %d", len(tools))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":   "msg_2",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{{
				"type":  "tool_use",
				"id":    "toolu_abc",
				"name":  "get_weather",
				"input": map[string]any{"city": "London"},
			}},
			"stop_reason": "tool_use",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 8},
		})
	}))
	defer srv.Close()

	p := NewProvider("test-key", "claude-sonnet-4", srv.URL)

	tools := []shadow.ToolDefinition{{
		Name:        "get_weather",
		Description: "Get weather",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
	}}

	resp, err := p.Chat(context.Background(), shadow.ChatRequest{
		Messages: []shadow.ChatMessage{{Role: shadow.RoleUser, Content: "Weather in London?"}},
		Tools:    tools,
	})
	if err != nil {
		t.Fatalf("Chat with tools returned error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "get_weather" {
		t.Errorf("expected tool call name 'get_weather', got %q", resp.ToolCalls[0].Name)
	}
}

func TestProvider_Chat_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"internal error"}}`))
	}))
	defer srv.Close()

	p := NewProvider("test-key", "claude-sonnet-4", srv.URL)

	_, err := p.Chat(context.Background(), shadow.ChatRequest{
		Messages: []shadow.ChatMessage{{Role: shadow.RoleUser, Content: "Hi"}},
	})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if _, ok := err.(*shadow.ProviderTransportError); !ok {
		t.Fatalf("expected *shadow.ProviderTransportError, got %T", err)
	}
}

func TestProvider_Name(t *testing.T) {
	p := NewProvider("key", "model", "http://localhost")
	if p.Name() != "anthropic" {
		t.Errorf("expected default name 'anthropic', got %q", p.Name())
	}

	p = NewProvider("key", "model", "http://localhost", WithName("bedrock-claude"))
	if p.Name() != "bedrock-claude" {
		t.Errorf("expected name 'bedrock-claude', got %q", p.Name())
	}
}

func TestProvider_SupportsNativeReasoning(t *testing.T) {
	p := NewProvider("key", "claude-opus-4", "http://localhost")
	if !p.SupportsNativeReasoning() {
		t.Error("expected anthropic provider to report native reasoning support")
	}
}

func TestProvider_ChatWithThinkingBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		thinking, _ := req["thinking"].(map[string]any)
		if thinking["budget_tokens"] != float64(16000) {
			t.Errorf("expected thinking budget 16000, got %v", thinking["budget_tokens"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_3",
			"type":        "message",
			"role":        "assistant",
			"content":     []map[string]any{{"type": "text", "text": "OK"}},
			"stop_reason": "end_turn",
		})
	}))
	defer srv.Close()

	p := NewProvider("key", "claude-sonnet-4", srv.URL, WithThinkingBudget(16000), WithMaxTokens(32000))

	_, err := p.Chat(context.Background(), shadow.ChatRequest{
		Messages: []shadow.ChatMessage{{Role: shadow.RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
}
