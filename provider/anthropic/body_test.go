package anthropic

import (
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	shadow "github.com/shadowhq/shadow"
)

func TestAdaptMessages_SystemSplitOut(t *testing.T) {
	msgs := []shadow.ChatMessage{
		{Role: shadow.RoleSystem, Content: "You are a helpful assistant."},
		{Role: shadow.RoleUser, Content: "Hello"},
	}

	conversation, system := AdaptMessages(msgs)
	if len(system) != 1 || system[0].Text != "You are a helpful assistant." {
		t.Fatalf("expected system prompt extracted, got %+v", system)
	}
	if len(conversation) != 1 {
		t.Fatalf("expected 1 conversation turn, got %d", len(conversation))
	}
	if conversation[0].Role != sdk.MessageParamRoleUser {
		t.Fatal("expected a user message")
	}
}

func TestAdaptMessages_ToolSplitsIntoAssistantAndUser(t *testing.T) {
	msgs := []shadow.ChatMessage{
		{
			Role: shadow.RoleTool,
			Parts: []shadow.Part{
				{Kind: shadow.PartToolCall, ToolCallID: "call_1", ToolName: "read_file", Args: json.RawMessage(`{"path":"a.go"}`)},
				{Kind: shadow.PartToolResult, ToolCallID: "call_1", ToolResult: &shadow.ToolResult{Content: "file contents"}},
			},
		},
	}

	conversation, _ := AdaptMessages(msgs)
	if len(conversation) != 2 {
		t.Fatalf("expected 2 turns (assistant tool_use + user tool_result), got %d", len(conversation))
	}
	if conversation[0].Role != sdk.MessageParamRoleAssistant {
		t.Fatal("expected first turn to be the assistant tool_use message")
	}
	if conversation[1].Role != sdk.MessageParamRoleUser {
		t.Fatal("expected second turn to be the user tool_result message")
	}
}

func TestAdaptTools(t *testing.T) {
	tools := []shadow.ToolDefinition{
		{Name: "get_weather", Description: "fetch weather", Parameters: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`)},
	}
	out := AdaptTools(tools)
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	if out[0].OfTool == nil {
		t.Fatal("expected a tool param")
	}
	if out[0].OfTool.Name != "get_weather" {
		t.Errorf("unexpected tool name: %q", out[0].OfTool.Name)
	}
}

func TestAdaptResponseSchemaTool(t *testing.T) {
	schema := &shadow.ResponseSchema{Name: "pr_metadata", Schema: json.RawMessage(`{"type":"object"}`)}
	tool := AdaptResponseSchemaTool(schema)
	if tool.OfTool == nil {
		t.Fatal("expected a tool param")
	}
	if tool.OfTool.Name != structuredOutputTool {
		t.Errorf("expected tool name %q, got %q", structuredOutputTool, tool.OfTool.Name)
	}
}
