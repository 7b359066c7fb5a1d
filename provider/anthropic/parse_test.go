package anthropic

import (
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"

	shadow "github.com/shadowhq/shadow"
)

func TestParseResponse_TextOnly(t *testing.T) {
	msg := &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Hello! How can I help you?"},
		},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 8},
	}

	result := ParseResponse(msg, false)

	if result.Content != "Hello! How can I help you?" {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if len(result.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(result.ToolCalls))
	}
	if result.Usage.InputTokens != 10 || result.Usage.OutputTokens != 8 {
		t.Errorf("unexpected usage: %+v", result.Usage)
	}
	if result.FinishReason != shadow.FinishStop {
		t.Errorf("expected finish reason stop, got %q", result.FinishReason)
	}
}

func TestParseResponse_ToolUse(t *testing.T) {
	msg := &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "tool_use", ID: "toolu_1", Name: "get_weather", Input: json.RawMessage(`{"city":"London"}`)},
		},
		StopReason: sdk.StopReasonToolUse,
		Usage:      sdk.Usage{InputTokens: 15, OutputTokens: 20},
	}

	result := ParseResponse(msg, false)

	if len(result.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(result.ToolCalls))
	}
	tc := result.ToolCalls[0]
	if tc.ID != "toolu_1" || tc.Name != "get_weather" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if string(tc.Args) != `{"city":"London"}` {
		t.Errorf("unexpected args: %s", tc.Args)
	}
	if result.FinishReason != shadow.FinishToolUse {
		t.Errorf("expected finish reason tool-use, got %q", result.FinishReason)
	}
}

func TestParseResponse_StructuredOutputFoldsIntoContent(t *testing.T) {
	msg := &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "tool_use", ID: "toolu_2", Name: structuredOutputTool, Input: json.RawMessage(`{"title":"fix bug"}`)},
		},
		StopReason: sdk.StopReasonToolUse,
	}

	result := ParseResponse(msg, true)

	if len(result.ToolCalls) != 0 {
		t.Fatalf("expected no tool calls when folding structured output, got %d", len(result.ToolCalls))
	}
	if result.Content != `{"title":"fix bug"}` {
		t.Errorf("expected structured output as content, got %q", result.Content)
	}
}

func TestParseResponse_MixedTextAndToolUse(t *testing.T) {
	msg := &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "I'll look that up."},
			{Type: "tool_use", ID: "toolu_3", Name: "search", Input: json.RawMessage(`{"q":"test"}`)},
		},
		StopReason: sdk.StopReasonToolUse,
	}

	result := ParseResponse(msg, false)

	if result.Content != "I'll look that up." {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(result.ToolCalls))
	}
}

func TestMapStopReason(t *testing.T) {
	cases := map[string]string{
		"end_turn":      shadow.FinishStop,
		"stop_sequence": shadow.FinishStop,
		"tool_use":      shadow.FinishToolUse,
		"max_tokens":    shadow.FinishLength,
		"other":         "other",
	}
	for in, want := range cases {
		if got := mapStopReason(in); got != want {
			t.Errorf("mapStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}
