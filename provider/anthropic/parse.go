package anthropic

import (
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"

	shadow "github.com/shadowhq/shadow"
)

// ParseResponse converts a completed Anthropic message into a
// shadow.ChatResponse. When structuredOutput is true, the single expected
// emit_structured_output tool call's input is surfaced as Content instead
// of as a ToolCalls entry, matching the non-schema Chat caller's
// expectation of a plain JSON string.
func ParseResponse(msg *sdk.Message, structuredOutput bool) shadow.ChatResponse {
	var out shadow.ChatResponse
	out.Usage = shadow.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	out.FinishReason = mapStopReason(string(msg.StopReason))

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			if structuredOutput && block.Name == structuredOutputTool {
				if b, err := json.Marshal(block.Input); err == nil {
					out.Content = string(b)
				}
				continue
			}
			args, err := json.Marshal(block.Input)
			if err != nil || string(args) == "" {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, shadow.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			})
		}
	}
	return out
}

// mapStopReason normalizes Anthropic's stop_reason onto the shadow Part
// taxonomy's FinishReason constants (stream.go).
func mapStopReason(r string) string {
	switch r {
	case "end_turn", "stop_sequence":
		return shadow.FinishStop
	case "tool_use":
		return shadow.FinishToolUse
	case "max_tokens":
		return shadow.FinishLength
	default:
		return r
	}
}
