package openaicompat

import (
	"encoding/json"

	sdk "github.com/openai/openai-go/v2"

	shadow "github.com/shadowhq/shadow"
)

// ParseResponse converts a completed SDK chat completion into a
// shadow.ChatResponse. Tool calls with empty arguments are dropped: an
// empty-args tool call is never valid against any registered schema and
// would otherwise reach the Stream Processor's repair path for nothing.
func ParseResponse(comp *sdk.ChatCompletion) shadow.ChatResponse {
	var out shadow.ChatResponse
	out.Usage = shadow.Usage{
		InputTokens:  int(comp.Usage.PromptTokens),
		OutputTokens: int(comp.Usage.CompletionTokens),
	}
	if len(comp.Choices) == 0 {
		return out
	}

	choice := comp.Choices[0]
	out.Content = choice.Message.Content
	out.FinishReason = mapFinishReason(choice.FinishReason)

	for _, tc := range choice.Message.ToolCalls {
		fn, ok := tc.AsAny().(sdk.ChatCompletionMessageFunctionToolCall)
		if !ok {
			continue
		}
		args := json.RawMessage(fn.Function.Arguments)
		if !json.Valid(args) || string(args) == "" {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, shadow.ToolCall{
			ID:   fn.ID,
			Name: fn.Function.Name,
			Args: args,
		})
	}
	return out
}

// mapFinishReason normalizes OpenAI's finish_reason onto the shadow Part
// taxonomy's FinishReason constants (stream.go).
func mapFinishReason(r string) string {
	switch r {
	case "stop":
		return shadow.FinishStop
	case "tool_calls":
		return shadow.FinishToolUse
	case "length":
		return shadow.FinishLength
	case "content_filter":
		return shadow.FinishError
	default:
		return r
	}
}
