package anthropic

import (
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"

	shadow "github.com/shadowhq/shadow"
)

// structuredOutputTool is the name of the tool forced on the model when a
// ChatRequest carries a ResponseSchema. The Messages API has no
// response_format field; forcing a single tool call with the target schema
// as its input is the standard way to get schema-constrained JSON out of
// Claude.
const structuredOutputTool = "emit_structured_output"

// AdaptMessages converts a shadow conversation into Anthropic message
// params, splitting out any leading SYSTEM-role messages into the top-level
// system prompt blocks (the Messages API has no "system" conversation
// turn). TOOL-role messages are split into an assistant turn carrying the
// tool_use blocks and a following user turn carrying the tool_result
// blocks, since Anthropic requires tool results to arrive as a separate
// user message.
func AdaptMessages(msgs []shadow.ChatMessage) ([]sdk.MessageParam, []sdk.TextBlockParam) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0)

	for _, m := range msgs {
		switch m.Role {
		case shadow.RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case shadow.RoleUser:
			if m.Content != "" {
				conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
			}
		case shadow.RoleAssistant:
			blocks := assistantBlocksFromParts(m)
			if m.Content != "" {
				blocks = append([]sdk.ContentBlockParamUnion{sdk.NewTextBlock(m.Content)}, blocks...)
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}
		case shadow.RoleTool:
			toolUse, toolResults := toolBlocksFromParts(m)
			if len(toolUse) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(toolUse...))
			}
			if len(toolResults) > 0 {
				conversation = append(conversation, sdk.NewUserMessage(toolResults...))
			}
		}
	}
	return conversation, system
}

// assistantBlocksFromParts extracts tool_use blocks from an assistant
// message's Parts (an assistant turn may itself carry finalized tool calls
// alongside its text).
func assistantBlocksFromParts(m shadow.ChatMessage) []sdk.ContentBlockParamUnion {
	var blocks []sdk.ContentBlockParamUnion
	for _, p := range m.Parts {
		if p.Kind == shadow.PartToolCall {
			blocks = append(blocks, sdk.NewToolUseBlock(p.ToolCallID, rawToAny(p.Args), p.ToolName))
		}
	}
	return blocks
}

// toolBlocksFromParts splits a TOOL-role message's Parts into the tool_use
// blocks (for the assistant turn) and tool_result blocks (for the following
// user turn).
func toolBlocksFromParts(m shadow.ChatMessage) (toolUse, toolResults []sdk.ContentBlockParamUnion) {
	for _, p := range m.Parts {
		switch p.Kind {
		case shadow.PartToolCall:
			toolUse = append(toolUse, sdk.NewToolUseBlock(p.ToolCallID, rawToAny(p.Args), p.ToolName))
		case shadow.PartToolResult:
			if p.ToolResult == nil {
				continue
			}
			content := p.ToolResult.Content
			isError := p.ToolResult.Error != ""
			if isError && content == "" {
				content = p.ToolResult.Error
			}
			toolResults = append(toolResults, sdk.NewToolResultBlock(p.ToolCallID, content, isError))
		}
	}
	return toolUse, toolResults
}

func rawToAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{}
	}
	return v
}

// AdaptTools converts ToolDefinitions into Anthropic tool params.
func AdaptTools(tools []shadow.ToolDefinition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolParam(t.Name, t.Description, t.Parameters))
	}
	return out
}

// AdaptResponseSchemaTool forces structured output by adding a single tool
// whose input_schema is the target schema, so the non-streaming Chat caller
// can require the model to invoke it (see ToolChoice in provider.go).
func AdaptResponseSchemaTool(s *shadow.ResponseSchema) sdk.ToolUnionParam {
	return toolParam(structuredOutputTool, "Emit the final structured result matching the required schema.", s.Schema)
}

func toolParam(name, description string, params json.RawMessage) sdk.ToolUnionParam {
	schema := sdk.ToolInputSchemaParam{}
	if len(params) > 0 {
		var m map[string]any
		if err := json.Unmarshal(params, &m); err == nil {
			schema.ExtraFields = m
		}
	}
	u := sdk.ToolUnionParamOfTool(schema, name)
	if u.OfTool != nil {
		u.OfTool.Description = sdk.String(description)
	}
	return u
}
