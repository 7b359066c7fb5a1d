package openaicompat

import (
	"encoding/json"

	sdk "github.com/openai/openai-go/v2"

	shadow "github.com/shadowhq/shadow"
)

// AdaptMessages converts a shadow conversation into SDK message params.
// Structured assistant/tool history (tool calls, tool results, reasoning)
// is flattened with shadow.LinearizeMessage, which folds TOOL-role
// messages into the assistant role; the OpenAI Chat Completions API has no
// slot for a tool-call id we don't persist, so tool results travel as
// plain text rather than role:"tool" messages.
func AdaptMessages(msgs []shadow.ChatMessage) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		content := shadow.LinearizeMessage(m)
		switch m.Role {
		case shadow.RoleSystem:
			out = append(out, sdk.SystemMessage(content))
		case shadow.RoleUser:
			if content == "" {
				content = " "
			}
			out = append(out, sdk.UserMessage(content))
		case shadow.RoleAssistant, shadow.RoleTool:
			if content == "" {
				content = " "
			}
			out = append(out, sdk.AssistantMessage(content))
		}
	}
	return out
}

// AdaptTools converts ToolDefinitions into OpenAI function-tool params.
func AdaptTools(tools []shadow.ToolDefinition) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		var schema map[string]any
		_ = json.Unmarshal(params, &schema)
		out = append(out, sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
			Name:        t.Name,
			Description: sdk.String(t.Description),
			Parameters:  schema,
		}))
	}
	return out
}

// AdaptResponseSchema converts a shadow ResponseSchema into the SDK's
// json_schema response-format union.
func AdaptResponseSchema(s *shadow.ResponseSchema) sdk.ChatCompletionNewParamsResponseFormatUnion {
	var schema map[string]any
	_ = json.Unmarshal(s.Schema, &schema)
	return sdk.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &sdk.ResponseFormatJSONSchemaParam{
			JSONSchema: sdk.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   s.Name,
				Schema: schema,
				Strict: sdk.Bool(true),
			},
		},
	}
}
