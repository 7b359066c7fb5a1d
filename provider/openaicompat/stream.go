package openaicompat

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/openai/openai-go/v2"

	shadow "github.com/shadowhq/shadow"
)

// toolAccumulator tracks one in-flight streamed tool call, keyed by the
// index the API assigns it (not the arrival order of chunks, which may
// interleave across concurrent tool calls).
type toolAccumulator struct {
	id      string
	name    string
	started bool
	args    strings.Builder
}

// StreamChat implements shadow.ProviderClient. Modeled on the
// chunk-accumulation loop in intelligencedev-manifold's OpenAI client:
// tool-call deltas arrive incrementally by index, and the final usage
// chunk may carry no choices.
func (p *Provider) StreamChat(ctx context.Context, req shadow.ChatRequest, raw chan<- shadow.ProviderChunk) error {
	defer close(raw)

	params := p.buildParams(req)
	params.StreamOptions = sdk.ChatCompletionStreamOptionsParam{IncludeUsage: sdk.Bool(true)}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	tools := map[int64]*toolAccumulator{}
	order := []int64{}
	finishReason := ""
	var usage shadow.Usage

	for stream.Next() {
		chunk := stream.Current()

		if chunk.Usage.TotalTokens > 0 {
			usage = shadow.Usage{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			if err := sendChunk(ctx, raw, shadow.ProviderChunk{TextDelta: delta.Content}); err != nil {
				return err
			}
		}

		for _, tc := range delta.ToolCalls {
			acc, ok := tools[tc.Index]
			if !ok {
				acc = &toolAccumulator{}
				tools[tc.Index] = acc
				order = append(order, tc.Index)
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			if !acc.started && acc.id != "" && acc.name != "" {
				acc.started = true
				if err := sendChunk(ctx, raw, shadow.ProviderChunk{ToolCallID: acc.id, ToolCallName: acc.name}); err != nil {
					return err
				}
			}
			if tc.Function.Arguments != "" {
				acc.args.WriteString(tc.Function.Arguments)
				if err := sendChunk(ctx, raw, shadow.ProviderChunk{ToolCallID: acc.id, ArgsDelta: tc.Function.Arguments}); err != nil {
					return err
				}
			}
		}

		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
	}
	if err := stream.Err(); err != nil {
		return &shadow.ProviderTransportError{Provider: p.name, Cause: err}
	}

	// Finalize each accumulated tool call, in the order it first appeared.
	for _, idx := range order {
		acc := tools[idx]
		if !acc.started {
			continue
		}
		args := json.RawMessage(acc.args.String())
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		if err := sendChunk(ctx, raw, shadow.ProviderChunk{ToolCallID: acc.id, ArgsFinal: args}); err != nil {
			return err
		}
	}

	if finishReason != "" {
		if err := sendChunk(ctx, raw, shadow.ProviderChunk{FinishReason: mapFinishReason(finishReason), Usage: usage}); err != nil {
			return err
		}
	}
	return nil
}

func sendChunk(ctx context.Context, raw chan<- shadow.ProviderChunk, c shadow.ProviderChunk) error {
	select {
	case raw <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
