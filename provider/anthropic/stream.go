package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	shadow "github.com/shadowhq/shadow"
)

// toolBlock tracks one in-flight streamed tool_use content block, keyed by
// its content-block index.
type toolBlock struct {
	id   string
	name string
	args strings.Builder
}

// StreamChat implements shadow.ProviderClient. Modeled on the content-block
// event loop in goa-ai's Anthropic streamer: tool_use and thinking content
// arrive as content_block_start/delta/stop triples keyed by block index,
// and the final stop_reason/usage arrive on message_delta/message_stop.
func (p *Provider) StreamChat(ctx context.Context, req shadow.ChatRequest, raw chan<- shadow.ProviderChunk) error {
	defer close(raw)

	params, structuredOutput := p.buildParams(req)
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	tools := map[int64]*toolBlock{}
	stopReason := ""
	var usage shadow.Usage

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			switch block := ev.ContentBlock.AsAny().(type) {
			case sdk.ToolUseBlock:
				tools[ev.Index] = &toolBlock{id: block.ID, name: block.Name}
				if structuredOutput && block.Name == structuredOutputTool {
					continue
				}
				if err := sendChunk(ctx, raw, shadow.ProviderChunk{ToolCallID: block.ID, ToolCallName: block.Name}); err != nil {
					return err
				}
			case sdk.RedactedThinkingBlock:
				if err := sendChunk(ctx, raw, shadow.ProviderChunk{RedactedReasoning: block.Data}); err != nil {
					return err
				}
			}

		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				if err := sendChunk(ctx, raw, shadow.ProviderChunk{TextDelta: delta.Text}); err != nil {
					return err
				}
			case sdk.ThinkingDelta:
				if delta.Thinking == "" {
					continue
				}
				if err := sendChunk(ctx, raw, shadow.ProviderChunk{ReasoningDelta: delta.Thinking}); err != nil {
					return err
				}
			case sdk.InputJSONDelta:
				if delta.PartialJSON == "" {
					continue
				}
				tb, ok := tools[ev.Index]
				if !ok {
					continue
				}
				tb.args.WriteString(delta.PartialJSON)
				if structuredOutput && tb.name == structuredOutputTool {
					continue
				}
				if err := sendChunk(ctx, raw, shadow.ProviderChunk{ToolCallID: tb.id, ArgsDelta: delta.PartialJSON}); err != nil {
					return err
				}
			}

		case sdk.ContentBlockStopEvent:
			tb, ok := tools[ev.Index]
			if !ok {
				continue
			}
			delete(tools, ev.Index)
			args := tb.args.String()
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			if structuredOutput && tb.name == structuredOutputTool {
				if err := sendChunk(ctx, raw, shadow.ProviderChunk{TextDelta: args}); err != nil {
					return err
				}
				continue
			}
			if err := sendChunk(ctx, raw, shadow.ProviderChunk{ToolCallID: tb.id, ArgsFinal: []byte(args)}); err != nil {
				return err
			}

		case sdk.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
			usage = shadow.Usage{
				InputTokens:  int(ev.Usage.InputTokens),
				OutputTokens: int(ev.Usage.OutputTokens),
			}

		case sdk.MessageStopEvent:
			if err := sendChunk(ctx, raw, shadow.ProviderChunk{FinishReason: mapStopReason(stopReason), Usage: usage}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return &shadow.ProviderTransportError{Provider: p.name, Cause: err}
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
