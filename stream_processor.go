package shadow

import (
	"context"
	"encoding/json"
	"log/slog"
)

// maxRunSteps is the hard cap on provider round-trips per run (§4.7: "a hard
// cap, e.g. 50-100 steps per run"). Reaching it ends the run with finish
// reason length.
const maxRunSteps = 80

// StreamRequest parameterizes one Stream Processor invocation. The system
// prompt is not a separate field: the Orchestrator prepends it as a leading
// SYSTEM-role ChatMessage in Messages, and each provider adapter splits that
// out into its own system channel (see orchestrator.go's buildSystemPrompt).
type StreamRequest struct {
	Messages      []ChatMessage
	Model         string
	EnableTools   bool
	TaskID        string
	WorkspacePath string
}

// StreamProcessor wraps a ProviderClient, consuming its raw chunk stream and
// emitting a normalized sequence of typed Parts on the channel passed to
// Run. It owns tool-call repair and the synthetic reasoning framing used
// for reasoning-capable models without native reasoning events.
type StreamProcessor struct {
	client   ProviderClient
	registry *ToolRegistry
	logger   *slog.Logger
}

func NewStreamProcessor(client ProviderClient, registry *ToolRegistry, logger *slog.Logger) *StreamProcessor {
	if logger == nil {
		logger = nopLogger
	}
	return &StreamProcessor{client: client, registry: registry, logger: logger}
}

// Run streams one provider turn, normalizing chunks onto parts. It returns
// once the provider emits finish or error, or ctx is cancelled. Honoring
// ctx cancellation is delegated to the underlying ProviderClient.StreamChat;
// any parts already sent on parts remain valid after cancellation.
func (sp *StreamProcessor) Run(ctx context.Context, req StreamRequest, parts chan<- Part) error {
	defer close(parts)

	chatReq := ChatRequest{
		Messages: req.Messages,
		Model:    req.Model,
	}
	if req.EnableTools {
		chatReq.Tools = sp.registry.AllDefinitions()
	}

	raw := make(chan ProviderChunk, 32)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- sp.client.StreamChat(ctx, chatReq, raw)
	}()

	needsSyntheticReasoning := !sp.client.SupportsNativeReasoning()
	reasoningOpen := false
	emittedFirstTextAfterReasoningStart := false
	if needsSyntheticReasoning {
		select {
		case parts <- Part{Kind: PartReasoning}:
			reasoningOpen = true
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Track in-flight tool calls for repair: id -> accumulated args so a
	// repair call can be issued with the original messages plus the
	// validation error.
	pendingArgs := map[string]*pendingToolCall{}

	for {
		select {
		case chunk, ok := <-raw:
			if !ok {
				return <-streamErr
			}
			if chunk.Err != nil {
				select {
				case parts <- Part{Kind: PartError, Err: chunk.Err.Error()}:
				case <-ctx.Done():
				}
				return chunk.Err
			}

			if chunk.TextDelta != "" {
				if needsSyntheticReasoning && reasoningOpen && !emittedFirstTextAfterReasoningStart {
					// Emit the reasoning-signature part the first time a
					// text-delta arrives after step-start, closing the
					// synthetic thought block. Tool calls between
					// step-start and this point do not close it (handled
					// below, since tool-call chunks don't reach this branch).
					if err := send(ctx, parts, Part{Kind: PartReasoningSignature}); err != nil {
						return err
					}
					emittedFirstTextAfterReasoningStart = true
					reasoningOpen = false
				}
				if err := send(ctx, parts, Part{Kind: PartTextDelta, Text: chunk.TextDelta}); err != nil {
					return err
				}
			}

			if chunk.ReasoningDelta != "" {
				if err := send(ctx, parts, Part{Kind: PartReasoning, Text: chunk.ReasoningDelta}); err != nil {
					return err
				}
			}

			if chunk.RedactedReasoning != "" {
				if err := send(ctx, parts, Part{Kind: PartRedactedReasoning, Text: chunk.RedactedReasoning}); err != nil {
					return err
				}
			}

			if chunk.ToolCallID != "" && chunk.ToolCallName != "" && chunk.ArgsFinal == nil && chunk.ArgsDelta == "" {
				pendingArgs[chunk.ToolCallID] = &pendingToolCall{name: chunk.ToolCallName}
				if err := send(ctx, parts, Part{Kind: PartToolCallStreamStart, ToolCallID: chunk.ToolCallID, ToolName: chunk.ToolCallName}); err != nil {
					return err
				}
				continue
			}

			if chunk.ArgsDelta != "" {
				if pc, ok := pendingArgs[chunk.ToolCallID]; ok {
					pc.argsBuf += chunk.ArgsDelta
				}
				if err := send(ctx, parts, Part{Kind: PartToolCallDelta, ToolCallID: chunk.ToolCallID, ArgsDelta: chunk.ArgsDelta}); err != nil {
					return err
				}
				continue
			}

			if chunk.ArgsFinal != nil {
				name := chunk.ToolCallName
				if pc, ok := pendingArgs[chunk.ToolCallID]; ok && name == "" {
					name = pc.name
				}
				finalArgs := chunk.ArgsFinal
				if err := sp.registry.Validate(chunk.ToolCallID, name, finalArgs); err != nil {
					if _, isValidation := asValidationError(err); isValidation {
						repaired, repairErr := sp.repair(ctx, chatReq, chunk.ToolCallID, name, finalArgs, err)
						if repairErr == nil {
							finalArgs = repaired
						} else {
							sp.logger.Warn("tool-call repair failed", "tool_call_id", chunk.ToolCallID, "tool", name, "error", repairErr)
						}
					}
					// Unknown-tool or transport errors pass through unrepaired;
					// the finalized tool-call part still carries whatever args
					// arrived so the orchestrator can surface the failure.
				}
				delete(pendingArgs, chunk.ToolCallID)
				if err := send(ctx, parts, Part{Kind: PartToolCall, ToolCallID: chunk.ToolCallID, ToolName: name, Args: finalArgs}); err != nil {
					return err
				}
				continue
			}

			if chunk.FinishReason != "" {
				if err := send(ctx, parts, Part{Kind: PartFinish, FinishReason: chunk.FinishReason, Usage: chunk.Usage}); err != nil {
					return err
				}
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type pendingToolCall struct {
	name    string
	argsBuf string
}

func asValidationError(err error) (*ValidationError, bool) {
	ve, ok := err.(*ValidationError)
	return ve, ok
}

// repair issues a corrective follow-up call to the same model with the
// original messages plus the validation error, extracts the first matching
// tool-call in the repair response, and returns its args for re-emission
// under the original tool-call id. Only schema-validation errors reach this
// path.
func (sp *StreamProcessor) repair(ctx context.Context, original ChatRequest, toolCallID, toolName string, badArgs json.RawMessage, validationErr error) (json.RawMessage, error) {
	repairReq := original
	repairReq.Messages = append(append([]ChatMessage(nil), original.Messages...), ChatMessage{
		Role:    RoleUser,
		Content: "Your previous call to " + toolName + " had invalid arguments (" + string(badArgs) + "): " + validationErr.Error() + ". Please reissue the call with corrected arguments only.",
	})

	resp, err := sp.client.Chat(ctx, repairReq)
	if err != nil {
		return nil, err
	}
	for _, tc := range resp.ToolCalls {
		if tc.Name == toolName {
			if verr := sp.registry.Validate(toolCallID, toolName, tc.Args); verr != nil {
				return nil, verr
			}
			return tc.Args, nil
		}
	}
	return nil, &ValidationError{ToolCallID: toolCallID, ToolName: toolName, Args: badArgs, Reason: "repair response contained no matching tool call"}
}

func send(ctx context.Context, parts chan<- Part, p Part) error {
	select {
	case parts <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
