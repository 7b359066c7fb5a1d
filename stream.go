package shadow

import "encoding/json"

// PartKind identifies the kind of a normalized stream part. Kinds are listed
// in the order they may arrive within a run; see Stream Processor ordering
// guarantees in Part's doc comment.
type PartKind string

const (
	PartTextDelta           PartKind = "text-delta"
	PartReasoning           PartKind = "reasoning"
	PartReasoningSignature  PartKind = "reasoning-signature"
	PartRedactedReasoning   PartKind = "redacted-reasoning"
	PartToolCallStreamStart PartKind = "tool-call-streaming-start"
	PartToolCallDelta       PartKind = "tool-call-delta"
	PartToolCall            PartKind = "tool-call"
	PartToolResult          PartKind = "tool-result"
	PartFinish              PartKind = "finish"
	PartError               PartKind = "error"
)

// Part is a normalized, ordered unit emitted by the Stream Processor.
// Ordering guarantee per tool-call id: streaming-start -> {delta}* ->
// tool-call -> tool-result. Reasoning parts interleave with text and tool
// parts but never split a single tool-call frame.
type Part struct {
	Kind PartKind `json:"kind"`

	// Text carries incremental content for text-delta, reasoning, and
	// reasoning-signature kinds.
	Text string `json:"text,omitempty"`

	// ToolCallID identifies the tool call this part belongs to (all
	// tool-call-* and tool-result kinds).
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName is the tool being invoked (tool-call-streaming-start, tool-call).
	ToolName string `json:"tool_name,omitempty"`
	// ArgsDelta is a partial JSON fragment (tool-call-delta only).
	ArgsDelta string `json:"args_delta,omitempty"`
	// Args holds finalized, validated arguments (tool-call only).
	Args json.RawMessage `json:"args,omitempty"`
	// ToolResult holds the tool's typed result (tool-result only).
	ToolResult *ToolResult `json:"tool_result,omitempty"`

	// FinishReason and Usage are set on the finish part.
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage,omitempty"`

	// Err carries a human-readable message for the error part.
	Err string `json:"error,omitempty"`
}

// FinishReason values.
const (
	FinishStop      = "stop"
	FinishToolUse   = "tool-use"
	FinishLength    = "length"
	FinishCancelled = "cancelled"
	FinishError     = "error"
)

// StreamEvent wraps a Part with the run/variant it belongs to, for delivery
// through the Session Hub to subscribers outside the Orchestrator.
type StreamEvent struct {
	TaskID    string `json:"task_id"`
	VariantID string `json:"variant_id"`
	RunID     string `json:"run_id"`
	Cursor    int64  `json:"cursor"`
	Part      Part   `json:"part"`
}
