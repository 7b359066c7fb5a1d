package shadow

import "fmt"

// ValidationError is returned when tool-call arguments fail schema
// validation. The Stream Processor's tool-call repair path handles this
// kind specifically; other error kinds pass through unrepaired.
type ValidationError struct {
	ToolCallID string
	ToolName   string
	Args       []byte
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for tool %q (call %s): %s", e.ToolName, e.ToolCallID, e.Reason)
}

// UnknownToolError is returned when the provider invents a tool name not
// present in the registry. Surfaced to the model as a tool-result error,
// never repaired.
type UnknownToolError struct {
	ToolName string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.ToolName)
}

// ToolExecutionError wraps an I/O, timeout, permission, or workspace-escape
// failure during tool execution. Always returned as a structured tool
// result, never as a fatal run error.
type ToolExecutionError struct {
	ToolName string
	Cause    error
	TimedOut bool
}

func (e *ToolExecutionError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("tool %q timed out: %v", e.ToolName, e.Cause)
	}
	return fmt.Sprintf("tool %q failed: %v", e.ToolName, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// ProviderTransportError wraps a network/HTTP failure from a provider SDK.
// Mapped to an error Part; the run transitions to FAILED.
type ProviderTransportError struct {
	Provider string
	Status   int
	Cause    error
}

func (e *ProviderTransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s transport error (status %d): %v", e.Provider, e.Status, e.Cause)
	}
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Cause)
}

func (e *ProviderTransportError) Unwrap() error { return e.Cause }

// ErrCancelled signals a user- or system-requested abort. Not an error in
// the conventional sense: the run ends in STOPPED, not FAILED.
type ErrCancelled struct {
	VariantID string
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("run cancelled for variant %s", e.VariantID)
}

// ErrContextOverflow indicates the Context Manager could not fit even the
// sliding window under the compression target. The call is still attempted
// with the window only; this is logged, not fatal.
type ErrContextOverflow struct {
	TaskID          string
	WindowTokens    int
	Target          int
}

func (e *ErrContextOverflow) Error() string {
	return fmt.Sprintf("task %s: sliding window alone (%d tokens) exceeds target %d", e.TaskID, e.WindowTokens, e.Target)
}

// PersistenceError is a transactional failure on message append. Retried
// with bounded backoff by the caller; on exhaustion, the run transitions to
// FAILED.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// BackgroundJobError records an indexing or wiki generation failure. Never
// propagates as a task failure; recorded on the job record only.
type BackgroundJobError struct {
	Job   string
	Cause error
}

func (e *BackgroundJobError) Error() string {
	return fmt.Sprintf("background job %q failed: %v", e.Job, e.Cause)
}

func (e *BackgroundJobError) Unwrap() error { return e.Cause }

// NotFoundError is returned by Store implementations when a lookup by ID
// finds no matching record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// UnknownModelError is returned by the Model Registry for an unresolvable
// model id.
type UnknownModelError struct {
	ModelID string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model: %s", e.ModelID)
}
