// Package shadow implements the server-side agent orchestrator for Shadow,
// an autonomous coding-agent platform: given a user task bound to a cloned
// repository workspace, it drives a multi-step conversation with a language
// model, executes model-requested tools against that workspace, streams
// structured progress to subscribers, and persists every message part while
// keeping the conversation within the model's context window.
package shadow

import "encoding/json"

// --- Task ---

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskInitializing TaskStatus = "INITIALIZING"
	TaskRunning      TaskStatus = "RUNNING"
	TaskPaused       TaskStatus = "PAUSED"
	TaskCompleted    TaskStatus = "COMPLETED"
	TaskFailed       TaskStatus = "FAILED"
	TaskCancelled    TaskStatus = "CANCELLED"
	TaskArchived     TaskStatus = "ARCHIVED"
)

// Task represents a user request against a repository. A Task owns one or
// more Variants, each a separate model attempt run in its own workspace.
type Task struct {
	ID              string     `json:"id"`
	Owner           string     `json:"owner"`
	RepoFullName    string     `json:"repo_full_name"`
	RepoURL         string     `json:"repo_url"`
	BaseBranch      string     `json:"base_branch"`
	BaseCommit      string     `json:"base_commit"`
	Title           string     `json:"title"`
	Status          TaskStatus `json:"status"`
	TotalTokens     int64      `json:"total_tokens"`
	PullRequestNum  int        `json:"pull_request_number,omitempty"`
	AutoPR          bool       `json:"auto_pr"`
	CreatedAt       int64      `json:"created_at"`
	UpdatedAt       int64      `json:"updated_at"`
}

// --- Variant ---

// VariantStatus is the run-level lifecycle state of a Variant.
type VariantStatus string

const (
	VariantInitializing VariantStatus = "INITIALIZING"
	VariantRunning       VariantStatus = "RUNNING"
	VariantStopped       VariantStatus = "STOPPED"
	VariantFailed        VariantStatus = "FAILED"
)

// InitStatus tracks a Variant's workspace bring-up, gating message acceptance.
type InitStatus string

const (
	InitInactive         InitStatus = "INACTIVE"
	InitPrepareWorkspace InitStatus = "PREPARE_WORKSPACE"
	InitIndexRepository  InitStatus = "INDEX_REPOSITORY"
	InitGenerateWiki     InitStatus = "GENERATE_WIKI"
	InitActive           InitStatus = "ACTIVE"
)

// Variant is a single model attempt within a Task. Exactly one run may be
// active on a Variant at a time; the Tool Executor is the sole mutator of
// its workspace directory.
type Variant struct {
	ID              string        `json:"id"`
	TaskID          string        `json:"task_id"`
	ModelID         string        `json:"model_id"`
	Sequence        int           `json:"sequence"`
	ShadowBranch    string        `json:"shadow_branch"`
	Status          VariantStatus `json:"status"`
	Init            InitStatus    `json:"init_status"`
	InitError       string        `json:"init_error,omitempty"`
	WorkspacePath   string        `json:"workspace_path"`
	CreatedAt       int64         `json:"created_at"`
	UpdatedAt       int64         `json:"updated_at"`
}

// ShadowBranchName returns the canonical branch name for a variant's commits.
func ShadowBranchName(taskID string, sequence int) string {
	return "shadow/task-" + taskID + "/variant-" + itoa(sequence)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// --- ChatMessage ---

// MessageRole identifies the speaker of a ChatMessage.
type MessageRole string

const (
	RoleUser      MessageRole = "USER"
	RoleAssistant MessageRole = "ASSISTANT"
	RoleTool      MessageRole = "TOOL"
	RoleSystem    MessageRole = "SYSTEM"
)

// CompressionLevel is the discrete summarization intensity stored per
// message. Values are plain strings; the type itself encodes no ordering
// between levels.
type CompressionLevel string

const (
	CompressionNone  CompressionLevel = "NONE"
	CompressionLight CompressionLevel = "LIGHT"
	CompressionHeavy CompressionLevel = "HEAVY"
)

// CompressedVersion is a cached summary of a ChatMessage at one level.
type CompressedVersion struct {
	Content     string `json:"content"`
	Tokens      int    `json:"tokens"`
	CompressedAt int64 `json:"compressed_at"`
}

// ChatMessage is an ordered record within a Task. (TaskID, Sequence) is
// unique and strictly increasing.
type ChatMessage struct {
	ID                     string                                  `json:"id"`
	TaskID                 string                                  `json:"task_id"`
	VariantID              string                                  `json:"variant_id"`
	Role                   MessageRole                             `json:"role"`
	Content                string                                  `json:"content"`
	Parts                  []Part                                  `json:"parts,omitempty"`
	Sequence               int64                                   `json:"sequence"`
	CreatedAt              int64                                   `json:"created_at"`
	ModelID                string                                  `json:"model_id,omitempty"`
	Usage                  Usage                                   `json:"usage"`
	FinishReason           string                                  `json:"finish_reason,omitempty"`
	ActiveCompressionLevel CompressionLevel                        `json:"active_compression_level"`
	CompressedVersions     map[CompressionLevel]CompressedVersion `json:"compressed_versions,omitempty"`
	PullRequestSnapshot    *PullRequestSnapshot                    `json:"pull_request_snapshot,omitempty"`
}

// --- ToolCall ---

// ToolCallStatus is the lifecycle state of a ToolCall record.
type ToolCallStatus string

const (
	ToolCallPending ToolCallStatus = "PENDING"
	ToolCallRunning ToolCallStatus = "RUNNING"
	ToolCallSuccess ToolCallStatus = "SUCCESS"
	ToolCallError   ToolCallStatus = "ERROR"
)

// ToolCall is a persisted record of one tool invocation within a run.
type ToolCall struct {
	ID        string          `json:"id"`
	MessageID string          `json:"message_id"`
	TaskID    string          `json:"task_id"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args"`
	Status    ToolCallStatus  `json:"status"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// --- PullRequestSnapshot ---

// PullRequestSnapshot is captured once per completed run that opens or
// updates a pull request.
type PullRequestSnapshot struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
	FilesChanged int    `json:"files_changed"`
	CommitSHA    string `json:"commit_sha"`
	IsDraft      bool   `json:"is_draft"`
}

// --- CodebaseUnderstanding ---

// CodebaseUnderstanding is a per-repository summary artifact produced by the
// wiki generator. Shared across all Tasks against the same repository.
type CodebaseUnderstanding struct {
	RepoFullName string `json:"repo_full_name"`
	Summary      string `json:"summary"`
	GeneratedAt  int64  `json:"generated_at"`
}

// IsFresh reports whether the understanding was generated within maxAge
// seconds of now.
func (c CodebaseUnderstanding) IsFresh(now int64, maxAge int64) bool {
	return now-c.GeneratedAt < maxAge
}

// --- Usage ---

// Usage holds provider-reported token counts for one model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// --- ChatMessage constructors ---

func NewUserMessage(taskID, variantID, text string, sequence int64) ChatMessage {
	return ChatMessage{
		ID:        NewID(),
		TaskID:    taskID,
		VariantID: variantID,
		Role:      RoleUser,
		Content:   text,
		Sequence:  sequence,
		CreatedAt: NowUnix(),
	}
}

// NewSystemMessage builds the leading SYSTEM-role message the Orchestrator
// prepends to every run (§4.8); it is assembled in-memory per call and never
// persisted or sequenced alongside the USER/ASSISTANT/TOOL history.
func NewSystemMessage(taskID, variantID, text string) ChatMessage {
	return ChatMessage{
		ID:        NewID(),
		TaskID:    taskID,
		VariantID: variantID,
		Role:      RoleSystem,
		Content:   text,
		CreatedAt: NowUnix(),
	}
}

func NewAssistantMessage(taskID, variantID, modelID string, sequence int64) ChatMessage {
	return ChatMessage{
		ID:                     NewID(),
		TaskID:                 taskID,
		VariantID:              variantID,
		Role:                   RoleAssistant,
		ModelID:                modelID,
		Sequence:               sequence,
		CreatedAt:              NowUnix(),
		ActiveCompressionLevel: CompressionNone,
	}
}
