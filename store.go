package shadow

import "context"

// Store is the Persistence Adapter: a thin data-access layer for tasks,
// variants, chat messages (including structured parts, usage, compression
// levels, pull-request snapshots), tool-call records, and codebase
// understanding artifacts. Uniqueness on (taskId, sequence) and strictly
// monotonic sequence allocation are enforced at write time by
// implementations (see store/postgres).
type Store interface {
	// --- Tasks ---
	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	UpdateTask(ctx context.Context, task Task) error
	ListTasksByRepo(ctx context.Context, repoFullName string) ([]Task, error)

	// --- Variants ---
	CreateVariant(ctx context.Context, v Variant) error
	GetVariant(ctx context.Context, id string) (Variant, error)
	ListVariants(ctx context.Context, taskID string) ([]Variant, error)
	UpdateVariant(ctx context.Context, v Variant) error
	FindVariantsByPullRequest(ctx context.Context, repoFullName string, pullRequestNumber int) ([]Variant, error)

	// --- ChatMessages ---
	// NextSequence allocates the next strictly increasing sequence number
	// for taskID inside a short critical section, per §5's ordering
	// requirement.
	NextSequence(ctx context.Context, taskID string) (int64, error)
	AppendMessage(ctx context.Context, msg ChatMessage) error
	// UpdateMessageParts appends parts to an existing message and optionally
	// updates usage/finishReason; used for the debounced in-run persistence
	// cadence described in §4.8.
	UpdateMessageParts(ctx context.Context, messageID string, parts []Part, usage *Usage, finishReason string) error
	GetMessages(ctx context.Context, taskID string, limit int) ([]ChatMessage, error)
	GetMessage(ctx context.Context, id string) (ChatMessage, error)
	PersistCompressedVersion(ctx context.Context, messageID string, level CompressionLevel, v CompressedVersion) error
	SetPullRequestSnapshot(ctx context.Context, messageID string, snapshot PullRequestSnapshot) error

	// --- ToolCalls ---
	CreateToolCall(ctx context.Context, tc ToolCall) error
	UpdateToolCall(ctx context.Context, tc ToolCall) error
	GetToolCall(ctx context.Context, toolCallID string) (ToolCall, error)
	ListToolCallsByTask(ctx context.Context, taskID string) ([]ToolCall, error)

	// --- CodebaseUnderstanding ---
	GetCodebaseUnderstanding(ctx context.Context, repoFullName string) (CodebaseUnderstanding, error)
	SaveCodebaseUnderstanding(ctx context.Context, cu CodebaseUnderstanding) error

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
