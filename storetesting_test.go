package shadow

import (
	"context"
	"encoding/json"
	"sync"
)

// fakeStore is a minimal in-memory Store used by the root package's tests,
// following webhook/webhook_test.go's fakeStore pattern: most methods are
// one-line stubs, with just enough statefulness (tasks, sequence allocation,
// message history) for the Orchestrator/Context Manager tests to observe
// what was persisted.
type fakeStore struct {
	mu sync.Mutex

	tasks     map[string]Task
	variants  map[string]Variant
	messages  map[string]*ChatMessage // by message ID
	order     []string                // message IDs in append order
	seq       map[string]int64        // taskID -> next sequence
	toolCalls map[string]ToolCall
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:     make(map[string]Task),
		variants:  make(map[string]Variant),
		messages:  make(map[string]*ChatMessage),
		seq:       make(map[string]int64),
		toolCalls: make(map[string]ToolCall),
	}
}

func (f *fakeStore) CreateTask(ctx context.Context, task Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id], nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, task Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeStore) ListTasksByRepo(ctx context.Context, repoFullName string) ([]Task, error) {
	return nil, nil
}

func (f *fakeStore) CreateVariant(ctx context.Context, v Variant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variants[v.ID] = v
	return nil
}

func (f *fakeStore) GetVariant(ctx context.Context, id string) (Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variants[id], nil
}

func (f *fakeStore) ListVariants(ctx context.Context, taskID string) ([]Variant, error) {
	return nil, nil
}

func (f *fakeStore) UpdateVariant(ctx context.Context, v Variant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variants[v.ID] = v
	return nil
}

func (f *fakeStore) FindVariantsByPullRequest(ctx context.Context, repoFullName string, pullRequestNumber int) ([]Variant, error) {
	return nil, nil
}

func (f *fakeStore) NextSequence(ctx context.Context, taskID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq[taskID]++
	return f.seq[taskID], nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, msg ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := msg
	f.messages[m.ID] = &m
	f.order = append(f.order, m.ID)
	return nil
}

func (f *fakeStore) UpdateMessageParts(ctx context.Context, messageID string, parts []Part, usage *Usage, finishReason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return nil
	}
	m.Parts = append(m.Parts, parts...)
	if usage != nil {
		m.Usage = *usage
	}
	if finishReason != "" {
		m.FinishReason = finishReason
	}
	return nil
}

func (f *fakeStore) GetMessages(ctx context.Context, taskID string, limit int) ([]ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ChatMessage
	for _, id := range f.order {
		m := f.messages[id]
		if m.TaskID != taskID {
			continue
		}
		out = append(out, *m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) GetMessage(ctx context.Context, id string) (ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[id]; ok {
		return *m, nil
	}
	return ChatMessage{}, nil
}

func (f *fakeStore) PersistCompressedVersion(ctx context.Context, messageID string, level CompressionLevel, v CompressedVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return nil
	}
	if m.CompressedVersions == nil {
		m.CompressedVersions = map[CompressionLevel]CompressedVersion{}
	}
	m.CompressedVersions[level] = v
	return nil
}

func (f *fakeStore) SetPullRequestSnapshot(ctx context.Context, messageID string, snapshot PullRequestSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[messageID]; ok {
		m.PullRequestSnapshot = &snapshot
	}
	return nil
}

func (f *fakeStore) CreateToolCall(ctx context.Context, tc ToolCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolCalls[tc.ID] = tc
	return nil
}

func (f *fakeStore) UpdateToolCall(ctx context.Context, tc ToolCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolCalls[tc.ID] = tc
	return nil
}

func (f *fakeStore) GetToolCall(ctx context.Context, toolCallID string) (ToolCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toolCalls[toolCallID], nil
}

func (f *fakeStore) ListToolCallsByTask(ctx context.Context, taskID string) ([]ToolCall, error) {
	return nil, nil
}

func (f *fakeStore) GetCodebaseUnderstanding(ctx context.Context, repoFullName string) (CodebaseUnderstanding, error) {
	return CodebaseUnderstanding{}, nil
}

func (f *fakeStore) SaveCodebaseUnderstanding(ctx context.Context, cu CodebaseUnderstanding) error {
	return nil
}

func (f *fakeStore) Init(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

var _ Store = (*fakeStore)(nil)

// fakeProviderClient is a scriptable ProviderClient/Provider, in the spirit
// of oasis/loop_test.go's mockProvider: StreamChat replays the next entry of
// turns on each call (recording the request it was given), and Chat replays
// the next entry of chatResponses. Both are safe for the Orchestrator's
// sequential step loop.
type fakeProviderClient struct {
	mu sync.Mutex

	name   string
	native bool

	turns   [][]ProviderChunk
	callIdx int

	requests []ChatRequest

	chatResponses []ChatResponse
	chatIdx       int
	chatCalls     int
}

func (f *fakeProviderClient) Name() string                 { return f.name }
func (f *fakeProviderClient) SupportsNativeReasoning() bool { return f.native }

func (f *fakeProviderClient) StreamChat(ctx context.Context, req ChatRequest, raw chan<- ProviderChunk) error {
	f.mu.Lock()
	idx := f.callIdx
	f.callIdx++
	f.requests = append(f.requests, req)
	var chunks []ProviderChunk
	if idx < len(f.turns) {
		chunks = f.turns[idx]
	}
	f.mu.Unlock()

	defer close(raw)
	for _, c := range chunks {
		select {
		case raw <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeProviderClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	idx := f.chatIdx
	f.chatIdx++
	if idx < len(f.chatResponses) {
		return f.chatResponses[idx], nil
	}
	return ChatResponse{FinishReason: FinishStop}, nil
}

var _ ProviderClient = (*fakeProviderClient)(nil)

// fakeTool is a single-definition Tool used to exercise the Tool Registry &
// Executor from orchestrator-level tests without touching a real workspace.
type fakeTool struct {
	def     ToolDefinition
	result  ToolResult
	execErr error
	calls   int
}

func (t *fakeTool) Definitions() []ToolDefinition { return []ToolDefinition{t.def} }

func (t *fakeTool) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t.calls++
	return t.result, t.execErr
}

func newFakeReadFileTool() *fakeTool {
	return &fakeTool{
		def: ToolDefinition{
			Name:        "read_file",
			Description: "Read a file from the workspace",
			Parameters:  []byte(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		},
		result: ToolResult{Content: "package main\n"},
	}
}
