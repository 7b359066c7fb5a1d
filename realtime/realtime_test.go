package realtime

import (
	"context"
	"encoding/json"
	"testing"

	shadow "github.com/shadowhq/shadow"
)

// fakeStore implements shadow.Store with just enough behavior for the
// realtime dispatch tests; every method beyond ListVariants/GetMessages is
// a no-op, the same "mock only what the test exercises" approach
// manager_test.go's MockDocumentStore takes in the pack.
type fakeStore struct {
	variants map[string][]shadow.Variant
	messages map[string][]shadow.ChatMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{variants: make(map[string][]shadow.Variant), messages: make(map[string][]shadow.ChatMessage)}
}

func (f *fakeStore) CreateTask(ctx context.Context, task shadow.Task) error { return nil }
func (f *fakeStore) GetTask(ctx context.Context, id string) (shadow.Task, error) {
	return shadow.Task{}, nil
}
func (f *fakeStore) UpdateTask(ctx context.Context, task shadow.Task) error { return nil }
func (f *fakeStore) ListTasksByRepo(ctx context.Context, repoFullName string) ([]shadow.Task, error) {
	return nil, nil
}

func (f *fakeStore) CreateVariant(ctx context.Context, v shadow.Variant) error { return nil }
func (f *fakeStore) GetVariant(ctx context.Context, id string) (shadow.Variant, error) {
	return shadow.Variant{}, nil
}
func (f *fakeStore) ListVariants(ctx context.Context, taskID string) ([]shadow.Variant, error) {
	return f.variants[taskID], nil
}
func (f *fakeStore) UpdateVariant(ctx context.Context, v shadow.Variant) error { return nil }
func (f *fakeStore) FindVariantsByPullRequest(ctx context.Context, repoFullName string, pullRequestNumber int) ([]shadow.Variant, error) {
	return nil, nil
}

func (f *fakeStore) NextSequence(ctx context.Context, taskID string) (int64, error) { return 1, nil }
func (f *fakeStore) AppendMessage(ctx context.Context, msg shadow.ChatMessage) error { return nil }
func (f *fakeStore) UpdateMessageParts(ctx context.Context, messageID string, parts []shadow.Part, usage *shadow.Usage, finishReason string) error {
	return nil
}
func (f *fakeStore) GetMessages(ctx context.Context, taskID string, limit int) ([]shadow.ChatMessage, error) {
	return f.messages[taskID], nil
}
func (f *fakeStore) GetMessage(ctx context.Context, id string) (shadow.ChatMessage, error) {
	return shadow.ChatMessage{}, nil
}
func (f *fakeStore) PersistCompressedVersion(ctx context.Context, messageID string, level shadow.CompressionLevel, v shadow.CompressedVersion) error {
	return nil
}
func (f *fakeStore) SetPullRequestSnapshot(ctx context.Context, messageID string, snapshot shadow.PullRequestSnapshot) error {
	return nil
}

func (f *fakeStore) CreateToolCall(ctx context.Context, tc shadow.ToolCall) error { return nil }
func (f *fakeStore) UpdateToolCall(ctx context.Context, tc shadow.ToolCall) error { return nil }
func (f *fakeStore) GetToolCall(ctx context.Context, toolCallID string) (shadow.ToolCall, error) {
	return shadow.ToolCall{}, nil
}
func (f *fakeStore) ListToolCallsByTask(ctx context.Context, taskID string) ([]shadow.ToolCall, error) {
	return nil, nil
}

func (f *fakeStore) GetCodebaseUnderstanding(ctx context.Context, repoFullName string) (shadow.CodebaseUnderstanding, error) {
	return shadow.CodebaseUnderstanding{}, nil
}
func (f *fakeStore) SaveCodebaseUnderstanding(ctx context.Context, cu shadow.CodebaseUnderstanding) error {
	return nil
}

func (f *fakeStore) Init(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                    { return nil }

var _ shadow.Store = (*fakeStore)(nil)

func newTestSession(h *Hub) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, 16),
		joined: make(map[string]func()),
	}
}

func drainFrame(t *testing.T, s *session) Frame {
	t.Helper()
	select {
	case raw := <-s.send:
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return f
	default:
		t.Fatal("expected a frame to have been sent")
		return Frame{}
	}
}

func TestSelectVariant_ByModelID(t *testing.T) {
	variants := []shadow.Variant{
		{ID: "v1", ModelID: "gpt-5"},
		{ID: "v2", ModelID: "claude-4"},
	}
	v, ok := selectVariant(variants, "claude-4")
	if !ok || v.ID != "v2" {
		t.Fatalf("expected v2, got %+v ok=%v", v, ok)
	}
}

func TestSelectVariant_SingleVariantEmptyModel(t *testing.T) {
	variants := []shadow.Variant{{ID: "only", ModelID: "gpt-5"}}
	v, ok := selectVariant(variants, "")
	if !ok || v.ID != "only" {
		t.Fatalf("expected the sole variant to be selected, got %+v ok=%v", v, ok)
	}
}

func TestSelectVariant_NoMatch(t *testing.T) {
	variants := []shadow.Variant{{ID: "v1", ModelID: "gpt-5"}}
	_, ok := selectVariant(variants, "nonexistent")
	if ok {
		t.Fatal("expected no match")
	}
}

func TestHandleGetChatHistory_EmitsChatHistory(t *testing.T) {
	store := newFakeStore()
	store.messages["task-1"] = []shadow.ChatMessage{{ID: "m1", TaskID: "task-1", Content: "hi"}}
	h := NewHub(shadow.NewOrchestrator(shadow.OrchestratorConfig{Store: store, Hub: shadow.NewSessionHub(nil)}), shadow.NewSessionHub(nil), store)
	sess := newTestSession(h)

	data, _ := json.Marshal(getChatHistoryParams{TaskID: "task-1"})
	if err := sess.dispatch(&Frame{Event: "get-chat-history", Data: data}); err != nil {
		t.Fatalf("dispatch returned error: %v", err)
	}

	frame := drainFrame(t, sess)
	if frame.Event != "chat-history" {
		t.Fatalf("expected chat-history event, got %s", frame.Event)
	}
	var payload chatHistoryPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Messages) != 1 || payload.Messages[0].ID != "m1" {
		t.Fatalf("unexpected messages: %+v", payload.Messages)
	}
}

func TestHandleStopStream_StopsEveryVariant(t *testing.T) {
	store := newFakeStore()
	store.variants["task-1"] = []shadow.Variant{{ID: "v1"}, {ID: "v2"}}
	sessionHub := shadow.NewSessionHub(nil)
	orch := shadow.NewOrchestrator(shadow.OrchestratorConfig{Store: store, Hub: sessionHub})

	sessionHub.StartRun("v1", "run-1", func() {})
	sessionHub.StartRun("v2", "run-2", func() {})

	h := NewHub(orch, sessionHub, store)
	sess := newTestSession(h)

	data, _ := json.Marshal(stopStreamParams{TaskID: "task-1"})
	if err := sess.dispatch(&Frame{Event: "stop-stream", Data: data}); err != nil {
		t.Fatalf("dispatch returned error: %v", err)
	}
}

func TestDispatch_UnknownEventReturnsError(t *testing.T) {
	store := newFakeStore()
	h := NewHub(shadow.NewOrchestrator(shadow.OrchestratorConfig{Store: store, Hub: shadow.NewSessionHub(nil)}), shadow.NewSessionHub(nil), store)
	sess := newTestSession(h)

	err := sess.dispatch(&Frame{Event: "not-a-real-event"})
	if err == nil {
		t.Fatal("expected an error for an unknown event")
	}
}

func TestHandleClearTerminal_EmitsTerminalCleared(t *testing.T) {
	store := newFakeStore()
	h := NewHub(shadow.NewOrchestrator(shadow.OrchestratorConfig{Store: store, Hub: shadow.NewSessionHub(nil)}), shadow.NewSessionHub(nil), store)
	sess := newTestSession(h)

	data, _ := json.Marshal(clearTerminalParams{VariantID: "v1"})
	if err := sess.dispatch(&Frame{Event: "clear-terminal", Data: data}); err != nil {
		t.Fatalf("dispatch returned error: %v", err)
	}
	frame := drainFrame(t, sess)
	if frame.Event != "terminal-cleared" {
		t.Fatalf("expected terminal-cleared event, got %s", frame.Event)
	}
}

func TestHandleGetTerminalHistory_EmptyWithoutBackend(t *testing.T) {
	store := newFakeStore()
	h := NewHub(shadow.NewOrchestrator(shadow.OrchestratorConfig{Store: store, Hub: shadow.NewSessionHub(nil)}), shadow.NewSessionHub(nil), store)
	sess := newTestSession(h)

	data, _ := json.Marshal(terminalHistoryParams{TaskID: "task-1", VariantID: "v1"})
	if err := sess.dispatch(&Frame{Event: "get-terminal-history", Data: data}); err != nil {
		t.Fatalf("dispatch returned error: %v", err)
	}
	frame := drainFrame(t, sess)
	if frame.Event != "terminal-history" {
		t.Fatalf("expected terminal-history event, got %s", frame.Event)
	}
	var payload terminalHistoryPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Entries) != 0 {
		t.Fatalf("expected no entries without a TerminalHistory backend, got %d", len(payload.Entries))
	}
}
