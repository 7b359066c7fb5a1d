package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	shadow "github.com/shadowhq/shadow"
)

// dispatch routes one client->server frame per §6's client event list.
func (s *session) dispatch(frame *Frame) error {
	switch frame.Event {
	case "join-task":
		return s.handleJoinTask(frame.Data)
	case "get-chat-history":
		return s.handleGetChatHistory(frame.Data)
	case "user-message":
		return s.handleUserMessage(frame.Data)
	case "stop-stream":
		return s.handleStopStream(frame.Data)
	case "get-terminal-history":
		return s.handleGetTerminalHistory(frame.Data)
	case "clear-terminal":
		return s.handleClearTerminal(frame.Data)
	default:
		return fmt.Errorf("%w: %q", errUnknownEvent, frame.Event)
	}
}

type joinTaskParams struct {
	TaskID string `json:"taskId"`
}

// handleJoinTask subscribes the session to every variant currently
// belonging to taskId, replaying each variant's buffered stream from the
// start and pushing the task's persisted chat history and background-job
// status immediately, so a client that just joined sees state without a
// second round trip.
func (s *session) handleJoinTask(data json.RawMessage) error {
	var p joinTaskParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.TaskID == "" {
		return fmt.Errorf("join-task: taskId is required")
	}

	variants, err := s.hub.store.ListVariants(s.ctx, p.TaskID)
	if err != nil {
		return fmt.Errorf("list variants: %w", err)
	}

	var unsubscribers []func()
	for _, v := range variants {
		ch, unsubscribe, ok := s.hub.sessionHub.Subscribe(v.ID, 0)
		if !ok {
			continue
		}
		unsubscribers = append(unsubscribers, unsubscribe)
		go s.forwardStream(v.ID, ch)
	}

	s.mu.Lock()
	if s.joined != nil {
		if prior, ok := s.joined[p.TaskID]; ok {
			prior()
		}
		s.joined[p.TaskID] = func() {
			for _, u := range unsubscribers {
				u()
			}
		}
	}
	s.mu.Unlock()

	if err := s.sendChatHistory(p.TaskID); err != nil {
		s.hub.logger.Warn("join-task: chat history push failed", "task_id", p.TaskID, "error", err)
	}
	s.sendIndexingStatus(p.TaskID)
	s.sendTodoUpdates(variants)
	return nil
}

// forwardStream relays one variant's StreamEvents as §6 server events until
// the subscription channel closes (unsubscribe) or the session ends.
func (s *session) forwardStream(variantID string, ch <-chan shadow.StreamEvent) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.relayPart(variantID, ev)
		}
	}
}

type streamChunkPayload struct {
	VariantID string     `json:"variantId"`
	Part      shadow.Part `json:"part"`
}

type streamStatePayload struct {
	VariantID   string `json:"variantId"`
	Content     string `json:"content"`
	IsStreaming bool   `json:"isStreaming"`
}

type streamCompletePayload struct {
	VariantID string `json:"variantId"`
}

func (s *session) relayPart(variantID string, ev shadow.StreamEvent) {
	s.emit("stream-chunk", streamChunkPayload{VariantID: variantID, Part: ev.Part})

	switch ev.Part.Kind {
	case shadow.PartTextDelta:
		s.emit("stream-state", streamStatePayload{VariantID: variantID, Content: ev.Part.Text, IsStreaming: true})
	case shadow.PartFinish:
		s.emit("stream-complete", streamCompletePayload{VariantID: variantID})
	case shadow.PartError:
		s.emit("stream-error", streamErrorPayload{Error: ev.Part.Err})
	}
}

type getChatHistoryParams struct {
	TaskID string `json:"taskId"`
}

func (s *session) handleGetChatHistory(data json.RawMessage) error {
	var p getChatHistoryParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	return s.sendChatHistory(p.TaskID)
}

type chatHistoryPayload struct {
	Messages []shadow.ChatMessage `json:"messages"`
}

func (s *session) sendChatHistory(taskID string) error {
	messages, err := s.hub.store.GetMessages(s.ctx, taskID, 0)
	if err != nil {
		return err
	}
	s.emit("chat-history", chatHistoryPayload{Messages: messages})
	return nil
}

type userMessageParams struct {
	TaskID   string `json:"taskId"`
	Message  string `json:"message"`
	LLMModel string `json:"llmModel"`
}

// handleUserMessage resolves which of the task's variants llmModel names
// and drives the Orchestrator in the background; progress arrives over the
// subscription already established by join-task, not as a direct reply.
func (s *session) handleUserMessage(data json.RawMessage) error {
	var p userMessageParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.TaskID == "" || p.Message == "" {
		return fmt.Errorf("user-message: taskId and message are required")
	}

	variants, err := s.hub.store.ListVariants(s.ctx, p.TaskID)
	if err != nil {
		return fmt.Errorf("list variants: %w", err)
	}
	variant, ok := selectVariant(variants, p.LLMModel)
	if !ok {
		return fmt.Errorf("user-message: no variant for model %q on task %s", p.LLMModel, p.TaskID)
	}

	runCtx := context.WithoutCancel(s.ctx)
	go func() {
		if err := s.hub.orchestrator.SendMessage(runCtx, variant, p.Message, variant.ModelID); err != nil {
			s.hub.logger.Warn("orchestrator run failed", "variant_id", variant.ID, "error", err)
		}
	}()
	return nil
}

// selectVariant picks the variant matching modelID, or the sole variant if
// modelID is empty and exactly one exists.
func selectVariant(variants []shadow.Variant, modelID string) (shadow.Variant, bool) {
	if modelID == "" && len(variants) == 1 {
		return variants[0], true
	}
	for _, v := range variants {
		if v.ModelID == modelID {
			return v, true
		}
	}
	return shadow.Variant{}, false
}

type stopStreamParams struct {
	TaskID string `json:"taskId"`
}

// handleStopStream stops every active run belonging to taskId, since §6
// specifies stop-stream by taskId rather than variantId (a task may be
// racing several model variants at once).
func (s *session) handleStopStream(data json.RawMessage) error {
	var p stopStreamParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	variants, err := s.hub.store.ListVariants(s.ctx, p.TaskID)
	if err != nil {
		return fmt.Errorf("list variants: %w", err)
	}
	for _, v := range variants {
		s.hub.orchestrator.StopStream(v.ID)
	}
	return nil
}

type terminalHistoryParams struct {
	TaskID    string `json:"taskId"`
	VariantID string `json:"variantId"`
}

type terminalHistoryPayload struct {
	Entries []TerminalEntry `json:"entries"`
}

func (s *session) handleGetTerminalHistory(data json.RawMessage) error {
	var p terminalHistoryParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var entries []TerminalEntry
	if s.hub.terminals != nil {
		entries = s.hub.terminals.Entries(p.VariantID)
	}
	s.emit("terminal-history", terminalHistoryPayload{Entries: entries})
	return nil
}

type clearTerminalParams struct {
	VariantID string `json:"variantId"`
}

func (s *session) handleClearTerminal(data json.RawMessage) error {
	var p clearTerminalParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if s.hub.terminals != nil {
		s.hub.terminals.Clear(p.VariantID)
	}
	s.emit("terminal-cleared", struct{}{})
	return nil
}

type indexingPayload struct {
	State string `json:"state"`
	Phase string `json:"phase"`
}

func (s *session) sendIndexingStatus(taskID string) {
	if s.hub.indexing == nil {
		return
	}
	for _, rec := range s.hub.indexing.Status(taskID) {
		state := "running"
		switch {
		case rec.Failed:
			state = "failed"
		case rec.Completed:
			state = "completed"
		}
		s.emit("indexing", indexingPayload{State: state, Phase: string(rec.Kind)})
	}
}

type todoUpdatePayload struct {
	VariantID string           `json:"variantId"`
	Todos     []todoJSON       `json:"todos"`
}

type todoJSON struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

func (s *session) sendTodoUpdates(variants []shadow.Variant) {
	if s.hub.todos == nil {
		return
	}
	for _, v := range variants {
		todos := s.hub.todos.Todos(v.ID)
		if todos == nil {
			continue
		}
		out := make([]todoJSON, len(todos))
		for i, t := range todos {
			out[i] = todoJSON{ID: t.ID, Content: t.Content, Status: t.Status}
		}
		s.emit("todo-update", todoUpdatePayload{VariantID: v.ID, Todos: out})
	}
}
