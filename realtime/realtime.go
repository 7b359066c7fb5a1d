// Package realtime implements §6's bidirectional per-task realtime channel
// over a websocket, grounded on haasonsaas-nexus's control-plane gateway
// (internal/gateway/ws_control_plane.go) for the connection lifecycle
// (upgrader config, buffered write loop, read/pong deadlines) adapted from
// that gateway's request/response RPC framing to the bare named-event frame
// shape §6 specifies directly (no request id, no ok/error envelope — a
// client message is {event, data} and so is a server message).
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	shadow "github.com/shadowhq/shadow"
	"github.com/shadowhq/shadow/tools/workspace"
)

const (
	maxPayloadBytes = 1 << 20
	writeWait       = 10 * time.Second
	pongWait        = 45 * time.Second
	pingInterval    = 20 * time.Second
	sendBufferSize  = 128
)

// Frame is the wire shape for both directions: an event name plus its
// opaque JSON payload. §6 names events directly ("join-task",
// "stream-chunk", ...) rather than a method/params RPC envelope, so the
// frame carries no request id.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TerminalHistory optionally backs get-terminal-history/clear-terminal.
// Left nil, those events are answered with an empty history — the
// terminal sidecar process that actually runs commands outside
// run_terminal_cmd is an external collaborator per §1's Non-goals.
type TerminalHistory interface {
	Entries(variantID string) []TerminalEntry
	Clear(variantID string)
}

// TerminalEntry is one recorded terminal invocation surfaced over the
// realtime channel.
type TerminalEntry struct {
	Command   string `json:"command"`
	Output    string `json:"output"`
	ExitCode  int    `json:"exitCode"`
	CreatedAt int64  `json:"createdAt"`
}

// TodoSource optionally backs todo-update by reporting the live todo list
// of a variant's in-memory Tools instance (§4.6's todo_write tool).
type TodoSource interface {
	Todos(variantID string) []workspace.Todo
}

// IndexingStatus optionally backs the indexing event by reporting the
// Background Service Manager's job records for a task.
type IndexingStatus interface {
	Status(taskID string) []shadow.JobRecord
}

// Orchestrator is the run-driving dependency join-task/user-message/
// stop-stream need. Satisfied directly by *shadow.Orchestrator for a
// single-provider deployment, or by *shadow.OrchestratorRouter when more
// than one provider family is registered.
type Orchestrator interface {
	SendMessage(ctx context.Context, variant shadow.Variant, userText, modelID string) error
	StopStream(variantID string) bool
}

// Hub serves the websocket endpoint for §6's realtime channel: one
// connection per browser tab, joined to zero or more tasks, fanned out
// from the Orchestrator's SessionHub plus whatever ambient state (todos,
// indexing, terminal history) the server wires in.
type Hub struct {
	orchestrator Orchestrator
	sessionHub   *shadow.SessionHub
	store        shadow.Store

	terminals TerminalHistory
	todos     TodoSource
	indexing  IndexingStatus

	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// Option configures a Hub.
type Option func(*Hub)

func WithTerminalHistory(t TerminalHistory) Option { return func(h *Hub) { h.terminals = t } }
func WithTodoSource(t TodoSource) Option           { return func(h *Hub) { h.todos = t } }
func WithIndexingStatus(s IndexingStatus) Option    { return func(h *Hub) { h.indexing = s } }
func WithLogger(l *slog.Logger) Option              { return func(h *Hub) { h.logger = l } }

// NewHub builds a Hub. orchestrator drives runs, sessionHub is the same
// instance passed to orchestrator's OrchestratorConfig.Hub, and store
// backs chat-history replay.
func NewHub(orchestrator Orchestrator, sessionHub *shadow.SessionHub, store shadow.Store, opts ...Option) *Hub {
	h := &Hub{
		orchestrator: orchestrator,
		sessionHub:   sessionHub,
		store:        store,
		logger:       slog.New(discardHandler{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the connection and runs the session until the socket
// closes or the request's context is cancelled.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	sess := &session{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
		joined: make(map[string]func()),
	}
	sess.run()
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

// session is one connected client, joined to zero or more tasks. Grounded
// on wsSession's split read/write loop and buffered send channel, scaled
// down from its req/res/event dispatch to §6's flat named-event protocol.
type session struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	joined map[string]func() // taskID -> unsubscribe-all for that task's variants
}

func (s *session) run() {
	defer s.close()
	go s.writeLoop()
	s.readLoop()
}

func (s *session) close() {
	s.cancel()
	s.mu.Lock()
	for _, unsub := range s.joined {
		unsub()
	}
	s.joined = nil
	s.mu.Unlock()
	close(s.send)
	_ = s.conn.Close()
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(maxPayloadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.emit("stream-error", streamErrorPayload{Error: "invalid frame: " + err.Error()})
			continue
		}
		if err := s.dispatch(&frame); err != nil {
			s.emit("stream-error", streamErrorPayload{Error: err.Error()})
		}
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (s *session) emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame := Frame{Event: event, Data: data}
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case s.send <- raw:
	default:
		s.hub.logger.Warn("realtime send buffer full, dropping frame", "event", event)
	}
}

type streamErrorPayload struct {
	Error string `json:"error"`
}

var errUnknownEvent = fmt.Errorf("unknown event")
