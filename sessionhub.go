package shadow

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// runBuffer holds the ordered parts emitted since a run started, so late
// subscribers can replay strictly-after their cursor without gaps. Pruned
// by SessionHub.Retire once the run has published a finish or error part
// and no subscriber remains; acknowledgements are not tracked and there is
// no grace interval, so a buffer with a subscriber still attached is kept.
type runBuffer struct {
	mu       sync.RWMutex
	runID    string
	events   []StreamEvent
	terminal bool
}

func (b *runBuffer) append(ev StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *runBuffer) since(cursor int64) []StreamEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []StreamEvent
	for _, ev := range b.events {
		if ev.Cursor > cursor {
			out = append(out, ev)
		}
	}
	return out
}

// subscriberChanCap bounds each subscriber's delivery queue. A slow
// subscriber that fills this queue misses events and is signaled with a lag
// event rather than blocking upstream consumption of the provider stream
// (§5: "slow subscribers are dropped or buffered with a bounded queue").
const subscriberChanCap = 256

type subscriber struct {
	id     string
	ch     chan StreamEvent
	cursor int64
}

// variantSession tracks the single active run for one variant and its
// subscriber set.
type variantSession struct {
	mu             sync.Mutex
	buffer         *runBuffer
	subscribers    map[string]*subscriber
	completionPending bool
	cancelFn       context.CancelFunc
}

// SessionHub is the durable per-variant fan-out layer: one active agent run
// per variant, many subscribers, with a replayable buffer so late joiners
// resume without gaps. Grounded on the Spawn/AgentHandle lifecycle pattern,
// generalized from a single-result future to a multi-subscriber broadcast.
type SessionHub struct {
	mu       sync.Mutex
	sessions map[string]*variantSession // key: variantID
	logger   *slog.Logger
}

func NewSessionHub(logger *slog.Logger) *SessionHub {
	if logger == nil {
		logger = nopLogger
	}
	return &SessionHub{sessions: make(map[string]*variantSession), logger: logger}
}

// StartRun registers a new active run for a variant, replacing any prior
// buffer (a variant has at most one active run). cancel is invoked by
// Cancel() to signal the Orchestrator's abort path.
func (h *SessionHub) StartRun(variantID, runID string, cancel context.CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[variantID] = &variantSession{
		buffer:      &runBuffer{runID: runID},
		subscribers: make(map[string]*subscriber),
		cancelFn:    cancel,
	}
}

// Publish appends part to the run buffer and forwards it to every current
// subscriber without blocking upstream consumption: forwarding to all
// subscribers happens concurrently via errgroup, bounded per-subscriber by
// a non-blocking send.
func (h *SessionHub) Publish(ctx context.Context, variantID string, part Part) {
	h.mu.Lock()
	sess, ok := h.sessions[variantID]
	h.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	cursor := int64(len(sess.buffer.events)) + 1
	ev := StreamEvent{VariantID: variantID, RunID: sess.buffer.runID, Cursor: cursor, Part: part}
	sess.buffer.append(ev)
	if part.Kind == PartFinish || part.Kind == PartError {
		sess.completionPending = true
	}
	subs := make([]*subscriber, 0, len(sess.subscribers))
	for _, s := range sess.subscribers {
		subs = append(subs, s)
	}
	sess.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, s := range subs {
		s := s
		g.Go(func() error {
			select {
			case s.ch <- ev:
			default:
				// Bounded queue full: this event is dropped for s. Discard
				// the oldest queued event to make room for a lag marker so
				// the subscriber knows to resync from its last cursor.
				select {
				case <-s.ch:
				default:
				}
				select {
				case s.ch <- (StreamEvent{VariantID: variantID, RunID: sess.buffer.runID, Part: Part{Kind: PartError, Err: "lag: subscriber dropped events"}}):
				default:
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Subscribe replays buffered parts strictly after sinceCursor (if given),
// then forwards live parts. Returns the channel to read from and an
// unsubscribe function.
func (h *SessionHub) Subscribe(variantID string, sinceCursor int64) (<-chan StreamEvent, func(), bool) {
	h.mu.Lock()
	sess, ok := h.sessions[variantID]
	h.mu.Unlock()
	if !ok {
		return nil, func() {}, false
	}

	sub := &subscriber{id: NewID(), ch: make(chan StreamEvent, subscriberChanCap), cursor: sinceCursor}

	sess.mu.Lock()
	backlog := sess.buffer.since(sinceCursor)
	sess.subscribers[sub.id] = sub
	sess.mu.Unlock()

	// Replay backlog before the caller starts reading live events; since the
	// subscriber channel is buffered, this is a non-blocking burst as long
	// as backlog fits within subscriberChanCap (true for any reasonable
	// reconnect gap).
	for _, ev := range backlog {
		select {
		case sub.ch <- ev:
		default:
		}
	}

	unsubscribe := func() {
		sess.mu.Lock()
		delete(sess.subscribers, sub.id)
		sess.mu.Unlock()
		close(sub.ch)
	}
	return sub.ch, unsubscribe, true
}

// Cancel signals the Orchestrator running variantID's active run to stop.
func (h *SessionHub) Cancel(variantID string) bool {
	h.mu.Lock()
	sess, ok := h.sessions[variantID]
	h.mu.Unlock()
	if !ok || sess.cancelFn == nil {
		return false
	}
	sess.cancelFn()
	return true
}

// Retire prunes a run's buffer if the run has published a finish or error
// part and no subscriber is connected. With a subscriber still attached it
// does nothing, and no timer retires the buffer later. Callers invoke this
// after persistence finalization.
func (h *SessionHub) Retire(variantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.sessions[variantID]
	if !ok || !sess.completionPending {
		return
	}
	if len(sess.subscribers) == 0 {
		delete(h.sessions, variantID)
	}
}
