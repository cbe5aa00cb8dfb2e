// Package debugbus implements the per-session debug event fabric: a
// broadcaster fans structured events out to any number of subscribers over
// bounded queues, dropping the oldest entry when a subscriber falls behind.
//
// The session and turn controller emit events through one [Broadcaster] per
// call; admin debug sockets subscribe to it. A process-wide [Registry] hands
// out broadcasters keyed by session ID with get-or-create semantics.
package debugbus

import (
	"sync"
	"time"
)

// Event types emitted by the session and turn controller.
const (
	EventTransition    = "transition"
	EventLLMCall       = "llm_call"
	EventLLMResponse   = "llm_response"
	EventToolExec      = "tool_exec"
	EventSTT           = "stt"
	EventStepComplete  = "step_complete"
	EventFieldProgress = "field_progress"
	EventPause         = "pause"
	EventResume        = "resume"
	EventError         = "error"
)

// Event is one structured debug record. Events are append-only per session
// and totally ordered by emission.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	StateID   string         `json:"state_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// DefaultQueueCapacity is the bound of a subscriber queue created by
// [Broadcaster.Subscribe].
const DefaultQueueCapacity = 200

// Broadcaster fans events for one session out to all subscribers and keeps
// the complete history. Safe for concurrent use: Emit may be called while
// subscribers read from their channels.
type Broadcaster struct {
	sessionID string
	capacity  int

	mu   sync.Mutex
	subs []chan Event
	log  []Event
}

// Option is a functional option for [NewBroadcaster].
type Option func(*Broadcaster)

// WithQueueCapacity overrides the subscriber queue bound. Values below 1 are
// ignored.
func WithQueueCapacity(n int) Option {
	return func(b *Broadcaster) {
		if n >= 1 {
			b.capacity = n
		}
	}
}

// NewBroadcaster creates a broadcaster for the given session.
func NewBroadcaster(sessionID string, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		sessionID: sessionID,
		capacity:  DefaultQueueCapacity,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SessionID returns the session this broadcaster serves.
func (b *Broadcaster) SessionID() string {
	return b.sessionID
}

// Subscribe registers and returns a new bounded queue. The caller owns the
// receiving side; it is never closed by the broadcaster. Unsubscribe when
// done or the queue will keep receiving (and rotating) events.
func (b *Broadcaster) Subscribe() <-chan Event {
	ch := make(chan Event, b.capacity)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a queue returned by [Broadcaster.Subscribe]. Emits
// after removal ignore it. Unknown queues are a no-op.
func (b *Broadcaster) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit stamps the event with the session ID and current time, appends it to
// the history, and pushes it to every subscriber. A full subscriber queue
// loses its oldest entry; delivered events always preserve order.
func (b *Broadcaster) Emit(eventType, stateID string, data map[string]any) {
	ev := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		SessionID: b.sessionID,
		StateID:   stateID,
		Data:      data,
	}

	b.mu.Lock()
	b.log = append(b.log, ev)
	subs := make([]chan Event, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		for {
			select {
			case sub <- ev:
			default:
				// Queue full: drop the oldest entry and retry.
				select {
				case <-sub:
				default:
				}
				continue
			}
			break
		}
	}
}

// Log returns a defensive copy of the complete event history.
func (b *Broadcaster) Log() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.log))
	copy(out, b.log)
	return out
}

// Registry maps session IDs to broadcasters. Safe for concurrent use.
type Registry struct {
	mu          sync.Mutex
	broadcaster map[string]*Broadcaster
	opts        []Option
}

// NewRegistry creates an empty broadcaster registry. opts apply to every
// broadcaster it creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		broadcaster: make(map[string]*Broadcaster),
		opts:        opts,
	}
}

// Get returns the broadcaster for sessionID, creating one on first use.
func (r *Registry) Get(sessionID string) *Broadcaster {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.broadcaster[sessionID]
	if !ok {
		b = NewBroadcaster(sessionID, r.opts...)
		r.broadcaster[sessionID] = b
	}
	return b
}

// Lookup returns the broadcaster for sessionID without creating one.
func (r *Registry) Lookup(sessionID string) (*Broadcaster, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.broadcaster[sessionID]
	return b, ok
}

// Remove drops the broadcaster for sessionID. Existing subscriber channels
// keep any queued events but receive nothing further through the registry.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.broadcaster, sessionID)
}
