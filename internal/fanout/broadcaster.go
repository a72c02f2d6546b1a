// Package fanout routes chunk results and status transitions to every
// subscriber of a session (§4.8). Delivery is best-effort per subscriber:
// a slow or gone subscriber never blocks the pipeline.
package fanout

import (
	"sync"

	"scribecore/internal/ports"
)

type sessionBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[int]chan any
	nextID      int
}

func newSessionBroadcaster() *sessionBroadcaster {
	return &sessionBroadcaster{subscribers: make(map[int]chan any)}
}

func (b *sessionBroadcaster) subscribe() (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan any, 32)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

func (b *sessionBroadcaster) publish(event any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// subscriber is slow or gone; drop rather than block the pipeline
		}
	}
}

// Broadcaster implements ports.Broadcaster with a per-session registry of
// subscriber channels, keyed lazily via sync.Map.
type Broadcaster struct {
	sessions sync.Map // sessionID -> *sessionBroadcaster
}

func New() *Broadcaster {
	return &Broadcaster{}
}

func (b *Broadcaster) get(sessionID string) *sessionBroadcaster {
	actual, _ := b.sessions.LoadOrStore(sessionID, newSessionBroadcaster())
	return actual.(*sessionBroadcaster)
}

func (b *Broadcaster) Subscribe(sessionID string) (<-chan any, func()) {
	return b.get(sessionID).subscribe()
}

func (b *Broadcaster) PublishUpdate(update ports.LiveUpdate) {
	b.get(update.SessionID).publish(update)
}

func (b *Broadcaster) PublishStatus(update ports.StatusUpdate) {
	b.get(update.SessionID).publish(update)
}

func (b *Broadcaster) PublishCompleted(update ports.CompletedUpdate) {
	b.get(update.SessionID).publish(update)
}

// Drop releases a session's broadcaster entirely, once it reaches a
// terminal state and no further events will be published for it.
func (b *Broadcaster) Drop(sessionID string) {
	if v, ok := b.sessions.LoadAndDelete(sessionID); ok {
		sb := v.(*sessionBroadcaster)
		sb.mu.Lock()
		for id, ch := range sb.subscribers {
			close(ch)
			delete(sb.subscribers, id)
		}
		sb.mu.Unlock()
	}
}

var _ ports.Broadcaster = (*Broadcaster)(nil)
