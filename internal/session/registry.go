package session

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/j-emboi/sarcastic-serenity/internal/protocol"
)

// SendTimeout bounds how long a write to one subscriber may block.
const SendTimeout = 50 * time.Millisecond

// Subscriber is one live event consumer, such as a websocket connection.
type Subscriber struct {
	ID   string
	Send chan protocol.Event
}

// registry fans events out to subscribers.
type registry struct {
	mu     sync.RWMutex
	subs   map[string]chan protocol.Event
	nextID atomic.Uint64
	closed bool
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]chan protocol.Event)}
}

func (r *registry) add(sendBuf int) *Subscriber {
	if sendBuf <= 0 {
		sendBuf = 64
	}
	id := fmt.Sprintf("s%d", r.nextID.Add(1))
	ch := make(chan protocol.Event, sendBuf)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return &Subscriber{ID: id, Send: ch}
	}
	r.subs[id] = ch
	count := len(r.subs)
	r.mu.Unlock()

	slog.Info("subscriber added", "subscriber_id", id, "total", count)
	return &Subscriber{ID: id, Send: ch}
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.subs[id]
	if !ok {
		return false
	}
	delete(r.subs, id)
	close(ch)
	slog.Info("subscriber removed", "subscriber_id", id, "remaining", len(r.subs))
	return true
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
}

func (r *registry) targets() []chan protocol.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chan protocol.Event, 0, len(r.subs))
	for _, ch := range r.subs {
		out = append(out, ch)
	}
	return out
}

// broadcast delivers ev to every subscriber, waiting up to SendTimeout for
// each full buffer.
func (r *registry) broadcast(ev protocol.Event) {
	targets := r.targets()
	sent := 0
	for _, ch := range targets {
		if trySend(ch, ev) {
			sent++
		}
	}
	slog.Debug("broadcast", "type", ev.Type, "recipients", sent, "total", len(targets))
}

// offer delivers ev only to subscribers with buffer room and never blocks.
// It returns how many subscribers missed it.
func (r *registry) offer(ev protocol.Event) (dropped int) {
	for _, ch := range r.targets() {
		if !tryOffer(ch, ev) {
			dropped++
		}
	}
	return dropped
}

func (r *registry) sendTo(id string, ev protocol.Event) bool {
	r.mu.RLock()
	ch, ok := r.subs[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return trySend(ch, ev)
}

// trySend and tryOffer recover from a send on a channel closed by a
// concurrent remove.
func trySend(ch chan protocol.Event, ev protocol.Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case ch <- ev:
		return true
	case <-time.After(SendTimeout):
		slog.Debug("trySend timeout", "type", ev.Type)
		return false
	}
}

func tryOffer(ch chan protocol.Event, ev protocol.Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}
