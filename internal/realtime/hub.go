// Package realtime fans committed book changes out to the clients of their
// owner.
//
// Writers call Emit after a commit; the hub queues the event and a single
// broadcast loop delivers it to every subscriber of the same owner. Delivery
// never blocks: a subscriber whose buffer is full misses the event and is
// expected to reload.
package realtime

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/mrlokans/storynest/internal/wire"
)

const (
	queueSize      = 1000
	subscriberSize = 100
)

// Subscriber receives the change events of one owner.
type Subscriber struct {
	ID          string
	Owner       string
	ConnectedAt time.Time

	events chan wire.ChangeEvent
	done   chan struct{}
}

// Events is closed when the subscriber is removed.
func (s *Subscriber) Events() <-chan wire.ChangeEvent { return s.events }

// Done is closed when the subscriber is removed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber

	events  chan wire.ChangeEvent
	wg      sync.WaitGroup
	started atomic.Bool

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewHub creates a hub. Its loop is counted from here, so a Shutdown that
// runs before the Start goroutine is scheduled still waits for the drain.
func NewHub() *Hub {
	h := &Hub{
		subs:   make(map[string]*Subscriber),
		events: make(chan wire.ChangeEvent, queueSize),
	}
	h.wg.Add(1)
	return h
}

// Start runs the broadcast loop until ctx ends or Shutdown drains the queue.
// Calls after the first return immediately.
func (h *Hub) Start(ctx context.Context) {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	defer h.wg.Done()

	log.Printf("[REALTIME] Hub started")
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				h.closeAll()
				log.Printf("[REALTIME] Hub stopped")
				return
			}
			h.broadcast(ev)
		case <-ctx.Done():
			h.closeAll()
			log.Printf("[REALTIME] Hub stopped")
			return
		}
	}
}

// Emit queues ev for broadcasting. Events emitted after Shutdown are dropped.
func (h *Hub) Emit(ev wire.ChangeEvent) {
	h.shutdownMu.RLock()
	defer h.shutdownMu.RUnlock()
	if h.shutdown {
		return
	}

	select {
	case h.events <- ev:
	default:
		log.Printf("[REALTIME] Queue full, dropping %s event for %s", ev.Type, ev.RecordID())
	}
}

func (h *Hub) broadcast(ev wire.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.Owner != ev.Owner {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			log.Printf("[REALTIME] Dropped %s event for slow subscriber %s", ev.Type, sub.ID)
		}
	}
}

// Subscribe registers a subscriber for owner's events.
func (h *Hub) Subscribe(owner string) (*Subscriber, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate subscriber id: %w", err)
	}
	sub := &Subscriber{
		ID:          "sub-" + id,
		Owner:       owner,
		ConnectedAt: time.Now(),
		events:      make(chan wire.ChangeEvent, subscriberSize),
		done:        make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	total := len(h.subs)
	h.mu.Unlock()

	log.Printf("[REALTIME] Subscriber %s connected for user %s (%d total)", sub.ID, owner, total)
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channels. Unknown ids are
// ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	close(sub.done)
	close(sub.events)
	log.Printf("[REALTIME] Subscriber %s disconnected after %s", id, time.Since(sub.ConnectedAt).Round(time.Second))
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Shutdown stops accepting events, lets the broadcast loop deliver what is
// queued, and disconnects every subscriber.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownMu.Lock()
	if h.shutdown {
		h.shutdownMu.Unlock()
		return nil
	}
	h.shutdown = true
	close(h.events)
	h.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("realtime hub drain: %w", ctx.Err())
	}
	h.closeAll()
	return err
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Unsubscribe(id)
	}
}
