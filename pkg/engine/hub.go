package engine

import (
	"context"
	"time"
)

type EventKind string

const (
	KindLifecycle EventKind = "lifecycle"
	KindSample    EventKind = "sample"
	KindGesture   EventKind = "gesture"
	KindThrow     EventKind = "throw"
)

// Event is what flows from the session and recognizer to the sinks.
// Data carries the concrete value for Kind (transport.Lifecycle,
// protocol.MotionSample, gesture.Event or gesture.Throw).
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Data      any
}

// Hub fans events out to subscribers. A subscriber that falls behind misses
// events instead of stalling the publisher.
type Hub struct {
	broadcast  chan Event
	register   chan chan Event
	unregister chan chan Event
	clients    map[chan Event]struct{}
	clientBuf  int
	done       chan struct{}
}

type HubOption func(*Hub)

func WithBroadcastBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan Event, size)
		}
	}
}

func WithClientBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		broadcast:  make(chan Event, 256),
		register:   make(chan chan Event),
		unregister: make(chan chan Event),
		clients:    make(map[chan Event]struct{}),
		clientBuf:  64,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run owns the subscriber set until ctx is done, then closes every
// subscription. A Hub runs once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case ev := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}
}

func (h *Hub) Subscribe() chan Event {
	return h.SubscribeWithBuffer(h.clientBuf)
}

func (h *Hub) SubscribeWithBuffer(size int) chan Event {
	if size <= 0 {
		size = h.clientBuf
	}
	ch := make(chan Event, size)
	select {
	case h.register <- ch:
	case <-h.done:
		close(ch)
	}
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	}
}

// Publish queues ev for broadcast. It only blocks once the broadcast buffer
// is full, i.e. when Run is not draining it.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.broadcast <- ev
}

// TryPublish is Publish without blocking; it reports whether ev was queued.
func (h *Hub) TryPublish(ev Event) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- ev:
		return true
	default:
		return false
	}
}
