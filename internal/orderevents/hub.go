package orderevents

import (
	"context"
	"errors"
	"strings"
	"sync"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

var ErrHubUnavailable = errors.New("hub_unavailable")

// Hub fans events out to in-process subscribers. Each stream keeps a short
// backlog so a reconnecting dashboard can catch up; slow subscribers drop events.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub  *Hub
	name string
	id   uint64
	ch   chan Event
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Broadcast publishes to the shared orders stream and to the order's own stream.
func (h *Hub) Broadcast(_ context.Context, event Event) error {
	if h == nil {
		return ErrHubUnavailable
	}
	h.Publish(StreamOrders, event)
	if event.ID != "" {
		h.Publish(OrderStream(event.ID), event)
	}
	return nil
}

func (h *Hub) Publish(name string, event Event) {
	if h == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	// The shared stream always keeps a backlog; per-order streams only exist while watched.
	var st *stream
	if name == StreamOrders {
		st = h.ensureStream(name)
	} else {
		h.mu.RLock()
		st = h.streams[name]
		h.mu.RUnlock()
	}
	if st == nil {
		return
	}

	st.mu.Lock()
	st.buffer = append(st.buffer, event)
	if len(st.buffer) > h.bufferSize {
		st.buffer = st.buffer[len(st.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(st.subs))
	for _, ch := range st.subs {
		subs = append(subs, ch)
	}
	st.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) Subscribe(name string) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, errors.New("invalid_stream")
	}

	// Registering under h.mu keeps unsubscribe from dropping the stream
	// between lookup and insert.
	h.mu.Lock()
	st := h.streams[name]
	if st == nil {
		st = &stream{subs: make(map[uint64]chan Event)}
		h.streams[name] = st
	}
	st.mu.Lock()
	id := st.nextID
	st.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	st.subs[id] = ch
	backlog := append([]Event(nil), st.buffer...)
	st.mu.Unlock()
	h.mu.Unlock()

	return &Subscription{hub: h, name: name, id: id, ch: ch}, backlog, nil
}

func (h *Hub) ensureStream(name string) *stream {
	h.mu.RLock()
	current := h.streams[name]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[name]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[name] = current
	}
	return current
}

func (h *Hub) unsubscribe(name string, id uint64) {
	h.mu.RLock()
	st := h.streams[name]
	h.mu.RUnlock()
	if st == nil {
		return
	}

	st.mu.Lock()
	delete(st.subs, id)
	remaining := len(st.subs)
	st.mu.Unlock()
	if remaining != 0 || name == StreamOrders {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[name] != st {
		return
	}
	st.mu.Lock()
	empty := len(st.subs) == 0
	st.mu.Unlock()
	if empty {
		delete(h.streams, name)
	}
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.name, s.id)
	})
}
