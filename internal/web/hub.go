package web

import (
	"sync"

	"gpsclock/internal/gps"
)

// Hub fans committed positions out to web listeners. It keeps the most
// recent value so new subscribers get an immediate sample. Slow listeners
// miss updates rather than blocking the acquisition loop.
type Hub struct {
	mu       sync.RWMutex
	subs     map[int]chan gps.Position
	nextID   int
	last     gps.Position
	haveLast bool
	closed   bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan gps.Position)}
}

func (h *Hub) Subscribe(buffer int) (int, <-chan gps.Position) {
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan gps.Position, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subs[id] = ch
	if h.haveLast {
		ch <- h.last
	}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Update implements gps.Publisher.
func (h *Hub) Update(p gps.Position) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.last, h.haveLast = p, true
	for _, ch := range h.subs {
		select {
		case ch <- p:
		default:
		}
	}
	return nil
}

// Close ends every subscription; streams see their channel close and return.
// Later subscribers get an already closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
