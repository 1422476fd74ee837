package events

import "sync"

// history keeps the most recent events in a fixed ring. head is the slot the
// next event goes into; count saturates at the ring size.
type history struct {
	mu    sync.RWMutex
	ring  []Event
	head  int
	count int
}

func newHistory(size int) *history {
	return &history{ring: make([]Event, size)}
}

// add stores e and reports whether the oldest event was overwritten.
func (h *history) add(e Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	evicted := h.count == len(h.ring)
	h.ring[h.head] = e
	h.head = (h.head + 1) % len(h.ring)
	if !evicted {
		h.count++
	}
	return evicted
}

// last returns up to n of the newest events, oldest first. n <= 0 means all.
func (h *history) last(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > h.count {
		n = h.count
	}
	out := make([]Event, n)
	start := h.head - n
	if start < 0 {
		start += len(h.ring)
	}
	for i := range out {
		out[i] = h.ring[(start+i)%len(h.ring)]
	}
	return out
}

func (h *history) buffered() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *history) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.ring)
	h.head, h.count = 0, 0
}
