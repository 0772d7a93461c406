package app

import (
	"sync"

	"quiz-publisher/internal/domain"
)

// EventHub fans run events out to subscribers. Publishing never blocks: a slow
// subscriber loses its oldest buffered event instead.
type EventHub struct {
	mu          sync.Mutex
	buffer      int
	subscribers map[chan domain.RunEvent]struct{}
	last        map[string]domain.RunEvent
}

func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = 16
	}
	return &EventHub{
		buffer:      buffer,
		subscribers: make(map[chan domain.RunEvent]struct{}),
		last:        make(map[string]domain.RunEvent),
	}
}

// Subscribe returns a channel of run events, primed with the latest event of every
// run still in flight. The caller must invoke cancel to avoid leaks.
func (h *EventHub) Subscribe() (<-chan domain.RunEvent, func()) {
	ch := make(chan domain.RunEvent, h.buffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	for _, ev := range h.last {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *EventHub) Publish(ev domain.RunEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Stage == domain.StageDone {
		delete(h.last, ev.RunID)
	} else {
		h.last[ev.RunID] = ev
	}

	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// drop the oldest event to make room
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribers reports the number of active subscriptions.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
