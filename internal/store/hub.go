package store

import "sync"

const subscriberBuffer = 100

// hub is the in-process pub/sub shared by the Store implementations.
//
// Sends are non-blocking: if a subscriber's buffer is full, the update is
// dropped for that subscriber.
type hub struct {
	mu          sync.RWMutex
	subscribers map[chan SessionRecord]struct{}
	closed      bool
}

func newHub() *hub {
	return &hub{subscribers: make(map[chan SessionRecord]struct{})}
}

// subscribe registers a new subscriber. After close it returns an already
// closed channel.
func (h *hub) subscribe() <-chan SessionRecord {
	ch := make(chan SessionRecord, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[ch] = struct{}{}
	return ch
}

func (h *hub) unsubscribe(ch <-chan SessionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		if sub == ch {
			delete(h.subscribers, sub)
			close(sub)
			return
		}
	}
}

func (h *hub) publish(rec SessionRecord) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- rec:
		default:
			// slow subscriber, drop
		}
	}
}

// close closes every subscriber channel. It reports false if the hub was
// already closed.
func (h *hub) close() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
	return true
}

func (h *hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}
