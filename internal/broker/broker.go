package broker

import "sync"

// Hub fans full-state snapshots out to in-process subscribers by topic.
// Every delivery is a complete replacement of the subscriber's view, so when a
// slow consumer falls behind, the oldest undelivered snapshot is dropped in
// favour of the newest one. Delivery is at-least-once per change.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 8
	}
	return &Hub{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a listener on the topic. The caller must Close the
// subscription when done; Close is idempotent and safe to call repeatedly.
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		hub:   h,
		topic: topic,
		ch:    make(chan interface{}, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		sub.closed = true
		return sub
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Publish delivers the payload to every subscriber of the topic without
// blocking the publisher.
func (h *Hub) Publish(topic string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.topics[topic] {
		sub.push(payload)
	}
}

// SubscriberCount reports the number of active subscriptions on the topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// TotalSubscribers reports the number of active subscriptions across all topics.
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, subs := range h.topics {
		total += len(subs)
	}
	return total
}

// Close tears down all subscriptions. Further publishes are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, subs := range h.topics {
		for sub := range subs {
			sub.markClosed()
		}
		delete(h.topics, topic)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, sub.topic)
		}
	}
}

// Subscription is one listener's handle on a topic.
type Subscription struct {
	hub   *Hub
	topic string

	mu     sync.Mutex
	ch     chan interface{}
	closed bool
}

// C exposes the snapshot channel. The channel is closed when the subscription
// or the hub shuts down.
func (s *Subscription) C() <-chan interface{} {
	return s.ch
}

// Close detaches the subscription from the hub. Idempotent.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.markClosed()
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscription) push(payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- payload:
			return
		default:
			// Buffer full: evict the stale snapshot and retry with the new one.
			select {
			case <-s.ch:
			default:
			}
		}
	}
}
