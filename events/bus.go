// Package events is the in-process bus between the governing program and the
// sync controller. Handlers run synchronously on the publisher's goroutine.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// Topic names a stream of events
type Topic string

const (
	// TopicSaveRequested is raised by the governing program after it has
	// written a new blob locally. Blob carries that blob.
	TopicSaveRequested Topic = "save_requested"
	// TopicRemoteStateAvailable is raised by the controller with the trimmed
	// remote content fetched at session start. Handlers run on the controller
	// loop: they must hand slow work to another goroutine and must not
	// publish TopicSaveRequested synchronously.
	TopicRemoteStateAvailable Topic = "remote_state_available"
	// TopicStateReloaded is raised by the reconciler after remote content
	// replaced the local blob.
	TopicStateReloaded Topic = "state_reloaded"
)

// Event is a single published message
type Event struct {
	Topic Topic
	Blob  string
}

// Handler receives events for a topic
type Handler func(Event)

type entry struct {
	id      uint64
	handler Handler
}

// Bus fans events out to per-topic handlers
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]entry
	nextID uint64
	logger *zap.SugaredLogger
}

// NewBus creates an empty bus
func NewBus(logger *zap.SugaredLogger) *Bus {
	return &Bus{
		subs:   make(map[Topic][]entry),
		logger: logger,
	}
}

// Subscription is the handle returned by Subscribe. Unsubscribe is idempotent.
type Subscription struct {
	bus   *Bus
	topic Topic
	id    uint64
	once  sync.Once
}

// Subscribe registers h for topic. Handlers run in subscription order.
func (b *Bus) Subscribe(topic Topic, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[topic] = append(b.subs[topic], entry{id: b.nextID, handler: h})
	return &Subscription{bus: b, topic: topic, id: b.nextID}
}

// Unsubscribe detaches the handler. Events published after it returns are not delivered.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.topic, s.id)
	})
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.subs[topic]
	for i, e := range entries {
		if e.id == id {
			// copy so a concurrent Publish iterating the old slice is unaffected
			next := make([]entry, 0, len(entries)-1)
			next = append(next, entries[:i]...)
			next = append(next, entries[i+1:]...)
			b.subs[topic] = next
			return
		}
	}
}

// Publish delivers e to every current handler of e.Topic and returns how many ran.
// Handlers are called outside the bus lock so they may subscribe or unsubscribe.
func (b *Bus) Publish(e Event) int {
	b.mu.RLock()
	entries := b.subs[e.Topic]
	b.mu.RUnlock()

	if len(entries) == 0 {
		b.logger.Debugw("Event dropped, no subscribers", "topic", e.Topic)
		return 0
	}

	for _, en := range entries {
		en.handler(e)
	}
	return len(entries)
}

// Subscribers returns the number of handlers attached to topic
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
