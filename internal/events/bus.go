package events

import (
	"sync"
	"sync/atomic"
)

// Publisher accepts events. Components that publish take a Publisher and
// fall back to Discard when none is configured.
type Publisher interface {
	Emit(event Event)
}

type discard struct{}

func (discard) Emit(Event) {}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

// DefaultBufferSize is used when Subscribe is given a non-positive size.
const DefaultBufferSize = 256

type subscriber struct {
	ch     chan Event
	topics map[string]bool // nil means every topic
}

func (s *subscriber) wants(topic string) bool {
	return s.topics == nil || s.topics[topic]
}

// EventBus fans events out to subscribers. Emit never blocks; an event is
// dropped for any subscriber whose buffer is full.
type EventBus struct {
	mu      sync.RWMutex
	subs    []*subscriber
	closed  bool
	dropped atomic.Int64
}

var _ Publisher = (*EventBus)(nil)

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe returns a channel receiving events on the given topics, or on
// every topic when none are given. The channel is closed by Close.
func (b *EventBus) Subscribe(bufSize int, topics ...string) <-chan Event {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	sub := &subscriber{ch: make(chan Event, bufSize)}
	if len(topics) > 0 {
		sub.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subs = append(b.subs, sub)
	return sub.ch
}

// Emit delivers event to every subscriber of its topic.
func (b *EventBus) Emit(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	topic := event.Topic()
	for _, sub := range b.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later Emit calls are ignored and
// later subscriptions receive an already-closed channel. Safe to call more
// than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
