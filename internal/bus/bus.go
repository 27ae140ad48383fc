// Package bus provides the in-process change-event feed that dependent
// views subscribe to instead of polling the store.
package bus

import (
	"sync"
	"time"
)

// Event topics published by the engine.
const (
	TopicEdgeCreated        = "edge.created"
	TopicEdgeConfirmed      = "edge.confirmed"
	TopicEdgeDeclined       = "edge.declined"
	TopicEdgeDeleted        = "edge.deleted"
	TopicInvitationMatched  = "invitation.matched"
	TopicPostCreated        = "post.created"
	TopicInteractionCreated = "interaction.created"
	TopicNudgeDue           = "nudge.due"
)

// Event is a mutation notice. Subject identifies the mutated record;
// Actors lists the persons whose views are affected.
type Event struct {
	Topic   string
	Subject string
	Actors  []string
	At      time.Time
}

// Bus fans events out to subscribers. Publish never blocks: a
// subscriber that falls behind loses events rather than stalling a
// mutation.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]subscription
}

type subscription struct {
	topics map[string]bool // nil = all topics
	ch     chan Event
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]subscription)}
}

// Subscribe registers interest in the given topics (none = all).
// The returned cancel func must be called to release the subscription.
func (b *Bus) Subscribe(topics ...string) (<-chan Event, func()) {
	var filter map[string]bool
	if len(topics) > 0 {
		filter = make(map[string]bool, len(topics))
		for _, t := range topics {
			filter[t] = true
		}
	}

	ch := make(chan Event, 64)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{topics: filter, ch: ch}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every matching subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.topics != nil && !sub.topics[ev.Topic] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Slow consumer; drop rather than block the mutation path.
		}
	}
}
