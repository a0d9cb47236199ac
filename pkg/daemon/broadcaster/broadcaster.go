// Package broadcaster fans daemon events (tuning publishes and signal
// changes) out to streaming API subscribers.
package broadcaster

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jamesainslie/aquire/pkg/aquire/profile"
	"github.com/jamesainslie/aquire/pkg/aquire/signals"
)

// EventType names what happened.
type EventType string

const (
	// EventTuning is a newly published tuning. Status carries the profile.
	EventTuning EventType = "tuning"
	// EventSignal is a single signal changing value.
	EventSignal EventType = "signal"
)

// ParseEventType accepts "tuning" or "signal".
func ParseEventType(s string) (EventType, bool) {
	switch EventType(s) {
	case EventTuning, EventSignal:
		return EventType(s), true
	}
	return "", false
}

// Event is delivered to subscribers.
type Event struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`

	// Set for EventTuning.
	Status *profile.Status `json:"status,omitempty"`

	// Set for EventSignal.
	Source   string `json:"source,omitempty"`
	Signal   string `json:"signal,omitempty"`
	Previous string `json:"previous,omitempty"`
	Current  string `json:"current,omitempty"`
}

// TuningEvent wraps a profile snapshot.
func TuningEvent(st profile.Status) Event {
	return Event{Type: EventTuning, At: st.UpdatedAt, Status: &st}
}

// SignalEvent wraps an observer change.
func SignalEvent(c signals.Change) Event {
	return Event{
		Type:     EventSignal,
		At:       c.At,
		Source:   c.Source,
		Signal:   string(c.Signal),
		Previous: c.Previous,
		Current:  c.Current,
	}
}

// Subscriber receives the event types it asked for.
type Subscriber struct {
	ID     string
	Types  []EventType
	Events chan Event
}

func (s *Subscriber) wants(t EventType) bool {
	return len(s.Types) == 0 || slices.Contains(s.Types, t)
}

// Broadcaster manages subscribers and distributes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a subscriber for types, or every type when none are
// given. It returns nil once the broadcaster is closed.
func (b *Broadcaster) Subscribe(types ...EventType) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:     uuid.New().String(),
		Types:  types,
		Events: make(chan Event, 100),
	}
	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Notify sends ev to every interested subscriber. Subscribers whose buffer
// is full miss the event.
func (b *Broadcaster) Notify(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.Events <- ev:
		default:
		}
	}
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
