// Package bus provides in-process broadcast of orchestration events to
// SSE subscribers.
package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/conductor-hq/conductor/pkg/models"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind starts losing events rather than blocking
// publishers.
const subscriberBuffer = 1024

// Event is one broadcast message. Exactly one implementation exists per
// event kind; the kind doubles as the SSE event name.
type Event interface {
	Kind() string
}

// AgentEvent announces a newly stored agent event.
type AgentEvent struct {
	AgentRunID string             `json:"agent_run_id"`
	Event      *models.AgentEvent `json:"event"`
}

// Kind implements Event.
func (AgentEvent) Kind() string { return "agent_event" }

// OperationUpdate reports progress of a long-running background
// operation such as decomposition or dispatch.
type OperationUpdate struct {
	OperationID   string `json:"operation_id"`
	GoalSpaceID   string `json:"goal_space_id"`
	OperationType string `json:"operation_type"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	Result        any    `json:"result,omitempty"`
}

// Kind implements Event.
func (OperationUpdate) Kind() string { return "operation_update" }

// ChatChunk carries one streamed fragment of a chat response.
type ChatChunk struct {
	OperationID string `json:"operation_id"`
	GoalSpaceID string `json:"goal_space_id"`
	Chunk       string `json:"chunk"`
	Done        bool   `json:"done"`
}

// Kind implements Event.
func (ChatChunk) Kind() string { return "chat_chunk" }

// Subscription is one subscriber's view of the bus. Events arrive on C
// until Unsubscribe is called with the subscription's ID.
type Subscription struct {
	ID string
	C  <-chan Event

	ch chan Event
}

// Bus fans events out to all current subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Subscribe registers a new subscriber and returns its subscription.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{
		ID: uuid.New().String(),
		C:  ch,
		ch: ch,
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Unknown
// IDs are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// Publish delivers the event to every subscriber that has buffer space.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
