package serve

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/monkeygold/automaton"
)

const maxSubscribers = 50

var _ automaton.Publisher = (*EventBroker)(nil)

// BrokerEvent is one lifecycle event as published by the orchestrator.
type BrokerEvent struct {
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

// EventBroker fans out orchestrator events to SSE subscribers. It satisfies
// automaton.Publisher so it can be installed next to the NATS publisher.
type EventBroker struct {
	subscribers map[chan BrokerEvent]struct{}
	mu          sync.RWMutex
}

// NewEventBroker creates a new broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		subscribers: make(map[chan BrokerEvent]struct{}),
	}
}

// Subscribe returns a channel that receives events, or nil when the
// subscriber limit is reached. The caller must call Unsubscribe when done.
func (b *EventBroker) Subscribe() chan BrokerEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subscribers) >= maxSubscribers {
		return nil
	}

	ch := make(chan BrokerEvent, 64)
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber channel.
func (b *EventBroker) Unsubscribe(ch chan BrokerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Close closes all subscriber channels, causing SSE handlers to exit.
func (b *EventBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}

// Publish sends an event to all subscribers. A subscriber whose buffer is
// full misses the event.
func (b *EventBroker) Publish(ctx context.Context, subject string, payload []byte) error {
	event := BrokerEvent{Subject: subject, Data: append(json.RawMessage(nil), payload...)}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}
