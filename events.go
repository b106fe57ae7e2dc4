package automaton

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// DefaultEventSubject prefixes every published lifecycle event.
const DefaultEventSubject = "automaton.child"

// Publisher delivers lifecycle events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Event represents a child lifecycle event.
type Event struct {
	Type      EventType `json:"type"`
	ChildID   string    `json:"child_id"`
	Name      string    `json:"name,omitempty"`
	SandboxID string    `json:"sandbox_id,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Previous  Status    `json:"previous,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType identifies the kind of event.
type EventType string

const (
	EventSpawned EventType = "spawned"
	EventStatus  EventType = "status"
	EventMessage EventType = "message"
)

// emit publishes e if a publisher is configured. Failures are logged only.
func (o *Orchestrator) emit(ctx context.Context, e Event) {
	if o.publisher == nil {
		return
	}
	e.Timestamp = o.now()

	data, err := json.Marshal(e)
	if err != nil {
		o.logger.Warn("event encode failed", "type", e.Type, "child", e.ChildID, "error", err)
		return
	}

	subject := o.subject + "." + string(e.Type)
	if err := o.publisher.Publish(ctx, subject, data); err != nil {
		o.logger.Warn("event publish failed", "subject", subject, "child", e.ChildID, "error", err)
	}
}

// Publishers fans every event out to each publisher in order.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, subject string, payload []byte) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, subject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
