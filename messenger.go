package automaton

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/google/uuid"
)

// MessageSender is the sender tag on messages from a parent.
const MessageSender = "parent"

// Send deposits a message in the child's inbox. Delivery is fire-and-forget:
// success means the file was written, not that the child has read it.
func (o *Orchestrator) Send(ctx context.Context, id, content string) (err error) {
	defer func() { messagesTotal.WithLabelValues(outcome(err)).Inc() }()

	child, err := o.store.Child(ctx, id)
	if err != nil {
		return &ChildError{ChildID: id, Op: "send", Err: err}
	}

	now := o.now()
	data, err := json.Marshal(inboxMessage{
		From:      MessageSender,
		Content:   content,
		Timestamp: now,
	})
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%d-%s.json", now.UnixNano(), uuid.NewString())
	p := path.Join(o.paths.Inbox, name)
	if err := o.writeFile(ctx, child.SandboxID, p, data); err != nil {
		return &ChildError{ChildID: id, Op: "send", Err: err}
	}

	o.logger.Debug("message delivered", "child", id, "path", p)
	o.emit(ctx, Event{Type: EventMessage, ChildID: id, Name: child.Name, SandboxID: child.SandboxID})
	return nil
}
