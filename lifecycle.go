package automaton

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Start issues the initialize/provision/run sequence inside the child's
// sandbox and marks the child running on success.
func (o *Orchestrator) Start(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "automaton.Start", trace.WithAttributes(attribute.String("child.id", id)))
	defer span.End()

	child, err := o.store.Child(ctx, id)
	if err != nil {
		return &ChildError{ChildID: id, Op: "start", Err: err}
	}

	if _, err := o.exec(ctx, child.SandboxID, o.commands.Start, o.timeouts.Start); err != nil {
		span.RecordError(err)
		return provisioningError(id, "start", err)
	}

	if err := o.setStatus(ctx, child, StatusRunning); err != nil {
		return err
	}
	o.logger.Info("child started", "child", id, "sandbox", child.SandboxID)
	return nil
}

// Poll queries the child's self-reported status and persists whatever it
// implies. The raw output is returned even when no status token is found.
// An unreachable sandbox is not an error: the child is marked unknown and
// UnreachableMessage is returned.
func (o *Orchestrator) Poll(ctx context.Context, id string) (string, error) {
	ctx, span := tracer.Start(ctx, "automaton.Poll", trace.WithAttributes(attribute.String("child.id", id)))
	defer span.End()

	child, err := o.store.Child(ctx, id)
	if err != nil {
		return "", &ChildError{ChildID: id, Op: "poll", Err: err}
	}

	res, err := o.exec(ctx, child.SandboxID, o.commands.Status, o.timeouts.Status)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUnreachable, err)
		o.logger.Warn("child unreachable", "child", id, "sandbox", child.SandboxID, "error", err)
		span.RecordError(err)
		if err := o.setStatus(ctx, child, StatusUnknown); err != nil {
			return "", err
		}
		pollsTotal.WithLabelValues(string(StatusUnknown)).Inc()
		return UnreachableMessage, nil
	}

	status, ok := ParseStatus(res.Stdout)
	if !ok {
		pollsTotal.WithLabelValues("unchanged").Inc()
		return res.Stdout, nil
	}
	if err := o.setStatus(ctx, child, status); err != nil {
		return "", err
	}
	pollsTotal.WithLabelValues(string(status)).Inc()
	return res.Stdout, nil
}

// setStatus persists a status transition and announces it when it changes.
func (o *Orchestrator) setStatus(ctx context.Context, child *ChildRecord, status Status) error {
	if err := o.store.UpdateChildStatus(ctx, child.ID, status); err != nil {
		return &ChildError{ChildID: child.ID, Op: "update status", Err: err}
	}
	if child.Status == status {
		return nil
	}

	o.logger.Debug("child status changed", "child", child.ID, "from", child.Status, "to", status)
	o.emit(ctx, Event{
		Type:      EventStatus,
		ChildID:   child.ID,
		Name:      child.Name,
		SandboxID: child.SandboxID,
		Status:    status,
		Previous:  child.Status,
	})
	child.Status = status
	return nil
}
