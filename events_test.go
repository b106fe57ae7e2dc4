package automaton

import (
	"context"
	"errors"
	"testing"
)

func TestPublishersFanOut(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("bus down")}
	c := &recordingPublisher{}

	err := Publishers{a, b, c}.Publish(context.Background(), "automaton.child.spawned", []byte(`{}`))
	if err == nil || err.Error() != "bus down" {
		t.Errorf("Publish() error = %v, want the failing publisher's error", err)
	}
	for i, p := range []*recordingPublisher{a, b, c} {
		if len(p.subjects) != 1 {
			t.Errorf("publisher %d got %d events, want 1", i, len(p.subjects))
		}
	}
}

func TestPublishersEmpty(t *testing.T) {
	if err := (Publishers{}).Publish(context.Background(), "x", nil); err != nil {
		t.Errorf("Publish() = %v", err)
	}
}
