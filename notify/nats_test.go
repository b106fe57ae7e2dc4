package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/monkeygold/automaton"
)

var (
	_ automaton.Publisher = (*Publisher)(nil)
	_ automaton.Publisher = (*Webhook)(nil)
)

func TestPublishWithoutConnection(t *testing.T) {
	p := &Publisher{}
	err := p.Publish(context.Background(), "automaton.child.spawned", []byte("{}"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	p := &Publisher{}
	p.Close()
}

func TestNewPublisherBadURL(t *testing.T) {
	if _, err := NewPublisher("nats://127.0.0.1:1", nil); err == nil {
		t.Error("NewPublisher() to a closed port should fail")
	}
}
