package automaton

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// seedChild inserts a child directly, bypassing Spawn.
func seedChild(t *testing.T, store Store, id string, status Status) {
	t.Helper()
	err := store.InsertChild(context.Background(), ChildRecord{
		ID:        id,
		Name:      "seeded " + id,
		SandboxID: "sb-" + id,
		Status:    status,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertChild() error: %v", err)
	}
}

func statusOf(t *testing.T, store Store, id string) Status {
	t.Helper()
	c, err := store.Child(context.Background(), id)
	if err != nil {
		t.Fatalf("Child(%s) error: %v", id, err)
	}
	return c.Status
}

func TestStart(t *testing.T) {
	sb := newFakeSandbox()
	o, store := newTestOrchestrator(t, sb)
	seedChild(t, store, "c1", StatusSpawning)

	if err := o.Start(context.Background(), "c1"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if got := statusOf(t, store, "c1"); got != StatusRunning {
		t.Errorf("status = %q, want running", got)
	}
	calls := sb.Calls()
	if len(calls) != 1 || calls[0] != "exec "+DefaultCommands().Start {
		t.Errorf("calls = %q, want the start sequence", calls)
	}
}

func TestStartFailure(t *testing.T) {
	sb := newFakeSandbox()
	sb.execFn = func(string) (*ExecResult, error) {
		return nil, &ExecError{ExitCode: 1, Output: "automaton: command not found"}
	}
	o, store := newTestOrchestrator(t, sb)
	seedChild(t, store, "c1", StatusSpawning)

	err := o.Start(context.Background(), "c1")
	if !errors.Is(err, ErrProvisioningFailed) {
		t.Fatalf("Start() error = %v, want ErrProvisioningFailed", err)
	}
	if got := statusOf(t, store, "c1"); got != StatusSpawning {
		t.Errorf("status = %q, failed start must not change it", got)
	}
}

func TestStartNotFound(t *testing.T) {
	sb := newFakeSandbox()
	o, _ := newTestOrchestrator(t, sb)

	err := o.Start(context.Background(), "ghost")
	if !errors.Is(err, ErrChildNotFound) {
		t.Errorf("Start() error = %v, want ErrChildNotFound", err)
	}
	if len(sb.Calls()) != 0 {
		t.Errorf("Start() on unknown child made remote calls: %q", sb.Calls())
	}
}

func TestPoll(t *testing.T) {
	tests := []struct {
		name   string
		from   Status
		stdout string
		want   Status
	}{
		{"running", StatusSpawning, "running", StatusRunning},
		{"sleeping beats running", StatusRunning, "sleeping, not running", StatusSleeping},
		{"dead beats running", StatusRunning, "dead; last seen running", StatusDead},
		{"no token leaves status", StatusSleeping, "booting...", StatusSleeping},
		{"revives from unknown", StatusUnknown, "running", StatusRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := newFakeSandbox()
			sb.execFn = func(string) (*ExecResult, error) {
				return &ExecResult{Stdout: tt.stdout}, nil
			}
			o, store := newTestOrchestrator(t, sb)
			seedChild(t, store, "c1", tt.from)

			out, err := o.Poll(context.Background(), "c1")
			if err != nil {
				t.Fatalf("Poll() error: %v", err)
			}
			if out != tt.stdout {
				t.Errorf("Poll() = %q, want raw output %q", out, tt.stdout)
			}
			if got := statusOf(t, store, "c1"); got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPollUnreachable(t *testing.T) {
	sb := newFakeSandbox()
	sb.execFn = func(string) (*ExecResult, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	o, store := newTestOrchestrator(t, sb)
	seedChild(t, store, "c1", StatusRunning)

	out, err := o.Poll(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Poll() should recover unreachability, got %v", err)
	}
	if out != UnreachableMessage {
		t.Errorf("Poll() = %q, want %q", out, UnreachableMessage)
	}
	if got := statusOf(t, store, "c1"); got != StatusUnknown {
		t.Errorf("status = %q, want unknown", got)
	}
}

func TestPollNotFound(t *testing.T) {
	sb := newFakeSandbox()
	o, _ := newTestOrchestrator(t, sb)

	if _, err := o.Poll(context.Background(), "ghost"); !errors.Is(err, ErrChildNotFound) {
		t.Errorf("Poll() error = %v, want ErrChildNotFound", err)
	}
	if len(sb.Calls()) != 0 {
		t.Errorf("Poll() on unknown child made remote calls: %q", sb.Calls())
	}
}

func TestPollPublishesOnlyChanges(t *testing.T) {
	sb := newFakeSandbox()
	sb.execFn = func(string) (*ExecResult, error) {
		return &ExecResult{Stdout: "running"}, nil
	}
	pub := &recordingPublisher{}
	o, store := newTestOrchestrator(t, sb, WithPublisher(pub, ""))
	seedChild(t, store, "c1", StatusSpawning)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := o.Poll(ctx, "c1"); err != nil {
			t.Fatal(err)
		}
	}

	if len(pub.subjects) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.subjects))
	}
	var e Event
	if err := json.Unmarshal(pub.payloads[0], &e); err != nil {
		t.Fatal(err)
	}
	if e.Previous != StatusSpawning || e.Status != StatusRunning {
		t.Errorf("event = %+v, want spawning -> running", e)
	}
}

func TestLifecycleAfterSpawn(t *testing.T) {
	sb := newFakeSandbox()
	o, store := newTestOrchestrator(t, sb)
	ctx := context.Background()

	child, err := o.Spawn(ctx, testParent, GenesisConfig{Name: "full cycle"})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Start(ctx, child.ID); err != nil {
		t.Fatal(err)
	}

	sb.execFn = func(string) (*ExecResult, error) {
		return &ExecResult{Stdout: "dead"}, nil
	}
	if _, err := o.Poll(ctx, child.ID); err != nil {
		t.Fatal(err)
	}
	if got := statusOf(t, store, child.ID); got != StatusDead {
		t.Errorf("status = %q, want dead", got)
	}
}
