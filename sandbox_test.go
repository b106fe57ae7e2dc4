package automaton

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakeSandbox records every remote call and lets tests inject failures.
type fakeSandbox struct {
	mu     sync.Mutex
	calls  []string
	specs  []SandboxSpec
	files  map[string][]byte
	nextID int

	createErr error
	// execFn, when set, decides the outcome of each Exec.
	execFn func(command string) (*ExecResult, error)
	// uploadErr fails every upload.
	uploadErr error
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{files: make(map[string][]byte)}
}

func (f *fakeSandbox) CreateSandbox(ctx context.Context, spec SandboxSpec) (*SandboxInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "create "+spec.Name)
	f.specs = append(f.specs, spec)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	return &SandboxInfo{ID: fmt.Sprintf("sb-%d", f.nextID), Name: spec.Name}, nil
}

func (f *fakeSandbox) Exec(ctx context.Context, sandboxID, command string, timeout time.Duration) (*ExecResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "exec "+command)
	fn := f.execFn
	f.mu.Unlock()

	if fn != nil {
		return fn(command)
	}
	return &ExecResult{}, nil
}

func (f *fakeSandbox) UploadFile(ctx context.Context, sandboxID, path string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "upload "+path)
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.files[sandboxID+":"+path] = content
	return nil
}

func (f *fakeSandbox) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// countPrefix counts recorded calls starting with prefix.
func (f *fakeSandbox) countPrefix(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, payload)
	return p.err
}

// fixedClock returns a controllable time source.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
