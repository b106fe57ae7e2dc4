package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/monkeygold/automaton"
)

// stubSandbox accepts every call. statusOutput is returned for status polls.
type stubSandbox struct {
	mu           sync.Mutex
	next         int
	createErr    error
	statusOutput string
}

func (s *stubSandbox) CreateSandbox(ctx context.Context, spec automaton.SandboxSpec) (*automaton.SandboxInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.next++
	return &automaton.SandboxInfo{ID: fmt.Sprintf("sb-%d", s.next), Name: spec.Name}, nil
}

func (s *stubSandbox) Exec(ctx context.Context, sandboxID, command string, timeout time.Duration) (*automaton.ExecResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if command == automaton.DefaultCommands().Status {
		return &automaton.ExecResult{Stdout: s.statusOutput}, nil
	}
	return &automaton.ExecResult{}, nil
}

func (s *stubSandbox) UploadFile(ctx context.Context, sandboxID, path string, content []byte) error {
	return ctx.Err()
}

func newTestServer(t *testing.T, sb *stubSandbox, opts ...automaton.OrchestratorOption) (*Server, *EventBroker) {
	t.Helper()
	broker := NewEventBroker()
	base := []automaton.OrchestratorOption{
		automaton.WithConstitution(filepath.Join(t.TempDir(), "absent.md")),
		automaton.WithMinSpawnInterval(0),
		automaton.WithPublisher(broker, automaton.DefaultEventSubject),
	}
	orch := automaton.NewOrchestrator(automaton.NewMemoryStore(), sb, append(base, opts...)...)
	return New(orch, broker, Config{Parent: automaton.Identity{Name: "mother", Address: "0xparent"}}), broker
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSpawnAndList(t *testing.T) {
	s, _ := newTestServer(t, &stubSandbox{})
	h := s.Handler()

	rec := do(t, h, "POST", "/api/children", `{"name":"Worker One","genesis_prompt":"earn"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("spawn status = %d, body %s", rec.Code, rec.Body)
	}
	child := decode[automaton.ChildRecord](t, rec)
	if child.Name != "Worker One" || child.Status != automaton.StatusSpawning || child.SandboxID != "sb-1" {
		t.Errorf("child = %+v", child)
	}

	list := decode[[]automaton.ChildRecord](t, do(t, h, "GET", "/api/children", ""))
	if len(list) != 1 || list[0].ID != child.ID {
		t.Errorf("list = %+v", list)
	}

	got := decode[automaton.ChildRecord](t, do(t, h, "GET", "/api/children/"+child.ID, ""))
	if got.ID != child.ID {
		t.Errorf("get = %+v", got)
	}

	mods := decode[[]automaton.ModificationRecord](t, do(t, h, "GET", "/api/modifications", ""))
	if len(mods) != 1 || mods[0].Type != automaton.ModificationChildSpawn {
		t.Errorf("modifications = %+v", mods)
	}
}

func TestEmptyListsAreArrays(t *testing.T) {
	s, _ := newTestServer(t, &stubSandbox{})
	h := s.Handler()

	for _, target := range []string{"/api/children", "/api/modifications"} {
		rec := do(t, h, "GET", target, "")
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("GET %s = %q, want []", target, rec.Body)
		}
	}
}

func TestSpawnErrors(t *testing.T) {
	tests := []struct {
		name   string
		sb     *stubSandbox
		opts   []automaton.OrchestratorOption
		body   string
		second bool
		want   int
	}{
		{
			name: "missing name",
			sb:   &stubSandbox{},
			body: `{"genesis_prompt":"earn"}`,
			want: http.StatusBadRequest,
		},
		{
			name: "malformed body",
			sb:   &stubSandbox{},
			body: `{"name":`,
			want: http.StatusBadRequest,
		},
		{
			name: "unknown field",
			sb:   &stubSandbox{},
			body: `{"name":"a","budget":10}`,
			want: http.StatusBadRequest,
		},
		{
			name: "sandbox create fails",
			sb:   &stubSandbox{createErr: errors.New("no capacity")},
			body: `{"name":"a"}`,
			want: http.StatusBadGateway,
		},
		{
			name:   "quota",
			sb:     &stubSandbox{},
			opts:   []automaton.OrchestratorOption{automaton.WithMaxChildren(1)},
			body:   `{"name":"a"}`,
			second: true,
			want:   http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.sb, tt.opts...)
			h := s.Handler()

			if tt.second {
				if rec := do(t, h, "POST", "/api/children", tt.body); rec.Code != http.StatusCreated {
					t.Fatalf("first spawn status = %d", rec.Code)
				}
			}
			rec := do(t, h, "POST", "/api/children", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
			if resp := decode[ErrorResponse](t, rec); resp.Error == "" {
				t.Error("error body has no message")
			}
		})
	}
}

func TestSpawnRateLimited(t *testing.T) {
	s, _ := newTestServer(t, &stubSandbox{}, automaton.WithMinSpawnInterval(10*time.Minute))
	h := s.Handler()

	if rec := do(t, h, "POST", "/api/children", `{"name":"a"}`); rec.Code != http.StatusCreated {
		t.Fatalf("first spawn status = %d", rec.Code)
	}

	rec := do(t, h, "POST", "/api/children", `{"name":"b"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.WaitMinutes != 10 {
		t.Errorf("wait_minutes = %d, want 10", resp.WaitMinutes)
	}
	if got := rec.Header().Get("Retry-After"); got != "600" {
		t.Errorf("Retry-After = %q, want 600", got)
	}

	limits := decode[LimitsResponse](t, do(t, h, "GET", "/api/limits", ""))
	if limits.CanSpawn || limits.LiveChildren != 1 || limits.MaxChildren != automaton.DefaultMaxChildren {
		t.Errorf("limits = %+v", limits)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	sb := &stubSandbox{statusOutput: "state: sleeping\n"}
	s, _ := newTestServer(t, sb)
	h := s.Handler()

	child := decode[automaton.ChildRecord](t, do(t, h, "POST", "/api/children", `{"name":"a"}`))

	rec := do(t, h, "POST", "/api/children/"+child.ID+"/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	if st := decode[StatusResponse](t, rec); st.Status != automaton.StatusRunning {
		t.Errorf("start status = %q", st.Status)
	}

	poll := decode[PollResponse](t, do(t, h, "POST", "/api/children/"+child.ID+"/poll", ""))
	if poll.Status != automaton.StatusSleeping || poll.Output != "state: sleeping\n" {
		t.Errorf("poll = %+v", poll)
	}

	if rec := do(t, h, "POST", "/api/children/"+child.ID+"/messages", `{"content":"hi"}`); rec.Code != http.StatusAccepted {
		t.Errorf("send status = %d", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/children/"+child.ID+"/messages", `{"content":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty send status = %d", rec.Code)
	}
}

func TestSpawnAndStartSurviveClientDisconnect(t *testing.T) {
	s, _ := newTestServer(t, &stubSandbox{})
	h := s.Handler()

	gone := func(method, target, body string) *httptest.ResponseRecorder {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(method, target, r).WithContext(ctx)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := gone("POST", "/api/children", `{"name":"orphan"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("spawn status = %d, body %s", rec.Code, rec.Body)
	}
	child := decode[automaton.ChildRecord](t, rec)
	if child.Status != automaton.StatusSpawning {
		t.Errorf("spawned status = %q", child.Status)
	}

	if rec := gone("POST", "/api/children/"+child.ID+"/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}

	got := decode[automaton.ChildRecord](t, do(t, h, "GET", "/api/children/"+child.ID, ""))
	if got.Status != automaton.StatusRunning {
		t.Errorf("stored status = %q, want %q", got.Status, automaton.StatusRunning)
	}
}

func TestUnknownChild(t *testing.T) {
	s, _ := newTestServer(t, &stubSandbox{})
	h := s.Handler()

	for _, c := range []struct{ method, path, body string }{
		{"GET", "/api/children/ghost", ""},
		{"POST", "/api/children/ghost/start", ""},
		{"POST", "/api/children/ghost/poll", ""},
		{"POST", "/api/children/ghost/messages", `{"content":"hi"}`},
	} {
		if rec := do(t, h, c.method, c.path, c.body); rec.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", c.method, c.path, rec.Code)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, &stubSandbox{})
	h := s.Handler()

	if health := decode[HealthResponse](t, do(t, h, "GET", "/api/health", "")); health.Status != "ok" {
		t.Errorf("health = %+v", health)
	}

	do(t, h, "POST", "/api/children", `{"name":"a"}`)
	rec := do(t, h, "GET", "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "automaton_spawns_total") {
		t.Errorf("metrics status = %d, missing spawn counter", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&automaton.RateLimitError{Wait: time.Minute}, http.StatusTooManyRequests},
		{&automaton.QuotaError{Max: 3}, http.StatusConflict},
		{&automaton.ChildError{ChildID: "x", Op: "start", Err: automaton.ErrChildNotFound}, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", automaton.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: boom", automaton.ErrProvisioningFailed), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestEventStream(t *testing.T) {
	s, _ := newTestServer(t, &stubSandbox{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	lines := bufio.NewReader(resp.Body)
	if first, _ := lines.ReadString('\n'); first != ": connected\n" {
		t.Fatalf("first line = %q", first)
	}

	spawn, err := http.Post(ts.URL+"/api/children", "application/json", strings.NewReader(`{"name":"a"}`))
	if err != nil {
		t.Fatal(err)
	}
	spawn.Body.Close()

	for {
		line, err := lines.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before the spawn event: %v", err)
		}
		if strings.HasPrefix(line, "event: ") {
			if got := strings.TrimSpace(strings.TrimPrefix(line, "event: ")); got != "automaton.child.spawned" {
				t.Errorf("event = %q", got)
			}
			return
		}
	}
}
