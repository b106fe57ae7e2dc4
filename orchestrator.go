package automaton

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default limits.
const (
	DefaultMaxChildren      = 3
	DefaultMinSpawnInterval = 10 * time.Minute
)

// UnreachableMessage is returned by Poll when the status query fails.
const UnreachableMessage = "Unable to reach child sandbox"

// Paths are the fixed locations used inside every child sandbox.
type Paths struct {
	// Config is where the genesis configuration document is written.
	Config string `yaml:"config"`

	// Constitution is where the policy document is propagated to.
	Constitution string `yaml:"constitution"`

	// Inbox is the directory messages are deposited in.
	Inbox string `yaml:"inbox"`
}

// DefaultPaths returns the standard in-sandbox layout.
func DefaultPaths() Paths {
	return Paths{
		Config:       "/root/.automaton/genesis.json",
		Constitution: "/root/.automaton/constitution.md",
		Inbox:        "/root/.automaton/inbox",
	}
}

// Commands are the shell commands executed inside a child sandbox.
type Commands struct {
	// InstallRuntime installs the base environment. Failure aborts a spawn.
	InstallRuntime string `yaml:"install_runtime"`

	// InstallOptional is best effort. Failure is logged and ignored.
	InstallOptional string `yaml:"install_optional"`

	// Start initializes, provisions and runs the child.
	Start string `yaml:"start"`

	// Status prints the child's self-reported state.
	Status string `yaml:"status"`
}

// DefaultCommands returns the standard child runtime commands.
func DefaultCommands() Commands {
	return Commands{
		InstallRuntime:  "apt-get update -qq && apt-get install -y -qq nodejs npm git curl",
		InstallOptional: "npm install -g @conway/automaton@latest 2>/dev/null || true",
		Start:           "automaton --init && automaton --provision && (systemctl start automaton 2>/dev/null || nohup automaton --run >/var/log/automaton.log 2>&1 &)",
		Status:          "automaton --status 2>/dev/null || echo unknown",
	}
}

// Timeouts bound each kind of remote call.
type Timeouts struct {
	Install time.Duration `yaml:"install"`
	File    time.Duration `yaml:"file"`
	Start   time.Duration `yaml:"start"`
	Status  time.Duration `yaml:"status"`
}

// DefaultTimeouts returns the standard remote call timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Install: 2 * time.Minute,
		File:    30 * time.Second,
		Start:   time.Minute,
		Status:  15 * time.Second,
	}
}

// Orchestrator spawns child automatons into sandboxes and drives their
// lifecycle. It holds no authoritative state: every call reads the Store.
type Orchestrator struct {
	store   Store
	sandbox Sandbox

	// Configuration
	maxChildren      int
	minSpawnInterval time.Duration
	paths            Paths
	commands         Commands
	timeouts         Timeouts
	constitutionPath string

	logger    *slog.Logger
	publisher Publisher
	subject   string
	now       func() time.Time

	// spawnMu serializes the check-then-insert window of Spawn.
	spawnMu sync.Mutex
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// NewOrchestrator creates an Orchestrator over the given store and sandbox
// provider.
func NewOrchestrator(store Store, sandbox Sandbox, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:            store,
		sandbox:          sandbox,
		maxChildren:      DefaultMaxChildren,
		minSpawnInterval: DefaultMinSpawnInterval,
		paths:            DefaultPaths(),
		commands:         DefaultCommands(),
		timeouts:         DefaultTimeouts(),
		constitutionPath: ConstitutionPath(),
		logger:           slog.Default(),
		subject:          DefaultEventSubject,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithMaxChildren sets the maximum number of live children.
func WithMaxChildren(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxChildren = n
	}
}

// WithMinSpawnInterval sets the minimum time between two spawns.
func WithMinSpawnInterval(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.minSpawnInterval = d
	}
}

// WithPaths overrides the in-sandbox file layout.
func WithPaths(p Paths) OrchestratorOption {
	return func(o *Orchestrator) {
		o.paths = p
	}
}

// WithCommands overrides the in-sandbox commands.
func WithCommands(c Commands) OrchestratorOption {
	return func(o *Orchestrator) {
		o.commands = c
	}
}

// WithTimeouts overrides the remote call timeouts.
func WithTimeouts(t Timeouts) OrchestratorOption {
	return func(o *Orchestrator) {
		o.timeouts = t
	}
}

// WithConstitution sets the local path of the policy document propagated
// to every child. A missing file is not an error.
func WithConstitution(path string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.constitutionPath = path
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPublisher enables lifecycle event publishing. Events are published
// under subject "<prefix>.<event type>".
func WithPublisher(p Publisher, prefix string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.publisher = p
		if prefix != "" {
			o.subject = prefix
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// MaxChildren returns the configured live child ceiling.
func (o *Orchestrator) MaxChildren() int {
	return o.maxChildren
}

// MinSpawnInterval returns the configured minimum spawn interval.
func (o *Orchestrator) MinSpawnInterval() time.Duration {
	return o.minSpawnInterval
}

// Children returns every persisted child.
func (o *Orchestrator) Children(ctx context.Context) ([]ChildRecord, error) {
	return o.store.Children(ctx)
}

// Child returns a persisted child by id.
func (o *Orchestrator) Child(ctx context.Context, id string) (*ChildRecord, error) {
	return o.store.Child(ctx, id)
}

// Modifications returns the audit log.
func (o *Orchestrator) Modifications(ctx context.Context) ([]ModificationRecord, error) {
	return o.store.Modifications(ctx)
}

// CanSpawn evaluates the rate limit and quota against the current store
// without side effects.
func (o *Orchestrator) CanSpawn(ctx context.Context) error {
	children, err := o.store.Children(ctx)
	if err != nil {
		return err
	}
	return o.checkLimits(children)
}

func (o *Orchestrator) checkLimits(children []ChildRecord) error {
	if err := CheckSpawnRate(children, o.minSpawnInterval, o.now()); err != nil {
		return err
	}
	return CheckQuota(children, o.maxChildren)
}

// exec runs command in a sandbox bounded by timeout.
func (o *Orchestrator) exec(ctx context.Context, sandboxID, command string, timeout time.Duration) (*ExecResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return o.sandbox.Exec(ctx, sandboxID, command, timeout)
}

// writeFile ensures the parent directory of p exists, then uploads content.
func (o *Orchestrator) writeFile(ctx context.Context, sandboxID, p string, content []byte) error {
	if _, err := o.exec(ctx, sandboxID, "mkdir -p "+shellQuote(parentDir(p)), o.timeouts.File); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeouts.File)
	defer cancel()
	return o.sandbox.UploadFile(ctx, sandboxID, p, content)
}
