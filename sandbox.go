package automaton

import (
	"context"
	"path"
	"strings"
	"time"
)

// Sandbox is the capability set the orchestrator needs from a sandbox
// provider.
type Sandbox interface {
	// CreateSandbox provisions a new sandbox and returns its identifier.
	CreateSandbox(ctx context.Context, spec SandboxSpec) (*SandboxInfo, error)

	// Exec runs a shell command inside the sandbox. A non-success exit
	// status is returned as an *ExecError carrying the output.
	Exec(ctx context.Context, sandboxID, command string, timeout time.Duration) (*ExecResult, error)

	// UploadFile writes content to path inside the sandbox. The parent
	// directory must already exist.
	UploadFile(ctx context.Context, sandboxID, path string, content []byte) error
}

// SandboxSpec sizes a new sandbox.
type SandboxSpec struct {
	Name     string
	VCPU     int
	MemoryMB int
	DiskGB   int
}

// DefaultSandboxSpec returns the fixed sizing used for every child.
func DefaultSandboxSpec(name string) SandboxSpec {
	return SandboxSpec{
		Name:     name,
		VCPU:     1,
		MemoryMB: 512,
		DiskGB:   5,
	}
}

// SandboxInfo describes a created sandbox.
type SandboxInfo struct {
	ID   string
	Name string
}

// ExecResult holds the result of a command execution.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// shellQuote single-quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// parentDir returns the directory of a sandbox path. Sandboxes are POSIX
// regardless of the host OS.
func parentDir(p string) string {
	return path.Dir(p)
}
