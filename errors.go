package automaton

import (
	"errors"
	"fmt"
	"time"
)

// Standard errors.
var (
	ErrRateLimited        = errors.New("spawn rate limited")
	ErrQuotaExceeded      = errors.New("maximum number of children reached")
	ErrChildNotFound      = errors.New("child not found")
	ErrProvisioningFailed = errors.New("provisioning failed")
	ErrUnreachable        = errors.New("child sandbox unreachable")
	ErrInvalidInput       = errors.New("invalid input")
)

// RateLimitError is returned when a spawn is attempted before the minimum
// spawn interval has elapsed since the most recent child was created.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: wait %d minute(s) before spawning again", ErrRateLimited, e.WaitMinutes())
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// WaitMinutes returns Wait rounded up to whole minutes.
func (e *RateLimitError) WaitMinutes() int {
	if e.Wait <= 0 {
		return 0
	}
	m := int(e.Wait / time.Minute)
	if e.Wait%time.Minute != 0 {
		m++
	}
	return m
}

// QuotaError is returned when the live (non-dead) child count has reached
// the configured maximum.
type QuotaError struct {
	Max int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s (%d)", ErrQuotaExceeded, e.Max)
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// ChildError wraps an error with the child and the operation that failed.
type ChildError struct {
	ChildID string
	Op      string
	Err     error
}

func (e *ChildError) Error() string {
	if e.ChildID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("child %s: %s: %v", e.ChildID, e.Op, e.Err)
}

func (e *ChildError) Unwrap() error {
	return e.Err
}

// ExecError is returned by a Sandbox when a remote command completes with a
// non-success status. Output carries the response body.
type ExecError struct {
	SandboxID string
	Command   string
	ExitCode  int
	Output    string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec in sandbox %s exited %d: %s", e.SandboxID, e.ExitCode, e.Output)
}

// provisioningError marks err as a provisioning failure of op on childID.
func provisioningError(childID, op string, err error) error {
	return &ChildError{
		ChildID: childID,
		Op:      op,
		Err:     fmt.Errorf("%w: %w", ErrProvisioningFailed, err),
	}
}
