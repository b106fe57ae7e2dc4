package automaton

import (
	"regexp"
	"strings"
	"time"
)

// Status represents the lifecycle state of a child automaton.
type Status string

const (
	StatusSpawning Status = "spawning"
	StatusRunning  Status = "running"
	StatusSleeping Status = "sleeping"
	StatusDead     Status = "dead"
	StatusUnknown  Status = "unknown"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSpawning, StatusRunning, StatusSleeping, StatusDead, StatusUnknown:
		return true
	}
	return false
}

// ChildRecord is the persisted identity and provisioning state of one
// spawned child.
type ChildRecord struct {
	// ID is a UUIDv7, sortable by creation time. Immutable.
	ID string `json:"id"`

	// Name is copied from the genesis configuration.
	Name string `json:"name"`

	// Address is empty until the child completes its own key generation.
	Address string `json:"address"`

	// SandboxID identifies the sandbox hosting the child. Immutable.
	SandboxID string `json:"sandbox_id"`

	GenesisPrompt     string    `json:"genesis_prompt"`
	CreatorMessage    string    `json:"creator_message,omitempty"`
	FundedAmountCents int64     `json:"funded_amount_cents"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// ModificationRecord is an append-only audit log entry.
type ModificationRecord struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Reversible  bool      `json:"reversible"`
}

// ModificationChildSpawn is the audit type recorded for every spawn.
const ModificationChildSpawn = "child_spawn"

// GenesisConfig describes a requested child. It is consumed once by Spawn.
type GenesisConfig struct {
	Name           string `json:"name"`
	GenesisPrompt  string `json:"genesisPrompt"`
	CreatorMessage string `json:"creatorMessage,omitempty"`
}

// Identity is the spawning parent automaton.
type Identity struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// genesisDocument is written into the child sandbox at the config path.
type genesisDocument struct {
	Name           string `json:"name"`
	GenesisPrompt  string `json:"genesisPrompt"`
	CreatorMessage string `json:"creatorMessage"`
	CreatorAddress string `json:"creatorAddress"`
	ParentAddress  string `json:"parentAddress"`
}

// inboxMessage is a message deposited in a child's inbox.
type inboxMessage struct {
	From      string    `json:"from"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SandboxName derives a sandbox name from a child's display name: lower-cased
// with every whitespace run collapsed to a single hyphen.
func SandboxName(name string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}
