package serve

import (
	"time"

	"github.com/monkeygold/automaton"
)

// SpawnRequest is the body of POST /api/children.
type SpawnRequest struct {
	Name           string `json:"name"`
	GenesisPrompt  string `json:"genesis_prompt"`
	CreatorMessage string `json:"creator_message,omitempty"`
}

// MessageRequest is the body of POST /api/children/{id}/messages.
type MessageRequest struct {
	Content string `json:"content"`
}

// PollResponse carries the raw status output of a child.
type PollResponse struct {
	ID     string           `json:"id"`
	Status automaton.Status `json:"status"`
	Output string           `json:"output"`
}

// StatusResponse reports a child's status after a lifecycle call.
type StatusResponse struct {
	ID     string           `json:"id"`
	Status automaton.Status `json:"status"`
}

// LimitsResponse describes the spawn limits and whether a spawn would pass.
type LimitsResponse struct {
	MaxChildren      int    `json:"max_children"`
	LiveChildren     int    `json:"live_children"`
	MinSpawnInterval string `json:"min_spawn_interval"`
	CanSpawn         bool   `json:"can_spawn"`
	Reason           string `json:"reason,omitempty"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status string    `json:"status"`
	Uptime string    `json:"uptime"`
	Since  time.Time `json:"since"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error       string `json:"error"`
	WaitMinutes int    `json:"wait_minutes,omitempty"`
}
