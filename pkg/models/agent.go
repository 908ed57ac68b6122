package models

import (
	"fmt"
	"time"
)

// AgentStatus represents the current state of an agent run.
type AgentStatus string

const (
	// AgentStatusSpawning indicates the worktree and process are being set up.
	AgentStatusSpawning AgentStatus = "spawning"
	// AgentStatusRunning indicates the agent process is producing events.
	AgentStatusRunning AgentStatus = "running"
	// AgentStatusStalled indicates no events have arrived within the stall window.
	AgentStatusStalled AgentStatus = "stalled"
	// AgentStatusDone indicates the agent finished successfully.
	AgentStatusDone AgentStatus = "done"
	// AgentStatusFailed indicates the agent exited without completing its task.
	AgentStatusFailed AgentStatus = "failed"
	// AgentStatusKilled indicates the agent was terminated (budget or operator).
	AgentStatusKilled AgentStatus = "killed"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusSpawning, AgentStatusRunning, AgentStatusStalled,
		AgentStatusDone, AgentStatusFailed, AgentStatusKilled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the agent run has finished.
func (s AgentStatus) Terminal() bool {
	switch s {
	case AgentStatusDone, AgentStatusFailed, AgentStatusKilled:
		return true
	default:
		return false
	}
}

// agentTransitions maps each status to the statuses it may move to.
// Identity transitions are always allowed and are not listed here.
// Terminal statuses have no exits.
var agentTransitions = map[AgentStatus][]AgentStatus{
	AgentStatusSpawning: {AgentStatusRunning, AgentStatusFailed, AgentStatusKilled},
	AgentStatusRunning:  {AgentStatusStalled, AgentStatusDone, AgentStatusFailed, AgentStatusKilled},
	AgentStatusStalled:  {AgentStatusRunning, AgentStatusDone, AgentStatusFailed, AgentStatusKilled},
}

// CanTransitionAgent reports whether a run may move from one status to
// another.
func CanTransitionAgent(from, to AgentStatus) bool {
	if from == to {
		return true
	}
	for _, next := range agentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateAgentTransition returns an error if the transition is not allowed.
func ValidateAgentTransition(from, to AgentStatus) error {
	if !CanTransitionAgent(from, to) {
		return fmt.Errorf("invalid agent status transition: %s -> %s", from, to)
	}
	return nil
}

// AgentRun records one agent subprocess working a task in its own
// worktree. A task may accumulate several runs across retries.
type AgentRun struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	GoalSpaceID string `json:"goal_space_id"`
	// ClaudeSessionID is the session identifier reported by the agent
	// process; it links Stop-hook callbacks and nudges to this run.
	ClaudeSessionID string      `json:"claude_session_id,omitempty"`
	WorktreePath    string      `json:"worktree_path"`
	Branch          string      `json:"branch"`
	Status          AgentStatus `json:"status"`
	Model           string      `json:"model"`
	CostUSD         float64     `json:"cost_usd"`
	InputTokens     int64       `json:"input_tokens"`
	OutputTokens    int64       `json:"output_tokens"`
	MaxBudgetUSD    *float64    `json:"max_budget_usd,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	LastActivityAt  time.Time   `json:"last_activity_at"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty"`
}

// AgentEvent is one persisted entry of an agent run's activity log,
// derived from the process's stream-json output.
type AgentEvent struct {
	ID           int64     `json:"id"`
	AgentRunID   string    `json:"agent_run_id"`
	EventType    string    `json:"event_type"`
	ToolName     string    `json:"tool_name,omitempty"`
	Summary      string    `json:"summary"`
	RawJSON      string    `json:"raw_json,omitempty"`
	CostDeltaUSD float64   `json:"cost_delta_usd"`
	CreatedAt    time.Time `json:"created_at"`
}
