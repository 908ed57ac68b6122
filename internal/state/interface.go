// Package state provides SQLite-based persistence for Conductor.
package state

import (
	"io"

	"github.com/conductor-hq/conductor/pkg/models"
)

// GoalStore handles goal-space persistence operations.
type GoalStore interface {
	CreateGoalSpace(g *models.GoalSpace) error
	GetGoalSpace(id string) (*models.GoalSpace, error)
	ListGoalSpaces() ([]models.GoalSpace, error)
	UpdateGoalSpaceStatus(id string, status models.GoalStatus) error
	ArchiveGoalSpace(id string) error
	MarkGoalCompletedIfAllTasksDone(goalID string) (bool, error)
	GoalSummary(goalID string) (*models.GoalSummary, error)
}

// TaskStore handles task persistence operations.
type TaskStore interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	ListTasks(goalID string) ([]models.Task, error)
	UpdateTask(t *models.Task) error
	UpdateTaskStatus(id string, status models.TaskStatus) error
	GetUnblockedTasks(goalID string) ([]models.Task, error)
	RetryFailedTasks(goalID string) (int, error)
}

// AgentRunStore handles agent-run persistence operations.
type AgentRunStore interface {
	CreateAgentRun(a *models.AgentRun) error
	GetAgentRun(id string) (*models.AgentRun, error)
	GetAgentRunBySessionID(sessionID string) (*models.AgentRun, error)
	ListAgentRunsByGoal(goalID string) ([]models.AgentRun, error)
	ListActiveAgentRuns() ([]models.AgentRun, error)
	UpdateAgentRunStatus(id string, status models.AgentStatus) error
	UpdateAgentRunCost(id string, costDelta float64, inputTokens, outputTokens int64) error
	UpdateAgentRunActivity(id string) error
	SetAgentRunSessionID(id, sessionID string) error
}

// EventStore handles agent event-log persistence.
type EventStore interface {
	AddAgentEvent(e *models.AgentEvent) error
	ListAgentEvents(runID string, limit int) ([]models.AgentEvent, error)
}

// HistoryStore handles goal audit-log persistence.
type HistoryStore interface {
	AddGoalHistory(goalID, eventType, description, metadata string) error
	ListGoalHistory(goalID string) ([]models.GoalHistory, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for Conductor persistence. It composes
// focused sub-interfaces so consumers can depend on just what they use.
type Store interface {
	io.Closer
	Migrator
	GoalStore
	TaskStore
	AgentRunStore
	EventStore
	HistoryStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store         = (*DB)(nil)
	_ Migrator      = (*DB)(nil)
	_ GoalStore     = (*DB)(nil)
	_ TaskStore     = (*DB)(nil)
	_ AgentRunStore = (*DB)(nil)
	_ EventStore    = (*DB)(nil)
	_ HistoryStore  = (*DB)(nil)
)
