package models

import "time"

// GoalStatus represents the lifecycle state of a goal space.
type GoalStatus string

const (
	// GoalStatusActive indicates the goal space is accepting work.
	GoalStatusActive GoalStatus = "active"
	// GoalStatusCompleted indicates every task in the goal space is done.
	GoalStatusCompleted GoalStatus = "completed"
	// GoalStatusArchived indicates the goal space was soft-deleted.
	GoalStatusArchived GoalStatus = "archived"
)

// Valid returns true if the status is a known value.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalStatusActive, GoalStatusCompleted, GoalStatusArchived:
		return true
	default:
		return false
	}
}

// GoalSpace is a high-level goal bound to one git repository. Tasks
// belonging to the goal space form a dependency DAG and are worked on
// by agents in isolated worktrees of that repository.
type GoalSpace struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      GoalStatus `json:"status"`
	// RepoPath is the absolute path to the git repository agents work in.
	RepoPath  string    `json:"repo_path"`
	ProjectID string    `json:"project_id,omitempty"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GoalHistory is an append-only audit record of notable goal-space
// events (creation, task additions, agent spawns, completions).
type GoalHistory struct {
	ID          int64     `json:"id"`
	GoalSpaceID string    `json:"goal_space_id"`
	EventType   string    `json:"event_type"`
	Description string    `json:"description"`
	Metadata    string    `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// GoalMessage is one turn of the goal chat transcript.
type GoalMessage struct {
	ID          string    `json:"id"`
	GoalSpaceID string    `json:"goal_space_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	Metadata    string    `json:"metadata_json,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Project groups goal spaces that share a repository path.
type Project struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	DisplayName string    `json:"display_name"`
	SortOrder   int       `json:"sort_order"`
	Settings    string    `json:"settings"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stats is the fleet-wide snapshot served by the stats endpoint.
type Stats struct {
	ActiveAgents   int     `json:"active_agents"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	TasksCompleted int     `json:"tasks_completed"`
	TasksTotal     int     `json:"tasks_total"`
	GoalsActive    int     `json:"goals_active"`
}

// GoalSummary counts a goal space's tasks by status.
type GoalSummary struct {
	GoalSpaceID string         `json:"goal_space_id"`
	TaskCounts  map[string]int `json:"task_counts"`
	TasksTotal  int            `json:"tasks_total"`
}
