package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/conductor-hq/conductor/pkg/models"
)

const agentRunColumns = `id, task_id, goal_space_id, claude_session_id, worktree_path, branch, status,
	model, cost_usd, input_tokens, output_tokens, max_budget_usd, started_at, last_activity_at, finished_at`

// CreateAgentRun inserts a new agent run. A task may hold at most one
// live run at a time; creating a second one is rejected.
func (db *DB) CreateAgentRun(a *models.AgentRun) error {
	if a.Status == "" {
		a.Status = models.AgentStatusSpawning
	}
	if a.Model == "" {
		a.Model = models.DefaultModel
	}
	now := time.Now()
	if a.StartedAt.IsZero() {
		a.StartedAt = now
	}
	if a.LastActivityAt.IsZero() {
		a.LastActivityAt = a.StartedAt
	}

	var sessionID any
	if a.ClaudeSessionID != "" {
		sessionID = a.ClaudeSessionID
	}
	var maxBudget any
	if a.MaxBudgetUSD != nil {
		maxBudget = *a.MaxBudgetUSD
	}

	err := db.Transaction(func(tx *sql.Tx) error {
		var live int
		row := tx.QueryRow(`
			SELECT COUNT(*) FROM agent_runs
			WHERE task_id = ? AND status IN ('spawning', 'running', 'stalled')
		`, a.TaskID)
		if err := row.Scan(&live); err != nil {
			return err
		}
		if live > 0 {
			return fmt.Errorf("task %s already has a live agent run", a.TaskID)
		}

		_, err := tx.Exec(`
			INSERT INTO agent_runs (id, task_id, goal_space_id, claude_session_id, worktree_path, branch,
				status, model, cost_usd, input_tokens, output_tokens, max_budget_usd, started_at, last_activity_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.TaskID, a.GoalSpaceID, sessionID, a.WorktreePath, a.Branch,
			string(a.Status), a.Model, a.CostUSD, a.InputTokens, a.OutputTokens, maxBudget,
			formatTime(a.StartedAt), formatTime(a.LastActivityAt), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("create agent run: %w", err)
	}

	if err := db.AddGoalHistory(a.GoalSpaceID, "agent_spawned",
		fmt.Sprintf("Agent %s spawned for task %s", a.ID, a.TaskID), ""); err != nil {
		return fmt.Errorf("record agent spawn: %w", err)
	}
	return nil
}

// GetAgentRun retrieves an agent run by ID. Returns nil if not found.
func (db *DB) GetAgentRun(id string) (*models.AgentRun, error) {
	row := db.QueryRow(`SELECT `+agentRunColumns+` FROM agent_runs WHERE id = ?`, id)
	a, err := scanAgentRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent run: %w", err)
	}
	return a, nil
}

// GetAgentRunBySessionID finds the agent run with the given claude
// session ID. Returns nil if no run has reported that session.
func (db *DB) GetAgentRunBySessionID(sessionID string) (*models.AgentRun, error) {
	row := db.QueryRow(`SELECT `+agentRunColumns+` FROM agent_runs WHERE claude_session_id = ?`, sessionID)
	a, err := scanAgentRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent run by session: %w", err)
	}
	return a, nil
}

func scanAgentRun(row rowScanner) (*models.AgentRun, error) {
	var a models.AgentRun
	var sessionID sql.NullString
	var maxBudget sql.NullFloat64
	var startedAt, lastActivityAt string
	var finishedAt sql.NullString
	err := row.Scan(&a.ID, &a.TaskID, &a.GoalSpaceID, &sessionID, &a.WorktreePath, &a.Branch,
		&a.Status, &a.Model, &a.CostUSD, &a.InputTokens, &a.OutputTokens, &maxBudget,
		&startedAt, &lastActivityAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if sessionID.Valid {
		a.ClaudeSessionID = sessionID.String
	}
	if maxBudget.Valid {
		v := maxBudget.Float64
		a.MaxBudgetUSD = &v
	}
	a.StartedAt, _ = parseTime(startedAt)
	a.LastActivityAt, _ = parseTime(lastActivityAt)
	a.FinishedAt = parseNullableTime(finishedAt)
	return &a, nil
}

// ListAgentRuns lists all agent runs, newest first.
func (db *DB) ListAgentRuns() ([]models.AgentRun, error) {
	return db.listAgentRuns(`SELECT ` + agentRunColumns + ` FROM agent_runs ORDER BY started_at DESC`)
}

// ListAgentRunsByGoal lists a goal space's agent runs, newest first.
func (db *DB) ListAgentRunsByGoal(goalID string) ([]models.AgentRun, error) {
	return db.listAgentRuns(`SELECT `+agentRunColumns+` FROM agent_runs WHERE goal_space_id = ? ORDER BY started_at DESC`, goalID)
}

// ListAgentRunsByTask lists a task's agent runs, newest first.
func (db *DB) ListAgentRunsByTask(taskID string) ([]models.AgentRun, error) {
	return db.listAgentRuns(`SELECT `+agentRunColumns+` FROM agent_runs WHERE task_id = ? ORDER BY started_at DESC`, taskID)
}

// ListActiveAgentRuns lists runs that are spawning, running or stalled.
func (db *DB) ListActiveAgentRuns() ([]models.AgentRun, error) {
	return db.listAgentRuns(`
		SELECT ` + agentRunColumns + ` FROM agent_runs
		WHERE status IN ('spawning', 'running', 'stalled')
		ORDER BY started_at DESC`)
}

func (db *DB) listAgentRuns(query string, args ...any) ([]models.AgentRun, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agent runs: %w", err)
	}
	defer rows.Close()

	var runs []models.AgentRun
	for rows.Next() {
		a, err := scanAgentRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent run: %w", err)
		}
		runs = append(runs, *a)
	}
	return runs, rows.Err()
}

// UpdateAgentRunStatus sets a run's status after validating the
// transition; a terminal status never changes again. Terminal statuses
// also stamp finished_at. The read, the validation and the write share
// one transaction so racing writers cannot both validate against the
// same stale snapshot.
func (db *DB) UpdateAgentRunStatus(id string, status models.AgentStatus) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var current models.AgentStatus
		err := tx.QueryRow(`SELECT status FROM agent_runs WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("agent run not found: %s", id)
		}
		if err != nil {
			return fmt.Errorf("get agent run status: %w", err)
		}
		if err := models.ValidateAgentTransition(current, status); err != nil {
			return err
		}

		if status.Terminal() {
			_, err = tx.Exec(`
				UPDATE agent_runs SET status = ?, finished_at = ? WHERE id = ? AND status = ?
			`, string(status), formatTime(time.Now()), id, string(current))
		} else {
			_, err = tx.Exec(`
				UPDATE agent_runs SET status = ? WHERE id = ? AND status = ?
			`, string(status), id, string(current))
		}
		if err != nil {
			return fmt.Errorf("update agent run status: %w", err)
		}
		return nil
	})
}

// UpdateAgentRunCost adds a cost delta and token counts to a run and
// bumps its activity timestamp.
func (db *DB) UpdateAgentRunCost(id string, costDelta float64, inputTokens, outputTokens int64) error {
	_, err := db.Exec(`
		UPDATE agent_runs
		SET cost_usd = cost_usd + ?,
			input_tokens = input_tokens + ?,
			output_tokens = output_tokens + ?,
			last_activity_at = ?
		WHERE id = ?
	`, costDelta, inputTokens, outputTokens, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update agent run cost: %w", err)
	}
	return nil
}

// SetAgentRunCost overwrites a run's total cost and token counts,
// used when the final result reports authoritative totals.
func (db *DB) SetAgentRunCost(id string, costUSD float64, inputTokens, outputTokens int64) error {
	_, err := db.Exec(`
		UPDATE agent_runs
		SET cost_usd = ?, input_tokens = ?, output_tokens = ?, last_activity_at = ?
		WHERE id = ?
	`, costUSD, inputTokens, outputTokens, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set agent run cost: %w", err)
	}
	return nil
}

// UpdateAgentRunActivity bumps a run's last activity timestamp.
func (db *DB) UpdateAgentRunActivity(id string) error {
	_, err := db.Exec(`
		UPDATE agent_runs SET last_activity_at = ? WHERE id = ?
	`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update agent run activity: %w", err)
	}
	return nil
}

// SetAgentRunSessionID records the claude session ID reported by the
// agent process.
func (db *DB) SetAgentRunSessionID(id, sessionID string) error {
	_, err := db.Exec(`
		UPDATE agent_runs SET claude_session_id = ? WHERE id = ?
	`, sessionID, id)
	if err != nil {
		return fmt.Errorf("set agent run session id: %w", err)
	}
	return nil
}
