package state

import (
	"fmt"

	"github.com/conductor-hq/conductor/pkg/models"
)

// Stats returns the fleet-wide snapshot: live agents, total spend, and
// task and goal counts.
func (db *DB) Stats() (*models.Stats, error) {
	var s models.Stats

	row := db.QueryRow(`
		SELECT COUNT(*) FROM agent_runs WHERE status IN ('spawning', 'running', 'stalled')
	`)
	if err := row.Scan(&s.ActiveAgents); err != nil {
		return nil, fmt.Errorf("count active agents: %w", err)
	}

	row = db.QueryRow(`SELECT COALESCE(SUM(cost_usd), 0) FROM agent_runs`)
	if err := row.Scan(&s.TotalCostUSD); err != nil {
		return nil, fmt.Errorf("sum cost: %w", err)
	}

	row = db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE status = 'done'`)
	if err := row.Scan(&s.TasksCompleted); err != nil {
		return nil, fmt.Errorf("count completed tasks: %w", err)
	}

	row = db.QueryRow(`SELECT COUNT(*) FROM tasks`)
	if err := row.Scan(&s.TasksTotal); err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	row = db.QueryRow(`SELECT COUNT(*) FROM goal_spaces WHERE status = 'active'`)
	if err := row.Scan(&s.GoalsActive); err != nil {
		return nil, fmt.Errorf("count active goals: %w", err)
	}

	return &s, nil
}
