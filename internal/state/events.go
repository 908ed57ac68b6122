package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/conductor-hq/conductor/pkg/models"
)

// AddAgentEvent appends an event to an agent run's activity log and
// fills in the generated ID and timestamp.
func (db *DB) AddAgentEvent(e *models.AgentEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var toolName any
	if e.ToolName != "" {
		toolName = e.ToolName
	}
	var rawJSON any
	if e.RawJSON != "" {
		rawJSON = e.RawJSON
	}

	res, err := db.Exec(`
		INSERT INTO agent_events (agent_run_id, event_type, tool_name, summary, raw_json, cost_delta_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.AgentRunID, e.EventType, toolName, e.Summary, rawJSON, e.CostDeltaUSD, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("add agent event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get event id: %w", err)
	}
	e.ID = id
	return nil
}

// ListAgentEvents returns the newest limit events of an agent run in
// chronological order. A limit of 0 returns all events.
func (db *DB) ListAgentEvents(runID string, limit int) ([]models.AgentEvent, error) {
	query := `
		SELECT id, agent_run_id, event_type, tool_name, summary, raw_json, cost_delta_usd, created_at
		FROM agent_events WHERE agent_run_id = ? ORDER BY id DESC`
	args := []any{runID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agent events: %w", err)
	}
	defer rows.Close()

	var events []models.AgentEvent
	for rows.Next() {
		var e models.AgentEvent
		var toolName, rawJSON, createdAt sql.NullString
		if err := rows.Scan(&e.ID, &e.AgentRunID, &e.EventType, &toolName, &e.Summary,
			&rawJSON, &e.CostDeltaUSD, &createdAt); err != nil {
			return nil, fmt.Errorf("scan agent event: %w", err)
		}
		e.ToolName = toolName.String
		e.RawJSON = rawJSON.String
		e.CreatedAt, _ = parseTime(createdAt.String)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; present oldest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}
