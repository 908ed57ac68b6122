package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/conductor-hq/conductor/pkg/models"
)

// AddGoalHistory appends an entry to a goal space's audit log.
func (db *DB) AddGoalHistory(goalID, eventType, description, metadata string) error {
	var meta any
	if metadata != "" {
		meta = metadata
	}
	_, err := db.Exec(`
		INSERT INTO goal_space_history (goal_space_id, event_type, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, goalID, eventType, description, meta, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("add goal history: %w", err)
	}
	return nil
}

// ListGoalHistory returns a goal space's audit log, oldest first.
func (db *DB) ListGoalHistory(goalID string) ([]models.GoalHistory, error) {
	rows, err := db.Query(`
		SELECT id, goal_space_id, event_type, description, metadata, created_at
		FROM goal_space_history WHERE goal_space_id = ? ORDER BY id ASC
	`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list goal history: %w", err)
	}
	defer rows.Close()

	var entries []models.GoalHistory
	for rows.Next() {
		var h models.GoalHistory
		var metadata sql.NullString
		var createdAt string
		if err := rows.Scan(&h.ID, &h.GoalSpaceID, &h.EventType, &h.Description, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan goal history: %w", err)
		}
		h.Metadata = metadata.String
		h.CreatedAt, _ = parseTime(createdAt)
		entries = append(entries, h)
	}
	return entries, rows.Err()
}
