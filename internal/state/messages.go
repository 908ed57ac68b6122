package state

import (
	"fmt"
	"time"

	"github.com/conductor-hq/conductor/pkg/models"
)

// AddGoalMessage appends a chat message to a goal space's transcript.
func (db *DB) AddGoalMessage(m *models.GoalMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.MessageType == "" {
		m.MessageType = "text"
	}
	if m.Metadata == "" {
		m.Metadata = "{}"
	}

	_, err := db.Exec(`
		INSERT INTO goal_messages (id, goal_space_id, role, content, message_type, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.GoalSpaceID, m.Role, m.Content, m.MessageType, m.Metadata, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("add goal message: %w", err)
	}
	return nil
}

// ListGoalMessages returns the newest limit messages of a goal space
// in chronological order. A limit of 0 returns all messages.
func (db *DB) ListGoalMessages(goalID string, limit int) ([]models.GoalMessage, error) {
	query := `
		SELECT id, goal_space_id, role, content, message_type, metadata_json, created_at
		FROM goal_messages WHERE goal_space_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{goalID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goal messages: %w", err)
	}
	defer rows.Close()

	var messages []models.GoalMessage
	for rows.Next() {
		var m models.GoalMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.GoalSpaceID, &m.Role, &m.Content, &m.MessageType, &m.Metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan goal message: %w", err)
		}
		m.CreatedAt, _ = parseTime(createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
