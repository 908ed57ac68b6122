package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/conductor-hq/conductor/pkg/models"
)

const goalSpaceColumns = `id, name, description, status, repo_path, settings, project_id, created_at, updated_at`

// CreateGoalSpace inserts a new goal space and records a "created"
// history entry.
func (db *DB) CreateGoalSpace(g *models.GoalSpace) error {
	if g.Status == "" {
		g.Status = models.GoalStatusActive
	}
	now := time.Now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	settings, err := json.Marshal(g.Settings)
	if err != nil {
		return fmt.Errorf("marshal goal settings: %w", err)
	}

	var projectID any
	if g.ProjectID != "" {
		projectID = g.ProjectID
	}

	_, err = db.Exec(`
		INSERT INTO goal_spaces (id, name, description, status, repo_path, settings, project_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.Name, g.Description, string(g.Status), g.RepoPath, string(settings), projectID,
		formatTime(g.CreatedAt), formatTime(g.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create goal space: %w", err)
	}

	return db.AddGoalHistory(g.ID, "created", fmt.Sprintf("Goal space '%s' created", g.Name), "")
}

// GetGoalSpace retrieves a goal space by ID. Returns nil if not found.
func (db *DB) GetGoalSpace(id string) (*models.GoalSpace, error) {
	row := db.QueryRow(`SELECT `+goalSpaceColumns+` FROM goal_spaces WHERE id = ?`, id)
	g, err := scanGoalSpace(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get goal space: %w", err)
	}
	return g, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoalSpace(row rowScanner) (*models.GoalSpace, error) {
	var g models.GoalSpace
	var settings string
	var projectID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Status, &g.RepoPath, &settings,
		&projectID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(settings), &g.Settings)
	if projectID.Valid {
		g.ProjectID = projectID.String
	}
	g.CreatedAt, _ = parseTime(createdAt)
	g.UpdatedAt, _ = parseTime(updatedAt)
	return &g, nil
}

// ListGoalSpaces lists all goal spaces, newest first.
func (db *DB) ListGoalSpaces() ([]models.GoalSpace, error) {
	return db.listGoalSpaces(`SELECT `+goalSpaceColumns+` FROM goal_spaces ORDER BY created_at DESC`)
}

// ListGoalSpacesByProject lists the goal spaces belonging to a project.
func (db *DB) ListGoalSpacesByProject(projectID string) ([]models.GoalSpace, error) {
	return db.listGoalSpaces(`SELECT `+goalSpaceColumns+` FROM goal_spaces WHERE project_id = ? ORDER BY created_at DESC`, projectID)
}

func (db *DB) listGoalSpaces(query string, args ...any) ([]models.GoalSpace, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goal spaces: %w", err)
	}
	defer rows.Close()

	var goals []models.GoalSpace
	for rows.Next() {
		g, err := scanGoalSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal space: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// UpdateGoalSpaceStatus sets a goal space's status.
func (db *DB) UpdateGoalSpaceStatus(id string, status models.GoalStatus) error {
	_, err := db.Exec(`
		UPDATE goal_spaces SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update goal space status: %w", err)
	}
	return nil
}

// UpdateGoalSpace updates a goal space's name, description and settings.
func (db *DB) UpdateGoalSpace(g *models.GoalSpace) error {
	settings, err := json.Marshal(g.Settings)
	if err != nil {
		return fmt.Errorf("marshal goal settings: %w", err)
	}
	_, err = db.Exec(`
		UPDATE goal_spaces SET name = ?, description = ?, settings = ?, updated_at = ? WHERE id = ?
	`, g.Name, g.Description, string(settings), formatTime(time.Now()), g.ID)
	if err != nil {
		return fmt.Errorf("update goal space: %w", err)
	}
	return nil
}

// ArchiveGoalSpace soft-deletes a goal space.
func (db *DB) ArchiveGoalSpace(id string) error {
	return db.UpdateGoalSpaceStatus(id, models.GoalStatusArchived)
}

// MarkGoalCompletedIfAllTasksDone atomically flips the goal space to
// completed when it has at least one task and none of them is in a
// status other than done. Returns true if the status changed, and
// appends a goal_completed history entry when it did.
func (db *DB) MarkGoalCompletedIfAllTasksDone(goalID string) (bool, error) {
	res, err := db.Exec(`
		UPDATE goal_spaces SET status = 'completed', updated_at = ?
		WHERE id = ?
		  AND status != 'completed'
		  AND EXISTS (SELECT 1 FROM tasks WHERE goal_space_id = goal_spaces.id)
		  AND NOT EXISTS (SELECT 1 FROM tasks WHERE goal_space_id = goal_spaces.id AND status != 'done')
	`, formatTime(time.Now()), goalID)
	if err != nil {
		return false, fmt.Errorf("mark goal completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := db.AddGoalHistory(goalID, "goal_completed", "All tasks completed", ""); err != nil {
		return true, err
	}
	return true, nil
}

// GoalSummary returns the goal space's task counts by status.
func (db *DB) GoalSummary(goalID string) (*models.GoalSummary, error) {
	rows, err := db.Query(`
		SELECT status, COUNT(*) FROM tasks WHERE goal_space_id = ? GROUP BY status
	`, goalID)
	if err != nil {
		return nil, fmt.Errorf("goal summary: %w", err)
	}
	defer rows.Close()

	summary := &models.GoalSummary{
		GoalSpaceID: goalID,
		TaskCounts:  make(map[string]int),
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		summary.TaskCounts[status] = count
		summary.TasksTotal += count
	}
	return summary, rows.Err()
}
