package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/conductor-hq/conductor/pkg/models"
)

const taskColumns = `id, goal_space_id, title, description, status, priority, depends_on, settings, created_at, updated_at`

// CreateTask inserts a new task after validating its dependencies:
// every dependency must be an existing task in the same goal space and
// must not introduce a cycle. Records a "task_added" history entry.
// Adding a task to a completed goal space reopens it.
func (db *DB) CreateTask(t *models.Task) error {
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	if err := db.validateDependencies(t.ID, t.GoalSpaceID, t.DependsOn); err != nil {
		return err
	}

	dependsOn, _ := json.Marshal(t.DependsOn)
	if t.DependsOn == nil {
		dependsOn = []byte("[]")
	}
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("marshal task settings: %w", err)
	}

	err = db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks (id, goal_space_id, title, description, status, priority, depends_on, settings, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.GoalSpaceID, t.Title, t.Description, string(t.Status), t.Priority,
			string(dependsOn), string(settings), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
		if err != nil {
			return err
		}

		// New work reopens a goal that had already completed, so a goal
		// is never completed while it holds a pending task.
		_, err = tx.Exec(`
			UPDATE goal_spaces SET status = 'active', updated_at = ?
			WHERE id = ? AND status = 'completed'
		`, formatTime(now), t.GoalSpaceID)
		return err
	})
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	return db.AddGoalHistory(t.GoalSpaceID, "task_added", fmt.Sprintf("Task '%s' added", t.Title), "")
}

// validateDependencies checks that deps exist in the goal space and do
// not form a cycle with the goal space's current dependency edges.
func (db *DB) validateDependencies(taskID, goalID string, deps []string) error {
	if len(deps) == 0 {
		return nil
	}

	existing, err := db.ListTasks(goalID)
	if err != nil {
		return err
	}
	edges := make(map[string][]string, len(existing))
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.ID] = true
		edges[t.ID] = t.DependsOn
	}

	for _, dep := range deps {
		if dep == taskID {
			return fmt.Errorf("task %s cannot depend on itself", taskID)
		}
		if !known[dep] {
			return fmt.Errorf("dependency %s not found in goal space %s", dep, goalID)
		}
	}

	if models.HasCycle(taskID, deps, edges) {
		return fmt.Errorf("dependency cycle detected for task %s", taskID)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil if not found.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var dependsOn, settings string
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.GoalSpaceID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&dependsOn, &settings, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(dependsOn), &t.DependsOn)
	json.Unmarshal([]byte(settings), &t.Settings)
	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)
	return &t, nil
}

// ListTasks lists the tasks of a goal space, highest priority first,
// ties broken by creation order.
func (db *DB) ListTasks(goalID string) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE goal_space_id = ?
		ORDER BY priority DESC, created_at ASC
	`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UpdateTask updates a task's title, description, priority,
// dependencies and settings. Dependencies are re-validated.
func (db *DB) UpdateTask(t *models.Task) error {
	if err := db.validateDependencies(t.ID, t.GoalSpaceID, t.DependsOn); err != nil {
		return err
	}

	dependsOn, _ := json.Marshal(t.DependsOn)
	if t.DependsOn == nil {
		dependsOn = []byte("[]")
	}
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("marshal task settings: %w", err)
	}

	_, err = db.Exec(`
		UPDATE tasks SET title = ?, description = ?, priority = ?, depends_on = ?, settings = ?, updated_at = ?
		WHERE id = ?
	`, t.Title, t.Description, t.Priority, string(dependsOn), string(settings),
		formatTime(time.Now()), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// UpdateTaskStatus moves a task through its status machine, rejecting
// transitions the machine does not allow. Validation and write share
// one transaction so racing writers cannot both validate against the
// same stale snapshot.
func (db *DB) UpdateTaskStatus(id string, status models.TaskStatus) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var current models.TaskStatus
		err := tx.QueryRow(`SELECT status FROM tasks WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("task not found: %s", id)
		}
		if err != nil {
			return fmt.Errorf("get task status: %w", err)
		}
		if err := models.ValidateTransition(current, status); err != nil {
			return err
		}

		_, err = tx.Exec(`
			UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?
		`, string(status), formatTime(time.Now()), id, string(current))
		if err != nil {
			return fmt.Errorf("update task status: %w", err)
		}
		return nil
	})
}

// DeleteTask deletes a task by ID.
func (db *DB) DeleteTask(id string) error {
	_, err := db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// GetUnblockedTasks returns a goal space's pending tasks whose every
// dependency is done, in dispatch order.
func (db *DB) GetUnblockedTasks(goalID string) ([]models.Task, error) {
	tasks, err := db.ListTasks(goalID)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool)
	for _, t := range tasks {
		if t.Status == models.TaskStatusDone {
			done[t.ID] = true
		}
	}

	var unblocked []models.Task
	for _, t := range tasks {
		if t.Status != models.TaskStatusPending {
			continue
		}
		ready := true
		for _, dep := range t.DependsOn {
			if !done[dep] {
				ready = false
				break
			}
		}
		if ready {
			unblocked = append(unblocked, t)
		}
	}
	return unblocked, nil
}

// RetryFailedTasks resets every failed task of a goal space back to
// pending and returns how many were reset.
func (db *DB) RetryFailedTasks(goalID string) (int, error) {
	res, err := db.Exec(`
		UPDATE tasks SET status = 'pending', updated_at = ?
		WHERE goal_space_id = ? AND status = 'failed'
	`, formatTime(time.Now()), goalID)
	if err != nil {
		return 0, fmt.Errorf("retry failed tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(n), nil
}
