package state

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-hq/conductor/pkg/models"
)

const projectColumns = `id, path, display_name, sort_order, settings, created_at, updated_at`

// CreateProject inserts a new project.
func (db *DB) CreateProject(p *models.Project) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Settings == "" {
		p.Settings = "{}"
	}
	if p.DisplayName == "" {
		p.DisplayName = filepath.Base(p.Path)
	}

	_, err := db.Exec(`
		INSERT INTO projects (id, path, display_name, sort_order, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Path, p.DisplayName, p.SortOrder, p.Settings,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID. Returns nil if not found.
func (db *DB) GetProject(id string) (*models.Project, error) {
	row := db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// GetProjectByPath retrieves a project by repository path.
func (db *DB) GetProjectByPath(path string) (*models.Project, error) {
	row := db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE path = ?`, path)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project by path: %w", err)
	}
	return p, nil
}

// EnsureProjectForPath returns the project for a repository path,
// creating one if none exists.
func (db *DB) EnsureProjectForPath(path string) (*models.Project, error) {
	existing, err := db.GetProjectByPath(path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	p := &models.Project{
		ID:   uuid.New().String(),
		Path: path,
	}
	if err := db.CreateProject(p); err != nil {
		return nil, err
	}
	return p, nil
}

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Path, &p.DisplayName, &p.SortOrder, &p.Settings, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = parseTime(createdAt)
	p.UpdatedAt, _ = parseTime(updatedAt)
	return &p, nil
}

// ListProjects lists all projects in sort order.
func (db *DB) ListProjects() ([]models.Project, error) {
	rows, err := db.Query(`SELECT ` + projectColumns + ` FROM projects ORDER BY sort_order ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdateProject updates a project's display name, sort order and settings.
func (db *DB) UpdateProject(p *models.Project) error {
	_, err := db.Exec(`
		UPDATE projects SET display_name = ?, sort_order = ?, settings = ?, updated_at = ?
		WHERE id = ?
	`, p.DisplayName, p.SortOrder, p.Settings, formatTime(time.Now()), p.ID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// DeleteProject deletes a project by ID. Goal spaces keep their rows;
// their project_id is cleared.
func (db *DB) DeleteProject(id string) error {
	if _, err := db.Exec(`UPDATE goal_spaces SET project_id = NULL WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("detach goal spaces: %w", err)
	}
	if _, err := db.Exec(`DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}
