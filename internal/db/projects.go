package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const projectColumns = `id, name, config, system_prompt, pinned, last_accessed_at, created_at, updated_at`

// ProjectInput holds the fields of a new project.
type ProjectInput struct {
	Name         string
	Config       ProjectConfig
	SystemPrompt *string
	Pinned       bool
}

// ProjectUpdate is a partial update; nil fields are left alone. An empty
// SystemPrompt clears it.
type ProjectUpdate struct {
	Name         *string
	Config       *ProjectConfig
	SystemPrompt *string
	Pinned       *bool
}

// CreateProject inserts a project. Names are unique.
func (s *Store) CreateProject(ctx context.Context, in ProjectInput) (*Project, error) {
	return s.createProject(ctx, s.conn(), in)
}

func (s *Store) createProject(ctx context.Context, c conn, in ProjectInput) (*Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("project name is required")
	}
	if in.Config.MaxConcurrentAgents < 0 {
		return nil, invalid("maxConcurrentAgents must not be negative")
	}
	cfg, err := json.Marshal(in.Config)
	if err != nil {
		return nil, fmt.Errorf("encoding project config: %w", err)
	}

	now := s.now()
	p := &Project{
		ID:           newID(),
		Name:         name,
		Config:       in.Config,
		SystemPrompt: strPtr(deref(in.SystemPrompt)),
		Pinned:       in.Pinned,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = c.exec(ctx, `
		INSERT INTO projects (id, name, config, system_prompt, pinned, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, string(cfg), nullString(p.SystemPrompt), p.Pinned, now, now)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: project %q already exists", ErrConflict, name)
	}
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return p, nil
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	return getProject(ctx, s.conn(), id)
}

func getProject(ctx context.Context, c conn, id string) (*Project, error) {
	p, err := scanProject(c.queryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %s: %w", id, err)
	}
	return p, nil
}

// GetProjectByName retrieves a project by its exact name.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	p, err := scanProject(s.conn().queryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("project", name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %q: %w", name, err)
	}
	return p, nil
}

// ResolveProject accepts either a project id or a project name.
func (s *Store) ResolveProject(ctx context.Context, ref string) (*Project, error) {
	p, err := s.GetProject(ctx, ref)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return p, err
	}
	return s.GetProjectByName(ctx, ref)
}

// ListProjects returns pinned projects first, then the most recently
// accessed, then the rest by name.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.conn().query(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		ORDER BY pinned DESC,
		         CASE WHEN last_accessed_at IS NULL THEN 1 ELSE 0 END,
		         last_accessed_at DESC,
		         name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject applies a partial update and returns the new row.
func (s *Store) UpdateProject(ctx context.Context, id string, u ProjectUpdate) (*Project, error) {
	var out *Project
	err := s.withTx(ctx, "project update", func(c conn) error {
		p, err := getProject(ctx, c, id)
		if err != nil {
			return err
		}
		if u.Name != nil {
			name := strings.TrimSpace(*u.Name)
			if name == "" {
				return invalid("project name is required")
			}
			p.Name = name
		}
		if u.Config != nil {
			if u.Config.MaxConcurrentAgents < 0 {
				return invalid("maxConcurrentAgents must not be negative")
			}
			p.Config = *u.Config
		}
		if u.SystemPrompt != nil {
			p.SystemPrompt = strPtr(*u.SystemPrompt)
		}
		if u.Pinned != nil {
			p.Pinned = *u.Pinned
		}
		cfg, err := json.Marshal(p.Config)
		if err != nil {
			return fmt.Errorf("encoding project config: %w", err)
		}
		p.UpdatedAt = s.now()

		_, err = c.exec(ctx, `
			UPDATE projects
			SET    name = ?, config = ?, system_prompt = ?, pinned = ?, updated_at = ?
			WHERE  id = ?
		`, p.Name, string(cfg), nullString(p.SystemPrompt), p.Pinned, p.UpdatedAt, id)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: project %q already exists", ErrConflict, p.Name)
		}
		if err != nil {
			return fmt.Errorf("updating project: %w", err)
		}
		out = p
		return nil
	})
	return out, err
}

// TouchProject records that the project was just opened.
func (s *Store) TouchProject(ctx context.Context, id string) error {
	res, err := s.conn().exec(ctx, `UPDATE projects SET last_accessed_at = ? WHERE id = ?`, s.now(), id)
	if err != nil {
		return fmt.Errorf("touching project: %w", err)
	}
	return expectOne(res, "project", id)
}

// DeleteProject removes a project with its queues, transitions and tasks.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.withTx(ctx, "project delete", func(c conn) error {
		if _, err := getProject(ctx, c, id); err != nil {
			return err
		}
		// Tasks reference queues without cascade, so they go first.
		if _, err := c.exec(ctx, `DELETE FROM tasks WHERE project_id = ?`, id); err != nil {
			return fmt.Errorf("deleting project tasks: %w", err)
		}
		if _, err := c.exec(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting project: %w", err)
		}
		return nil
	})
}

func scanProject(row scanner) (*Project, error) {
	var p Project
	var cfg string
	if err := row.Scan(&p.ID, &p.Name, &cfg, &p.SystemPrompt, &p.Pinned,
		&p.LastAccessedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &p.Config); err != nil {
			return nil, fmt.Errorf("decoding config of project %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
