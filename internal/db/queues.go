package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const queueColumns = `id, project_id, name, owner_type, description, system_prompt, position, agent_limit, created_at`

// QueueInput holds the fields of a new queue. A nil Position appends the
// queue after the project's last one.
type QueueInput struct {
	ProjectID    string
	Name         string
	OwnerType    OwnerType
	Description  *string
	SystemPrompt *string
	Position     *int
	AgentLimit   int
}

// QueueUpdate is a partial update; nil fields are left alone.
type QueueUpdate struct {
	Name         *string
	OwnerType    *OwnerType
	Description  *string
	SystemPrompt *string
	AgentLimit   *int
}

// QueuePosition assigns a display position to one queue.
type QueuePosition struct {
	QueueID  string `json:"queue_id" yaml:"queue_id"`
	Position int    `json:"position" yaml:"position"`
}

// CreateQueue adds a queue to a project.
func (s *Store) CreateQueue(ctx context.Context, in QueueInput) (*Queue, error) {
	var out *Queue
	err := s.withTx(ctx, "queue create", func(c conn) error {
		q, err := s.createQueue(ctx, c, in)
		out = q
		return err
	})
	return out, err
}

func (s *Store) createQueue(ctx context.Context, c conn, in QueueInput) (*Queue, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("queue name is required")
	}
	if in.OwnerType == "" {
		in.OwnerType = OwnerHuman
	}
	if !in.OwnerType.Valid() {
		return nil, invalid("unknown owner type %q", in.OwnerType)
	}
	if in.AgentLimit < 0 {
		return nil, invalid("agent limit must not be negative")
	}
	if _, err := getProject(ctx, c, in.ProjectID); err != nil {
		return nil, err
	}
	if err := checkQueueNameFree(ctx, c, in.ProjectID, name, ""); err != nil {
		return nil, err
	}

	pos := 0
	if in.Position != nil {
		pos = *in.Position
	} else if err := c.queryRow(ctx, `
		SELECT COALESCE(MAX(position), -1) + 1 FROM queues WHERE project_id = ?
	`, in.ProjectID).Scan(&pos); err != nil {
		return nil, fmt.Errorf("computing queue position: %w", err)
	}

	q := &Queue{
		ID:           newID(),
		ProjectID:    in.ProjectID,
		Name:         name,
		OwnerType:    in.OwnerType,
		Description:  strPtr(deref(in.Description)),
		SystemPrompt: strPtr(deref(in.SystemPrompt)),
		Position:     pos,
		AgentLimit:   in.AgentLimit,
		CreatedAt:    s.now(),
	}
	_, err := c.exec(ctx, `
		INSERT INTO queues (id, project_id, name, owner_type, description, system_prompt, position, agent_limit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.ProjectID, q.Name, string(q.OwnerType), nullString(q.Description),
		nullString(q.SystemPrompt), q.Position, q.AgentLimit, q.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating queue: %w", err)
	}
	return q, nil
}

// checkQueueNameFree rejects a name already used (case-insensitively) by
// another queue of the project.
func checkQueueNameFree(ctx context.Context, c conn, projectID, name, exceptID string) error {
	var n int
	err := c.queryRow(ctx, `
		SELECT COUNT(*) FROM queues
		WHERE  project_id = ? AND LOWER(name) = LOWER(?) AND id <> ?
	`, projectID, name, exceptID).Scan(&n)
	if err != nil {
		return fmt.Errorf("checking queue name: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: queue %q already exists", ErrConflict, name)
	}
	return nil
}

// GetQueue retrieves a queue by id.
func (s *Store) GetQueue(ctx context.Context, id string) (*Queue, error) {
	return getQueue(ctx, s.conn(), id)
}

func getQueue(ctx context.Context, c conn, id string) (*Queue, error) {
	q, err := scanQueue(c.queryRow(ctx, `SELECT `+queueColumns+` FROM queues WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("queue", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting queue %s: %w", id, err)
	}
	return q, nil
}

// ListQueues returns a project's queues in display order.
func (s *Store) ListQueues(ctx context.Context, projectID string) ([]*Queue, error) {
	return listQueues(ctx, s.conn(), projectID)
}

func listQueues(ctx context.Context, c conn, projectID string) ([]*Queue, error) {
	rows, err := c.query(ctx, `
		SELECT `+queueColumns+`
		FROM queues WHERE project_id = ?
		ORDER BY position ASC, created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing queues: %w", err)
	}
	defer rows.Close()

	var queues []*Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning queue: %w", err)
		}
		queues = append(queues, q)
	}
	return queues, rows.Err()
}

// UpdateQueue applies a partial update and returns the new row.
func (s *Store) UpdateQueue(ctx context.Context, id string, u QueueUpdate) (*Queue, error) {
	var out *Queue
	err := s.withTx(ctx, "queue update", func(c conn) error {
		q, err := getQueue(ctx, c, id)
		if err != nil {
			return err
		}
		if u.Name != nil {
			name := strings.TrimSpace(*u.Name)
			if name == "" {
				return invalid("queue name is required")
			}
			if err := checkQueueNameFree(ctx, c, q.ProjectID, name, q.ID); err != nil {
				return err
			}
			q.Name = name
		}
		if u.OwnerType != nil {
			if !u.OwnerType.Valid() {
				return invalid("unknown owner type %q", *u.OwnerType)
			}
			q.OwnerType = *u.OwnerType
		}
		if u.Description != nil {
			q.Description = strPtr(*u.Description)
		}
		if u.SystemPrompt != nil {
			q.SystemPrompt = strPtr(*u.SystemPrompt)
		}
		if u.AgentLimit != nil {
			if *u.AgentLimit < 0 {
				return invalid("agent limit must not be negative")
			}
			q.AgentLimit = *u.AgentLimit
		}

		_, err = c.exec(ctx, `
			UPDATE queues
			SET    name = ?, owner_type = ?, description = ?, system_prompt = ?, agent_limit = ?
			WHERE  id = ?
		`, q.Name, string(q.OwnerType), nullString(q.Description), nullString(q.SystemPrompt), q.AgentLimit, id)
		if err != nil {
			return fmt.Errorf("updating queue: %w", err)
		}
		out = q
		return nil
	})
	return out, err
}

// DeleteQueue removes a queue and the transitions touching it. It refuses
// with ErrLastQueue or ErrQueueHasTasks.
func (s *Store) DeleteQueue(ctx context.Context, id string) error {
	return s.withTx(ctx, "queue delete", func(c conn) error {
		q, err := getQueue(ctx, c, id)
		if err != nil {
			return err
		}

		var queues, tasks int
		if err := c.queryRow(ctx, `SELECT COUNT(*) FROM queues WHERE project_id = ?`, q.ProjectID).Scan(&queues); err != nil {
			return fmt.Errorf("counting queues: %w", err)
		}
		if queues <= 1 {
			return fmt.Errorf("queue %q: %w", q.Name, ErrLastQueue)
		}
		if err := c.queryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE queue_id = ?`, id).Scan(&tasks); err != nil {
			return fmt.Errorf("counting queue tasks: %w", err)
		}
		if tasks > 0 {
			return fmt.Errorf("queue %q holds %d task(s): %w", q.Name, tasks, ErrQueueHasTasks)
		}

		if _, err := c.exec(ctx, `DELETE FROM transitions WHERE from_queue_id = ? OR to_queue_id = ?`, id, id); err != nil {
			return fmt.Errorf("deleting queue transitions: %w", err)
		}
		if _, err := c.exec(ctx, `DELETE FROM queues WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting queue: %w", err)
		}
		return nil
	})
}

// UpdateQueuePositions reorders queues in one transaction. Every queue must
// belong to projectID; otherwise nothing is applied.
func (s *Store) UpdateQueuePositions(ctx context.Context, projectID string, positions []QueuePosition) error {
	return s.withTx(ctx, "queue reorder", func(c conn) error {
		for _, p := range positions {
			res, err := c.exec(ctx, `
				UPDATE queues SET position = ? WHERE id = ? AND project_id = ?
			`, p.Position, p.QueueID, projectID)
			if err != nil {
				return fmt.Errorf("updating queue position: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("checking rows affected: %w", err)
			}
			if n == 0 {
				return invalid("queue %s is not part of project %s", p.QueueID, projectID)
			}
		}
		return nil
	})
}

// FindQueueByName matches a queue of the project case-insensitively.
func (s *Store) FindQueueByName(ctx context.Context, projectID, name string) (*Queue, error) {
	queues, err := s.ListQueues(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if q := MatchQueue(queues, name); q != nil {
		return q, nil
	}
	return nil, notFound("queue", name)
}

// MatchQueue returns the queue whose name equals name ignoring case.
func MatchQueue(queues []*Queue, name string) *Queue {
	name = strings.TrimSpace(name)
	for _, q := range queues {
		if strings.EqualFold(q.Name, name) {
			return q
		}
	}
	return nil
}

func scanQueue(row scanner) (*Queue, error) {
	var q Queue
	var owner string
	if err := row.Scan(&q.ID, &q.ProjectID, &q.Name, &owner, &q.Description,
		&q.SystemPrompt, &q.Position, &q.AgentLimit, &q.CreatedAt); err != nil {
		return nil, err
	}
	q.OwnerType = OwnerType(owner)
	return &q, nil
}
