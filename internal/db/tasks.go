package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openlares/openlares-sub000/internal/events"
)

const taskColumns = `id, project_id, queue_id, title, description, priority, session_key,
       assigned_agent, claimed_at, error, error_at, created_at, updated_at`

// TaskInput holds the fields of a new task. An empty QueueID places the
// task in the project's first queue.
type TaskInput struct {
	ProjectID   string
	QueueID     string
	Title       string
	Description string
	Priority    int
}

// TaskUpdate is a partial update of the editable fields.
type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *int
}

// TaskFilter narrows ListTasks. Empty fields match everything.
type TaskFilter struct {
	ProjectID string
	QueueID   string
}

// CreateTask inserts a task.
func (s *Store) CreateTask(ctx context.Context, in TaskInput) (*Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("task title is required")
	}

	var t *Task
	err := s.withTx(ctx, "task create", func(c conn) error {
		if _, err := getProject(ctx, c, in.ProjectID); err != nil {
			return err
		}

		queueID := in.QueueID
		if queueID == "" {
			queues, err := listQueues(ctx, c, in.ProjectID)
			if err != nil {
				return err
			}
			if len(queues) == 0 {
				return invalid("project %s has no queues", in.ProjectID)
			}
			queueID = queues[0].ID
		} else {
			q, err := getQueue(ctx, c, queueID)
			if err != nil {
				return err
			}
			if q.ProjectID != in.ProjectID {
				return invalid("queue %s belongs to another project", queueID)
			}
		}

		now := s.now()
		t = &Task{
			ID:          NewTaskID(title),
			ProjectID:   in.ProjectID,
			QueueID:     queueID,
			Title:       title,
			Description: in.Description,
			Priority:    in.Priority,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		_, err := c.exec(ctx, `
			INSERT INTO tasks (id, project_id, queue_id, title, description, priority, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.ProjectID, t.QueueID, t.Title, t.Description, t.Priority, now, now)
		if err != nil {
			return fmt.Errorf("creating task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventTaskCreated, map[string]interface{}{
		"task_id":    t.ID,
		"project_id": t.ProjectID,
		"queue_id":   t.QueueID,
	})
	return t, nil
}

// GetTask retrieves a task by exact id.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	return getTask(ctx, s.conn(), id)
}

func getTask(ctx context.Context, c conn, id string) (*Task, error) {
	t, err := scanTask(c.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns tasks ordered by priority, then age.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]*Task, error) {
	var where []string
	var args []any
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.QueueID != "" {
		where = append(where, "queue_id = ?")
		args = append(args, f.QueueID)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY priority DESC, created_at ASC, id ASC`

	return queryTasks(ctx, s.conn(), query, args...)
}

// ListClaimedTasks returns the tasks currently held by an agent. An empty
// agentID returns every claimed task.
func (s *Store) ListClaimedTasks(ctx context.Context, agentID string) ([]*Task, error) {
	if agentID == "" {
		return queryTasks(ctx, s.conn(), `
			SELECT `+taskColumns+` FROM tasks
			WHERE assigned_agent IS NOT NULL
			ORDER BY claimed_at ASC
		`)
	}
	return queryTasks(ctx, s.conn(), `
		SELECT `+taskColumns+` FROM tasks
		WHERE assigned_agent = ?
		ORDER BY claimed_at ASC
	`, agentID)
}

// UpdateTask edits title, description or priority.
func (s *Store) UpdateTask(ctx context.Context, id string, u TaskUpdate) (*Task, error) {
	var t *Task
	err := s.withTx(ctx, "task update", func(c conn) error {
		var err error
		t, err = getTask(ctx, c, id)
		if err != nil {
			return err
		}
		if u.Title != nil {
			title := strings.TrimSpace(*u.Title)
			if title == "" {
				return invalid("task title is required")
			}
			t.Title = title
		}
		if u.Description != nil {
			t.Description = *u.Description
		}
		if u.Priority != nil {
			t.Priority = *u.Priority
		}
		t.UpdatedAt = s.now()
		_, err = c.exec(ctx, `
			UPDATE tasks SET title = ?, description = ?, priority = ?, updated_at = ? WHERE id = ?
		`, t.Title, t.Description, t.Priority, t.UpdatedAt, id)
		if err != nil {
			return fmt.Errorf("updating task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishUpdated(t.ID, "edited")
	return t, nil
}

// DeleteTask removes a task with its history and comments.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.conn().exec(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if err := expectOne(res, "task", id); err != nil {
		return err
	}
	s.publish(events.EventTaskDeleted, map[string]interface{}{"task_id": id})
	return nil
}

// MoveTask moves a task to another queue of its project, appending a history
// row and clearing any claim or error. Under strict transitions a matching
// edge whose actor type admits actor must exist.
func (s *Store) MoveTask(ctx context.Context, taskID, toQueueID string, actor ActorType, note string) (*Task, error) {
	if actor != ActorHuman && actor != ActorAssistant {
		return nil, invalid("moves are made by a human or an assistant, not %q", actor)
	}

	var moved *Task
	var fromQueueID string
	err := s.withTx(ctx, "move", func(c conn) error {
		t, err := getTask(ctx, c, taskID)
		if err != nil {
			return err
		}
		to, err := getQueue(ctx, c, toQueueID)
		if err != nil {
			return err
		}
		if to.ProjectID != t.ProjectID {
			return invalid("queue %s belongs to another project", toQueueID)
		}
		p, err := getProject(ctx, c, t.ProjectID)
		if err != nil {
			return err
		}

		if p.Config.StrictTransitions {
			ok, err := transitionAllowed(ctx, c, t.QueueID, to.ID, actor)
			if err != nil {
				return err
			}
			if !ok {
				from, err := getQueue(ctx, c, t.QueueID)
				if err != nil {
					return err
				}
				return fmt.Errorf("%w: %s → %s for %s", ErrInvalidTransition, from.Name, to.Name, actor)
			}
		}

		now := s.now()
		res, err := c.exec(ctx, `
			UPDATE tasks
			SET    queue_id       = ?,
			       assigned_agent = NULL,
			       session_key    = NULL,
			       claimed_at     = NULL,
			       error          = NULL,
			       error_at       = NULL,
			       updated_at     = ?
			WHERE  id = ? AND queue_id = ?
		`, to.ID, now, t.ID, t.QueueID)
		if err != nil {
			return fmt.Errorf("moving task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: task %s changed queue concurrently", ErrConflict, t.ID)
		}

		_, err = c.exec(ctx, `
			INSERT INTO task_history (id, task_id, from_queue_id, to_queue_id, actor, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, newID(), t.ID, t.QueueID, to.ID, string(actor), nullString(&note), now)
		if err != nil {
			return fmt.Errorf("recording history: %w", err)
		}

		fromQueueID = t.QueueID
		moved, err = getTask(ctx, c, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventTaskMoved, map[string]interface{}{
		"task_id":       moved.ID,
		"project_id":    moved.ProjectID,
		"from_queue_id": fromQueueID,
		"to_queue_id":   moved.QueueID,
		"actor":         string(actor),
	})
	return moved, nil
}

// ClaimTask assigns an unclaimed, error-free task to agentID. A task that is
// already claimed or errored yields ErrNotClaimable.
func (s *Store) ClaimTask(ctx context.Context, taskID, agentID, sessionKey string) (*Task, error) {
	if agentID == "" {
		return nil, invalid("agent id is required")
	}

	var t *Task
	err := s.withTx(ctx, "claim", func(c conn) error {
		now := s.now()
		res, err := c.exec(ctx, `
			UPDATE tasks
			SET    assigned_agent = ?,
			       session_key    = ?,
			       claimed_at     = ?,
			       updated_at     = ?
			WHERE  id = ?
			  AND  assigned_agent IS NULL
			  AND  error IS NULL
		`, agentID, nullString(&sessionKey), now, now, taskID)
		if err != nil {
			return fmt.Errorf("claiming task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}

		t, err = getTask(ctx, c, taskID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("task %s: %w", taskID, ErrNotClaimable)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventTaskClaimed, map[string]interface{}{
		"task_id":     t.ID,
		"project_id":  t.ProjectID,
		"agent_id":    agentID,
		"session_key": sessionKey,
	})
	return t, nil
}

// SetTaskError parks a task with an error message and clears its claim.
func (s *Store) SetTaskError(ctx context.Context, taskID, message string) error {
	now := s.now()
	res, err := s.conn().exec(ctx, `
		UPDATE tasks
		SET    error          = ?,
		       error_at       = ?,
		       assigned_agent = NULL,
		       session_key    = NULL,
		       claimed_at     = NULL,
		       updated_at     = ?
		WHERE  id = ?
	`, message, now, now, taskID)
	if err != nil {
		return fmt.Errorf("setting task error: %w", err)
	}
	if err := expectOne(res, "task", taskID); err != nil {
		return err
	}
	s.publishUpdated(taskID, "errored")
	return nil
}

// ClearTaskError makes an errored task schedulable again.
func (s *Store) ClearTaskError(ctx context.Context, taskID string) error {
	res, err := s.conn().exec(ctx, `
		UPDATE tasks SET error = NULL, error_at = NULL, updated_at = ? WHERE id = ?
	`, s.now(), taskID)
	if err != nil {
		return fmt.Errorf("clearing task error: %w", err)
	}
	if err := expectOne(res, "task", taskID); err != nil {
		return err
	}
	s.publishUpdated(taskID, "error_cleared")
	return nil
}

// ReleaseTask clears a task's claim without recording an error.
func (s *Store) ReleaseTask(ctx context.Context, taskID string) error {
	res, err := s.conn().exec(ctx, `
		UPDATE tasks
		SET    assigned_agent = NULL,
		       session_key    = NULL,
		       claimed_at     = NULL,
		       updated_at     = ?
		WHERE  id = ?
	`, s.now(), taskID)
	if err != nil {
		return fmt.Errorf("releasing task: %w", err)
	}
	if err := expectOne(res, "task", taskID); err != nil {
		return err
	}
	s.publishUpdated(taskID, "released")
	return nil
}

// Claim identifies one claim of a task: who holds it and since when.
type Claim struct {
	TaskID    string
	AgentID   string
	ClaimedAt time.Time
}

// ClaimOf returns the claim currently recorded on t.
func ClaimOf(t *Task) (Claim, bool) {
	if t.AssignedAgent == nil || t.ClaimedAt == nil {
		return Claim{}, false
	}
	return Claim{TaskID: t.ID, AgentID: *t.AssignedAgent, ClaimedAt: *t.ClaimedAt}, true
}

// FailClaim is SetTaskError for a holder of the claim. If the task has been
// moved, released or claimed again since, nothing changes and ErrConflict
// is returned.
func (s *Store) FailClaim(ctx context.Context, cl Claim, message string) error {
	now := s.now()
	res, err := s.conn().exec(ctx, `
		UPDATE tasks
		SET    error          = ?,
		       error_at       = ?,
		       assigned_agent = NULL,
		       session_key    = NULL,
		       claimed_at     = NULL,
		       updated_at     = ?
		WHERE  id = ? AND assigned_agent = ? AND claimed_at = ?
	`, message, now, now, cl.TaskID, cl.AgentID, cl.ClaimedAt)
	if err != nil {
		return fmt.Errorf("setting task error: %w", err)
	}
	if err := s.expectClaim(ctx, res, cl); err != nil {
		return err
	}
	s.publishUpdated(cl.TaskID, "errored")
	return nil
}

// ReleaseClaim is ReleaseTask for a holder of the claim, with the same
// ErrConflict rule as FailClaim.
func (s *Store) ReleaseClaim(ctx context.Context, cl Claim) error {
	res, err := s.conn().exec(ctx, `
		UPDATE tasks
		SET    assigned_agent = NULL,
		       session_key    = NULL,
		       claimed_at     = NULL,
		       updated_at     = ?
		WHERE  id = ? AND assigned_agent = ? AND claimed_at = ?
	`, s.now(), cl.TaskID, cl.AgentID, cl.ClaimedAt)
	if err != nil {
		return fmt.Errorf("releasing task: %w", err)
	}
	if err := s.expectClaim(ctx, res, cl); err != nil {
		return err
	}
	s.publishUpdated(cl.TaskID, "released")
	return nil
}

// expectClaim turns a claim-guarded update that matched nothing into
// ErrNotFound or ErrConflict.
func (s *Store) expectClaim(ctx context.Context, res sql.Result, cl Claim) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := getTask(ctx, s.conn(), cl.TaskID); err != nil {
		return err
	}
	return fmt.Errorf("%w: task %s is no longer claimed by %s", ErrConflict, cl.TaskID, cl.AgentID)
}

// ExpireStaleClaims errors every task claimed longer than olderThan ago and
// returns how many were affected.
func (s *Store) ExpireStaleClaims(ctx context.Context, olderThan time.Duration, message string) (int, error) {
	now := s.now()
	cutoff := now.Add(-olderThan)

	var ids, expired []string
	err := s.withTx(ctx, "stale claim expiry", func(c conn) error {
		rows, err := c.query(ctx, `
			SELECT id FROM tasks
			WHERE  assigned_agent IS NOT NULL
			  AND  claimed_at < ?
		`, cutoff)
		if err != nil {
			return fmt.Errorf("finding stale claims: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scanning stale claim: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating stale claims: %w", err)
		}

		for _, id := range ids {
			res, err := c.exec(ctx, `
				UPDATE tasks
				SET    error          = ?,
				       error_at       = ?,
				       assigned_agent = NULL,
				       session_key    = NULL,
				       claimed_at     = NULL,
				       updated_at     = ?
				WHERE  id = ?
				  AND  assigned_agent IS NOT NULL
				  AND  claimed_at < ?
			`, message, now, now, id, cutoff)
			if err != nil {
				return fmt.Errorf("expiring claim on %s: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("checking rows affected: %w", err)
			}
			if n > 0 {
				expired = append(expired, id)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, id := range expired {
		s.publishUpdated(id, "errored")
	}
	return len(expired), nil
}

// GetNextClaimableTask picks the task an agent should work on next within a
// project, or returns nil when nothing is available.
func (s *Store) GetNextClaimableTask(ctx context.Context, projectID, agentID string) (*Task, error) {
	c := s.conn()
	p, err := getProject(ctx, c, projectID)
	if err != nil {
		return nil, err
	}
	if !p.Config.AllowsAgent(agentID) {
		return nil, nil
	}
	if p.Config.MaxConcurrentAgents > 0 {
		var claimed int
		if err := c.queryRow(ctx, `
			SELECT COUNT(*) FROM tasks WHERE project_id = ? AND assigned_agent IS NOT NULL
		`, projectID).Scan(&claimed); err != nil {
			return nil, fmt.Errorf("counting project claims: %w", err)
		}
		if claimed >= p.Config.MaxConcurrentAgents {
			return nil, nil
		}
	}

	queues, err := listQueues(ctx, c, projectID)
	if err != nil {
		return nil, err
	}
	for _, q := range queues {
		if q.OwnerType != OwnerAssistant {
			continue
		}
		if q.AgentLimit > 0 {
			var claimed int
			if err := c.queryRow(ctx, `
				SELECT COUNT(*) FROM tasks WHERE queue_id = ? AND assigned_agent IS NOT NULL
			`, q.ID).Scan(&claimed); err != nil {
				return nil, fmt.Errorf("counting queue claims: %w", err)
			}
			if claimed >= q.AgentLimit {
				continue
			}
		}

		t, err := scanTask(c.queryRow(ctx, `
			SELECT `+taskColumns+` FROM tasks
			WHERE  queue_id = ?
			  AND  assigned_agent IS NULL
			  AND  error IS NULL
			ORDER  BY priority DESC, created_at ASC, id ASC
			LIMIT  1
		`, q.ID))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("selecting next task: %w", err)
		}
		return t, nil
	}
	return nil, nil
}

// GetTaskHistory returns a task's moves in chronological order.
func (s *Store) GetTaskHistory(ctx context.Context, taskID string) ([]*TaskHistory, error) {
	if _, err := s.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	rows, err := s.conn().query(ctx, `
		SELECT id, task_id, from_queue_id, to_queue_id, actor, note, created_at
		FROM task_history
		WHERE task_id = ?
		ORDER BY created_at ASC, id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("getting task history: %w", err)
	}
	defer rows.Close()

	var hist []*TaskHistory
	for rows.Next() {
		var h TaskHistory
		if err := rows.Scan(&h.ID, &h.TaskID, &h.FromQueueID, &h.ToQueueID, &h.Actor, &h.Note, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		hist = append(hist, &h)
	}
	return hist, rows.Err()
}

func (s *Store) publishUpdated(taskID, change string) {
	s.publish(events.EventTaskUpdated, map[string]interface{}{
		"task_id": taskID,
		"change":  change,
	})
}

func queryTasks(ctx context.Context, c conn, query string, args ...any) ([]*Task, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row scanner) (*Task, error) {
	var t Task
	if err := row.Scan(
		&t.ID, &t.ProjectID, &t.QueueID, &t.Title, &t.Description, &t.Priority,
		&t.SessionKey, &t.AssignedAgent, &t.ClaimedAt, &t.Error, &t.ErrorAt,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
