package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const transitionColumns = `id, project_id, from_queue_id, to_queue_id, actor_type, conditions, auto_trigger, created_at`

// TransitionInput holds the fields of a new transition.
type TransitionInput struct {
	ProjectID   string
	FromQueueID string
	ToQueueID   string
	ActorType   ActorType
	Conditions  json.RawMessage
	AutoTrigger bool
}

// TransitionUpdate is a partial update; nil fields are left alone.
type TransitionUpdate struct {
	ActorType   *ActorType
	Conditions  json.RawMessage
	AutoTrigger *bool
}

// CreateTransition adds a directed edge. Both queues must belong to the
// project and the (from, to) pair must be new.
func (s *Store) CreateTransition(ctx context.Context, in TransitionInput) (*Transition, error) {
	var out *Transition
	err := s.withTx(ctx, "transition create", func(c conn) error {
		t, err := s.createTransition(ctx, c, in)
		out = t
		return err
	})
	return out, err
}

func (s *Store) createTransition(ctx context.Context, c conn, in TransitionInput) (*Transition, error) {
	if in.ActorType == "" {
		in.ActorType = ActorBoth
	}
	if !in.ActorType.Valid() {
		return nil, invalid("unknown actor type %q", in.ActorType)
	}
	if len(in.Conditions) > 0 && !json.Valid(in.Conditions) {
		return nil, invalid("transition conditions must be JSON")
	}

	for _, qid := range []string{in.FromQueueID, in.ToQueueID} {
		q, err := getQueue(ctx, c, qid)
		if err != nil {
			return nil, err
		}
		if q.ProjectID != in.ProjectID {
			return nil, invalid("queue %s belongs to another project", qid)
		}
	}

	var n int
	if err := c.queryRow(ctx, `
		SELECT COUNT(*) FROM transitions WHERE from_queue_id = ? AND to_queue_id = ?
	`, in.FromQueueID, in.ToQueueID).Scan(&n); err != nil {
		return nil, fmt.Errorf("checking transition: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: transition %s -> %s already exists", ErrConflict, in.FromQueueID, in.ToQueueID)
	}

	t := &Transition{
		ID:          newID(),
		ProjectID:   in.ProjectID,
		FromQueueID: in.FromQueueID,
		ToQueueID:   in.ToQueueID,
		ActorType:   in.ActorType,
		Conditions:  in.Conditions,
		AutoTrigger: in.AutoTrigger,
		CreatedAt:   s.now(),
	}
	_, err := c.exec(ctx, `
		INSERT INTO transitions (id, project_id, from_queue_id, to_queue_id, actor_type, conditions, auto_trigger, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.FromQueueID, t.ToQueueID, string(t.ActorType),
		rawOrNil(t.Conditions), t.AutoTrigger, t.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: transition %s -> %s already exists", ErrConflict, in.FromQueueID, in.ToQueueID)
	}
	if err != nil {
		return nil, fmt.Errorf("creating transition: %w", err)
	}
	return t, nil
}

// GetTransition retrieves a transition by id.
func (s *Store) GetTransition(ctx context.Context, id string) (*Transition, error) {
	t, err := scanTransition(s.conn().queryRow(ctx, `SELECT `+transitionColumns+` FROM transitions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("transition", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting transition %s: %w", id, err)
	}
	return t, nil
}

// ListTransitions returns every edge of a project.
func (s *Store) ListTransitions(ctx context.Context, projectID string) ([]*Transition, error) {
	return queryTransitions(ctx, s.conn(), `
		SELECT `+transitionColumns+` FROM transitions
		WHERE project_id = ? ORDER BY created_at ASC, id ASC
	`, projectID)
}

// ListTransitionsFrom returns the edges leaving a queue.
func (s *Store) ListTransitionsFrom(ctx context.Context, queueID string) ([]*Transition, error) {
	return queryTransitions(ctx, s.conn(), `
		SELECT `+transitionColumns+` FROM transitions
		WHERE from_queue_id = ? ORDER BY created_at ASC, id ASC
	`, queueID)
}

// UpdateTransition changes the actor type, conditions or auto-trigger flag.
func (s *Store) UpdateTransition(ctx context.Context, id string, u TransitionUpdate) (*Transition, error) {
	t, err := s.GetTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.ActorType != nil {
		if !u.ActorType.Valid() {
			return nil, invalid("unknown actor type %q", *u.ActorType)
		}
		t.ActorType = *u.ActorType
	}
	if u.Conditions != nil {
		if len(u.Conditions) > 0 && !json.Valid(u.Conditions) {
			return nil, invalid("transition conditions must be JSON")
		}
		t.Conditions = u.Conditions
	}
	if u.AutoTrigger != nil {
		t.AutoTrigger = *u.AutoTrigger
	}

	res, err := s.conn().exec(ctx, `
		UPDATE transitions SET actor_type = ?, conditions = ?, auto_trigger = ? WHERE id = ?
	`, string(t.ActorType), rawOrNil(t.Conditions), t.AutoTrigger, id)
	if err != nil {
		return nil, fmt.Errorf("updating transition: %w", err)
	}
	if err := expectOne(res, "transition", id); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTransition removes an edge unconditionally.
func (s *Store) DeleteTransition(ctx context.Context, id string) error {
	res, err := s.conn().exec(ctx, `DELETE FROM transitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting transition: %w", err)
	}
	return expectOne(res, "transition", id)
}

// transitionAllowed reports whether actor may move a task from one queue
// to another under strict rules.
func transitionAllowed(ctx context.Context, c conn, fromID, toID string, actor ActorType) (bool, error) {
	ts, err := queryTransitions(ctx, c, `
		SELECT `+transitionColumns+` FROM transitions
		WHERE from_queue_id = ? AND to_queue_id = ?
	`, fromID, toID)
	if err != nil {
		return false, err
	}
	for _, t := range ts {
		if t.ActorType.Allows(actor) {
			return true, nil
		}
	}
	return false, nil
}

func queryTransitions(ctx context.Context, c conn, query string, args ...any) ([]*Transition, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transitions: %w", err)
	}
	defer rows.Close()

	var ts []*Transition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		ts = append(ts, t)
	}
	return ts, rows.Err()
}

func scanTransition(row scanner) (*Transition, error) {
	var t Transition
	var actor string
	var cond *string
	if err := row.Scan(&t.ID, &t.ProjectID, &t.FromQueueID, &t.ToQueueID, &actor,
		&cond, &t.AutoTrigger, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ActorType = ActorType(actor)
	if cond != nil && *cond != "" {
		t.Conditions = json.RawMessage(*cond)
	}
	return &t, nil
}

func rawOrNil(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}
