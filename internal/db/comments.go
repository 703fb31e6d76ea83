package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/openlares/openlares-sub000/internal/events"
)

// CommentInput holds the fields of a new comment.
type CommentInput struct {
	TaskID     string
	AuthorType AuthorType
	Author     string
	Content    string
}

// AddComment appends a comment to a task.
func (s *Store) AddComment(ctx context.Context, in CommentInput) (*TaskComment, error) {
	if !in.AuthorType.Valid() {
		return nil, invalid("unknown author type %q", in.AuthorType)
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, invalid("comment content is required")
	}

	cm := &TaskComment{
		ID:         newID(),
		TaskID:     in.TaskID,
		AuthorType: in.AuthorType,
		Author:     strPtr(in.Author),
		Content:    in.Content,
		CreatedAt:  s.now(),
	}
	err := s.withTx(ctx, "comment", func(c conn) error {
		if _, err := getTask(ctx, c, in.TaskID); err != nil {
			return err
		}
		_, err := c.exec(ctx, `
			INSERT INTO task_comments (id, task_id, author_type, author, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, cm.ID, cm.TaskID, string(cm.AuthorType), nullString(cm.Author), cm.Content, cm.CreatedAt)
		if err != nil {
			return fmt.Errorf("adding comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventTaskComment, map[string]interface{}{
		"task_id":     cm.TaskID,
		"comment_id":  cm.ID,
		"author_type": string(cm.AuthorType),
	})
	return cm, nil
}

// ListComments returns a task's comments oldest first.
func (s *Store) ListComments(ctx context.Context, taskID string) ([]*TaskComment, error) {
	rows, err := s.conn().query(ctx, `
		SELECT id, task_id, author_type, author, content, created_at
		FROM task_comments
		WHERE task_id = ?
		ORDER BY created_at ASC, id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer rows.Close()

	var comments []*TaskComment
	for rows.Next() {
		var cm TaskComment
		var author string
		if err := rows.Scan(&cm.ID, &cm.TaskID, &author, &cm.Author, &cm.Content, &cm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		cm.AuthorType = AuthorType(author)
		comments = append(comments, &cm)
	}
	return comments, rows.Err()
}
