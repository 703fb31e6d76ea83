package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// NewTaskID creates a readable id: a slug of the title plus a random suffix.
func NewTaskID(title string) string {
	slug := Slugify(title)
	if len(slug) > 15 {
		slug = strings.TrimRight(slug[:15], "-")
	}
	if slug == "" {
		slug = "task"
	}
	return slug + "-" + randomHex(3)
}

// Slugify lowercases s and collapses runs of non-alphanumerics into dashes.
func Slugify(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	prevDash := false
	for _, r := range s {
		if r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			prevDash = false
		} else if !prevDash && b.Len() > 0 {
			b.WriteByte('-')
			prevDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)[:n+2]
}

func newID() string {
	return uuid.NewString()
}

// ResolveTaskID finds the single task whose id starts with prefix.
func (s *Store) ResolveTaskID(ctx context.Context, prefix string) (string, error) {
	var exact string
	err := s.conn().queryRow(ctx, `SELECT id FROM tasks WHERE id = ?`, prefix).Scan(&exact)
	if err == nil {
		return exact, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("resolving id: %w", err)
	}

	rows, err := s.conn().query(ctx, `
		SELECT id FROM tasks WHERE id LIKE ? ORDER BY id LIMIT 2
	`, stripLikeWildcards(prefix)+"%")
	if err != nil {
		return "", fmt.Errorf("resolving partial id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating ids: %w", err)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no task matching %q: %w", prefix, ErrNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: ambiguous prefix %q matches multiple tasks", ErrInvalidInput, prefix)
	}
}

func stripLikeWildcards(s string) string {
	r := strings.NewReplacer("%", "", "_", "")
	return r.Replace(s)
}
