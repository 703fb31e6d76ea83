package db

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Design Auth Flow", "design-auth-flow"},
		{"  leading spaces", "leading-spaces"},
		{"Fix bug #42!", "fix-bug-42"},
		{"ação rápida", "a-o-r-pida"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNewTaskID(t *testing.T) {
	id := NewTaskID("Design the authentication flow")
	if !strings.HasPrefix(id, "design-the-auth") {
		t.Errorf("NewTaskID prefix = %q", id)
	}
	parts := strings.Split(id, "-")
	if suffix := parts[len(parts)-1]; len(suffix) != 5 {
		t.Errorf("expected 5-char suffix, got %q", suffix)
	}

	if id := NewTaskID("!!!"); !strings.HasPrefix(id, "task-") {
		t.Errorf("NewTaskID of symbols = %q, want task- prefix", id)
	}
}

func TestResolveTaskID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPipeline(t, s, "resolve", SeedOptions{})

	a := newTask(t, s, p, p.todo, "Alpha task", 0)
	newTask(t, s, p, p.todo, "Alpha task", 0)

	got, err := s.ResolveTaskID(ctx, a.ID)
	if err != nil || got != a.ID {
		t.Fatalf("exact resolve = %q, %v", got, err)
	}

	got, err = s.ResolveTaskID(ctx, a.ID[:len(a.ID)-1])
	if err != nil && !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unexpected error: %v", err)
	}
	if err == nil && got != a.ID {
		t.Fatalf("prefix resolve = %q, want %q", got, a.ID)
	}

	if _, err := s.ResolveTaskID(ctx, "alpha-task"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("shared prefix should be ambiguous, got %v", err)
	}
	if _, err := s.ResolveTaskID(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown prefix should be not found, got %v", err)
	}
}
