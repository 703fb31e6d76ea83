package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openlares/openlares-sub000/internal/events"
)

// newTestStore opens a migrated SQLite store in a temp dir.
func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := Connect(ctx, "sqlite://"+filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.RunMigrations(ctx)
	require.NoError(t, err)
	return s
}

// pipeline is a seeded project with its queues looked up by name.
type pipeline struct {
	project    *Project
	todo       *Queue
	inProgress *Queue
	done       *Queue
}

func seedPipeline(t *testing.T, s *Store, name string, opts SeedOptions) pipeline {
	t.Helper()
	ctx := context.Background()

	p, err := s.SeedDefaults(ctx, name, opts)
	require.NoError(t, err)

	queues, err := s.ListQueues(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, queues, 3)

	return pipeline{project: p, todo: queues[0], inProgress: queues[1], done: queues[2]}
}

func newTask(t *testing.T, s *Store, p pipeline, queue *Queue, title string, priority int) *Task {
	t.Helper()
	task, err := s.CreateTask(context.Background(), TaskInput{
		ProjectID: p.project.ID,
		QueueID:   queue.ID,
		Title:     title,
		Priority:  priority,
	})
	require.NoError(t, err)
	return task
}

// recorder captures published events synchronously.
type recorder struct {
	mu     sync.Mutex
	events []events.EventType
}

func (r *recorder) Publish(t events.EventType, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.EventType(nil), r.events...)
}
