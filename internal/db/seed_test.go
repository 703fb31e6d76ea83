package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDefaults(t *testing.T) {
	tests := []struct {
		name      string
		backEdges bool
		wantEdges int
	}{
		{"forward only", false, 2},
		{"with back edges", true, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			ctx := context.Background()

			p, err := s.SeedDefaults(ctx, "demo", SeedOptions{BackEdges: tt.backEdges})
			require.NoError(t, err)

			queues, err := s.ListQueues(ctx, p.ID)
			require.NoError(t, err)
			require.Len(t, queues, 3)
			assert.Equal(t, []string{QueueTodo, QueueInProgress, QueueDone}, queueNames(queues))
			assert.Equal(t, OwnerHuman, queues[0].OwnerType)
			assert.Equal(t, OwnerAssistant, queues[1].OwnerType)
			assert.Equal(t, OwnerHuman, queues[2].OwnerType)

			ts, err := s.ListTransitions(ctx, p.ID)
			require.NoError(t, err)
			assert.Len(t, ts, tt.wantEdges)

			again, err := s.SeedDefaults(ctx, "demo", SeedOptions{BackEdges: !tt.backEdges})
			require.NoError(t, err)
			assert.Equal(t, p.ID, again.ID, "seeding twice returns the same project")

			ts, err = s.ListTransitions(ctx, p.ID)
			require.NoError(t, err)
			assert.Len(t, ts, tt.wantEdges, "second seed changes nothing")
		})
	}
}

func TestSeedDefaultsEdgeActors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPipeline(t, s, "actors", SeedOptions{})

	ts, err := s.ListTransitions(ctx, p.project.ID)
	require.NoError(t, err)

	actors := map[[2]string]ActorType{}
	for _, tr := range ts {
		actors[[2]string{tr.FromQueueID, tr.ToQueueID}] = tr.ActorType
	}
	assert.Equal(t, ActorHuman, actors[[2]string{p.todo.ID, p.inProgress.ID}])
	assert.Equal(t, ActorAssistant, actors[[2]string{p.inProgress.ID, p.done.ID}])
}

func TestSeedIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	broken := DefaultTemplate(false)
	broken.Transitions = append(broken.Transitions, broken.Transitions[0])

	_, err := s.seed(ctx, "half-built", ProjectConfig{}, broken)
	require.ErrorIs(t, err, ErrConflict)

	_, err = s.GetProjectByName(ctx, "half-built")
	assert.ErrorIs(t, err, ErrNotFound, "no project without its pipeline")

	p, err := s.SeedDefaults(ctx, "half-built", SeedOptions{})
	require.NoError(t, err)
	queues, err := s.ListQueues(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, queues, 3)
}

func TestSeedDefaultsCancelledLeavesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SeedDefaults(ctx, "cancelled", SeedOptions{})
	require.Error(t, err)

	projects, err := s.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, projects)
}
