package db

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateQueueAppendsPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPipeline(t, s, "queues", SeedOptions{})

	q, err := s.CreateQueue(ctx, QueueInput{ProjectID: p.project.ID, Name: "Review", OwnerType: OwnerAssistant})
	require.NoError(t, err)
	assert.Equal(t, 3, q.Position)

	_, err = s.CreateQueue(ctx, QueueInput{ProjectID: p.project.ID, Name: "review"})
	assert.ErrorIs(t, err, ErrConflict, "names are unique ignoring case")

	_, err = s.CreateQueue(ctx, QueueInput{ProjectID: p.project.ID, Name: "Bad", OwnerType: "robot"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.CreateQueue(ctx, QueueInput{ProjectID: p.project.ID, Name: "Neg", AgentLimit: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.CreateQueue(ctx, QueueInput{ProjectID: "missing", Name: "Lost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteLastQueueRefused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, ProjectInput{Name: "solo"})
	require.NoError(t, err)
	only, err := s.CreateQueue(ctx, QueueInput{ProjectID: p.ID, Name: "Only"})
	require.NoError(t, err)

	err = s.DeleteQueue(ctx, only.ID)
	assert.ErrorIs(t, err, ErrLastQueue)
	assert.ErrorIs(t, err, ErrConstraint)

	queues, err := s.ListQueues(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, queues, 1)
}

func TestDeleteQueueWithTasksRefused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPipeline(t, s, "busy", SeedOptions{})
	newTask(t, s, p, p.done, "Resident", 0)

	err := s.DeleteQueue(ctx, p.done.ID)
	assert.ErrorIs(t, err, ErrQueueHasTasks)
	assert.ErrorIs(t, err, ErrConstraint)

	queues, err := s.ListQueues(ctx, p.project.ID)
	require.NoError(t, err)
	assert.Len(t, queues, 3)
}

func TestDeleteQueueCascadesTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPipeline(t, s, "cascade", SeedOptions{BackEdges: true})

	require.NoError(t, s.DeleteQueue(ctx, p.done.ID))

	ts, err := s.ListTransitions(ctx, p.project.ID)
	require.NoError(t, err)
	for _, tr := range ts {
		assert.NotEqual(t, p.done.ID, tr.FromQueueID)
		assert.NotEqual(t, p.done.ID, tr.ToQueueID)
	}
	assert.Len(t, ts, 2, "Todo→In Progress and In Progress→Todo remain")

	assert.ErrorIs(t, s.DeleteQueue(ctx, p.done.ID), ErrNotFound)
}

func TestUpdateQueuePositions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPipeline(t, s, "reorder", SeedOptions{})

	err := s.UpdateQueuePositions(ctx, p.project.ID, []QueuePosition{
		{QueueID: p.done.ID, Position: 0},
		{QueueID: p.todo.ID, Position: 1},
		{QueueID: p.inProgress.ID, Position: 2},
	})
	require.NoError(t, err)

	queues, err := s.ListQueues(ctx, p.project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Done", "Todo", "In Progress"}, queueNames(queues))
}

func TestUpdateQueuePositionsIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPipeline(t, s, "atomic", SeedOptions{})
	other := seedPipeline(t, s, "other", SeedOptions{})

	err := s.UpdateQueuePositions(ctx, p.project.ID, []QueuePosition{
		{QueueID: p.done.ID, Position: 0},
		{QueueID: other.todo.ID, Position: 1},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	queues, err := s.ListQueues(ctx, p.project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Todo", "In Progress", "Done"}, queueNames(queues), "nothing applied")
}

func TestUpdateQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPipeline(t, s, "update", SeedOptions{})

	name, prompt := "Doing", "Be concise."
	owner := OwnerHuman
	q, err := s.UpdateQueue(ctx, p.inProgress.ID, QueueUpdate{Name: &name, SystemPrompt: &prompt, OwnerType: &owner})
	require.NoError(t, err)
	assert.Equal(t, "Doing", q.Name)
	require.NotNil(t, q.SystemPrompt)
	assert.Equal(t, "Be concise.", *q.SystemPrompt)

	empty := ""
	q, err = s.UpdateQueue(ctx, p.inProgress.ID, QueueUpdate{SystemPrompt: &empty})
	require.NoError(t, err)
	assert.Nil(t, q.SystemPrompt)

	dup := "todo"
	_, err = s.UpdateQueue(ctx, p.inProgress.ID, QueueUpdate{Name: &dup})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestTransitionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPipeline(t, s, "edges", SeedOptions{})

	tr, err := s.CreateTransition(ctx, TransitionInput{
		ProjectID:   p.project.ID,
		FromQueueID: p.done.ID,
		ToQueueID:   p.todo.ID,
		ActorType:   ActorHuman,
		Conditions:  json.RawMessage(`{"label":"reopen"}`),
	})
	require.NoError(t, err)

	_, err = s.CreateTransition(ctx, TransitionInput{
		ProjectID: p.project.ID, FromQueueID: p.done.ID, ToQueueID: p.todo.ID,
	})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.GetTransition(ctx, tr.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"reopen"}`, string(got.Conditions))

	both := ActorBoth
	auto := true
	got, err = s.UpdateTransition(ctx, tr.ID, TransitionUpdate{ActorType: &both, AutoTrigger: &auto})
	require.NoError(t, err)
	assert.Equal(t, ActorBoth, got.ActorType)
	assert.True(t, got.AutoTrigger)

	from, err := s.ListTransitionsFrom(ctx, p.done.ID)
	require.NoError(t, err)
	assert.Len(t, from, 1)

	require.NoError(t, s.DeleteTransition(ctx, tr.ID))
	assert.ErrorIs(t, s.DeleteTransition(ctx, tr.ID), ErrNotFound)
}

func TestTransitionValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedPipeline(t, s, "a", SeedOptions{})
	b := seedPipeline(t, s, "b", SeedOptions{})

	_, err := s.CreateTransition(ctx, TransitionInput{
		ProjectID: a.project.ID, FromQueueID: a.todo.ID, ToQueueID: b.todo.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.CreateTransition(ctx, TransitionInput{
		ProjectID: a.project.ID, FromQueueID: a.todo.ID, ToQueueID: "missing",
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CreateTransition(ctx, TransitionInput{
		ProjectID: a.project.ID, FromQueueID: a.todo.ID, ToQueueID: a.done.ID, ActorType: "robot",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Cycles are fine.
	_, err = s.CreateTransition(ctx, TransitionInput{
		ProjectID: a.project.ID, FromQueueID: a.done.ID, ToQueueID: a.todo.ID,
	})
	assert.NoError(t, err)
}

func TestMatchQueue(t *testing.T) {
	queues := []*Queue{{Name: "Todo"}, {Name: "In Progress"}, {Name: "needs-review"}}

	assert.Equal(t, "In Progress", MatchQueue(queues, "in progress").Name)
	assert.Equal(t, "needs-review", MatchQueue(queues, " NEEDS-REVIEW ").Name)
	assert.Nil(t, MatchQueue(queues, "Done"))
}

func TestProjectCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, ProjectInput{Name: "alpha", Config: ProjectConfig{StrictTransitions: true}})
	require.NoError(t, err)

	_, err = s.CreateProject(ctx, ProjectInput{Name: "alpha"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.CreateProject(ctx, ProjectInput{Name: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := s.ResolveProject(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.True(t, got.Config.StrictTransitions)

	got, err = s.ResolveProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)

	pinned := true
	prompt := "You are careful."
	got, err = s.UpdateProject(ctx, p.ID, ProjectUpdate{Pinned: &pinned, SystemPrompt: &prompt})
	require.NoError(t, err)
	assert.True(t, got.Pinned)
	assert.Equal(t, "You are careful.", *got.SystemPrompt)

	_, err = s.CreateProject(ctx, ProjectInput{Name: "beta"})
	require.NoError(t, err)
	require.NoError(t, s.TouchProject(ctx, p.ID))

	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name, "pinned first")
	assert.NotNil(t, list[0].LastAccessedAt)

	require.NoError(t, s.DeleteProject(ctx, p.ID))
	_, err = s.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProjectCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedPipeline(t, s, "doomed", SeedOptions{BackEdges: true})
	task := newTask(t, s, p, p.todo, "Gone soon", 0)

	require.NoError(t, s.DeleteProject(ctx, p.project.ID))

	_, err := s.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	queues, err := s.ListQueues(ctx, p.project.ID)
	require.NoError(t, err)
	assert.Empty(t, queues)
	ts, err := s.ListTransitions(ctx, p.project.ID)
	require.NoError(t, err)
	assert.Empty(t, ts)
}

func queueNames(qs []*Queue) []string {
	names := make([]string, len(qs))
	for i, q := range qs {
		names[i] = q.Name
	}
	return names
}
