package main

import (
	"path/filepath"
	"testing"

	"github.com/openlares/openlares-sub000/internal/db"
)

func run(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(t.Context()); err != nil {
		t.Fatalf("openlares %v: %v", args, err)
	}
}

func TestTaskLifecycle(t *testing.T) {
	dir := resetGlobals(t)
	dbURL = "sqlite://" + filepath.Join(dir, "cli.db")
	ctx := t.Context()

	run(t, "migrate")
	run(t, "project", "seed", "demo", "--back-edges")
	run(t, "add", "Write docs", "--project", "demo", "--priority", "3")

	p, err := store.GetProjectByName(ctx, "demo")
	if err != nil {
		t.Fatalf("project not created: %v", err)
	}
	tasks, err := store.ListTasks(ctx, db.TaskFilter{ProjectID: p.ID})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected one task, got %v (err %v)", tasks, err)
	}
	task := tasks[0]
	if task.Priority != 3 {
		t.Errorf("expected priority 3, got %d", task.Priority)
	}

	run(t, "move", task.ID, "In", "Progress", "--note", "start")
	moved, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	inProgress, err := store.FindQueueByName(ctx, p.ID, "In Progress")
	if err != nil {
		t.Fatal(err)
	}
	if moved.QueueID != inProgress.ID {
		t.Errorf("expected task in In Progress, got queue %s", moved.QueueID)
	}

	run(t, "claim", task.ID, "--agent", "main")
	claimed, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !claimed.Claimed() || *claimed.AssignedAgent != "main" {
		t.Errorf("expected task claimed by main, got %+v", claimed.AssignedAgent)
	}

	run(t, "error", "set", task.ID, "needs", "a", "human")
	errored, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !errored.Errored() || *errored.Error != "needs a human" {
		t.Errorf("expected error to be set, got %+v", errored.Error)
	}
	if errored.Claimed() {
		t.Error("expected error to release the claim")
	}

	run(t, "error", "clear", task.ID)
	cleared, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cleared.Errored() {
		t.Error("expected error to be cleared")
	}

	history, err := store.GetTaskHistory(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) == 0 {
		t.Error("expected the move to be recorded in history")
	}
}
