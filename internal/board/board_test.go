package board

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/openlares/openlares-sub000/internal/db"
)

// fakeSource is an in-memory Source for testing.
type fakeSource struct {
	project *db.Project
	queues  []*db.Queue
	tasks   []*db.Task
	err     error
}

func (f *fakeSource) GetProject(_ context.Context, id string) (*db.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.project, nil
}

func (f *fakeSource) ListQueues(_ context.Context, projectID string) ([]*db.Queue, error) {
	return f.queues, nil
}

func (f *fakeSource) ListTasks(_ context.Context, filter db.TaskFilter) ([]*db.Task, error) {
	return f.tasks, nil
}

func str(s string) *string { return &s }

func newFakeSource() *fakeSource {
	return &fakeSource{
		project: &db.Project{ID: "p1", Name: "website"},
		queues: []*db.Queue{
			{ID: "q1", Name: "Todo", OwnerType: db.OwnerHuman},
			{ID: "q2", Name: "In Progress", OwnerType: db.OwnerAssistant, AgentLimit: 2},
			{ID: "q3", Name: "Done", OwnerType: db.OwnerHuman},
		},
		tasks: []*db.Task{
			{ID: "t1", QueueID: "q1", Title: "Write copy"},
			{ID: "t2", QueueID: "q2", Title: "Fix footer", AssignedAgent: str("main")},
			{ID: "t3", QueueID: "q2", Title: "Resize logo", Error: str("Agent did not provide routing directive")},
		},
	}
}

// assertModel asserts the tea.Model is a Model and returns it.
func assertModel(t *testing.T, teaModel tea.Model) Model {
	t.Helper()
	m, ok := teaModel.(Model)
	if !ok {
		t.Fatal("expected Model type from Update")
	}
	return m
}

func TestLoadGroupsTasksByQueue(t *testing.T) {
	snap, err := Load(context.Background(), newFakeSource(), "p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Tasks["q1"]) != 1 || len(snap.Tasks["q2"]) != 2 || len(snap.Tasks["q3"]) != 0 {
		t.Errorf("unexpected grouping: %v", snap.Tasks)
	}

	total, claimed, errored := snap.Counts()
	if total != 3 || claimed != 1 || errored != 1 {
		t.Errorf("Counts() = %d, %d, %d; want 3, 1, 1", total, claimed, errored)
	}
	if got := snap.Summary(); got != "website: 3 task(s), 1 claimed, 1 errored" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestLoadPropagatesErrors(t *testing.T) {
	src := newFakeSource()
	src.err = db.ErrNotFound
	if _, err := Load(context.Background(), src, "p1"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRender(t *testing.T) {
	snap, err := Load(context.Background(), newFakeSource(), "p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	out := Render(snap, 0, -1)
	for _, want := range []string{
		"Todo (1)",
		"In Progress (2)",
		"Done (0)",
		"assistant · limit 2",
		"Write copy",
		"Fix footer",
		"@main",
		"(empty)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("board missing %q:\n%s", want, out)
		}
	}
}

func TestRenderNoQueues(t *testing.T) {
	out := Render(&Snapshot{Project: &db.Project{Name: "x"}}, 80, -1)
	if !strings.Contains(out, "No queues.") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestTaskSymbol(t *testing.T) {
	tests := []struct {
		name string
		task *db.Task
		want string
	}{
		{"idle", &db.Task{}, "○"},
		{"claimed", &db.Task{AssignedAgent: str("main")}, "●"},
		{"errored", &db.Task{Error: str("x")}, "✗"},
		{"errored wins", &db.Task{AssignedAgent: str("main"), Error: str("x")}, "✗"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TaskSymbol(tt.task); got != tt.want {
				t.Errorf("TaskSymbol() = %q, want %q", got, tt.want)
			}
			if TaskIcon(tt.task) == "" {
				t.Error("expected non-empty icon")
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
		{"ação rápida", 6, "açã..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestModelLoadsSnapshot(t *testing.T) {
	model := NewModel(context.Background(), newFakeSource(), "p1", 0)
	if model.refreshInterval != DefaultRefreshInterval {
		t.Errorf("expected default refresh interval, got %s", model.refreshInterval)
	}
	if model.View() != "Loading..." {
		t.Errorf("expected loading view, got %q", model.View())
	}

	msg := model.refresh()()
	newModel, _ := model.Update(msg)
	m := assertModel(t, newModel)
	if m.snap == nil || len(m.snap.Queues) != 3 {
		t.Fatal("expected snapshot to be loaded")
	}

	newModel, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = assertModel(t, newModel)
	view := m.View()
	if !strings.Contains(view, "website: 3 task(s)") {
		t.Errorf("view missing summary:\n%s", view)
	}
}

func TestModelRefreshError(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("connection refused")
	model := NewModel(context.Background(), src, "p1", 0)

	newModel, _ := model.Update(model.refresh()())
	m := assertModel(t, newModel)
	if !strings.Contains(m.errorMsg, "connection refused") {
		t.Errorf("expected error message, got %q", m.errorMsg)
	}
	if !strings.Contains(m.View(), "connection refused") {
		t.Errorf("expected error in view, got %q", m.View())
	}
}

func TestModelFocusNavigation(t *testing.T) {
	model := NewModel(context.Background(), newFakeSource(), "p1", 0)
	newModel, _ := model.Update(model.refresh()())
	m := assertModel(t, newModel)

	for range 5 {
		newModel, _ = m.Update(tea.KeyMsg{Type: tea.KeyRight})
		m = assertModel(t, newModel)
	}
	if m.focus != 2 {
		t.Errorf("expected focus clamped at 2, got %d", m.focus)
	}

	newModel, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'h'}})
	m = assertModel(t, newModel)
	if m.focus != 1 {
		t.Errorf("expected focus 1, got %d", m.focus)
	}
}

func TestModelQuit(t *testing.T) {
	model := NewModel(context.Background(), newFakeSource(), "p1", 0)
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
