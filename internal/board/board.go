package board

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/openlares/openlares-sub000/internal/db"
)

const (
	defaultColumnWidth = 28
	minColumnWidth     = 16
)

// Source is the part of the store the board reads.
type Source interface {
	GetProject(ctx context.Context, id string) (*db.Project, error)
	ListQueues(ctx context.Context, projectID string) ([]*db.Queue, error)
	ListTasks(ctx context.Context, f db.TaskFilter) ([]*db.Task, error)
}

// Snapshot is a project's board at one point in time.
type Snapshot struct {
	Project *db.Project
	Queues  []*db.Queue
	// Tasks maps a queue ID to its tasks, most urgent first.
	Tasks map[string][]*db.Task
}

// Load reads the board of a project.
func Load(ctx context.Context, src Source, projectID string) (*Snapshot, error) {
	project, err := src.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	queues, err := src.ListQueues(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading queues: %w", err)
	}
	tasks, err := src.ListTasks(ctx, db.TaskFilter{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}

	snap := &Snapshot{Project: project, Queues: queues, Tasks: make(map[string][]*db.Task, len(queues))}
	for _, t := range tasks {
		snap.Tasks[t.QueueID] = append(snap.Tasks[t.QueueID], t)
	}
	return snap, nil
}

// Counts returns the number of tasks, claimed tasks and errored tasks.
func (s *Snapshot) Counts() (total, claimed, errored int) {
	for _, tasks := range s.Tasks {
		for _, t := range tasks {
			total++
			if t.Claimed() {
				claimed++
			}
			if t.Errored() {
				errored++
			}
		}
	}
	return total, claimed, errored
}

// Summary is a one-line description of the board.
func (s *Snapshot) Summary() string {
	total, claimed, errored := s.Counts()
	return fmt.Sprintf("%s: %d task(s), %d claimed, %d errored", s.Project.Name, total, claimed, errored)
}

// Render draws the board as side-by-side columns fitting width. A width of
// zero or less uses a fixed column width. focus highlights one column; pass
// -1 for none.
func Render(s *Snapshot, width, focus int) string {
	if len(s.Queues) == 0 {
		return MutedStyle.Render("No queues.")
	}

	colWidth := defaultColumnWidth
	if width > 0 {
		colWidth = max(width/len(s.Queues)-2, minColumnWidth)
	}

	bodies := make([]string, len(s.Queues))
	height := 0
	for i, q := range s.Queues {
		bodies[i] = renderColumn(q, s.Tasks[q.ID], colWidth)
		height = max(height, lipgloss.Height(bodies[i]))
	}

	cols := make([]string, len(s.Queues))
	for i, body := range bodies {
		cols[i] = ColumnBorder(i == focus).
			Width(colWidth).
			Height(height).
			Render(body)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func renderColumn(q *db.Queue, tasks []*db.Task, width int) string {
	var sb strings.Builder

	header := HeaderStyle.Foreground(OwnerColor(q.OwnerType)).
		Render(Truncate(q.Name, width-6))
	sb.WriteString(header)
	sb.WriteString(MutedStyle.Render(fmt.Sprintf(" (%d)", len(tasks))))
	sb.WriteString("\n")

	owner := string(q.OwnerType)
	if q.AgentLimit > 0 {
		owner += fmt.Sprintf(" · limit %d", q.AgentLimit)
	}
	sb.WriteString(MutedStyle.Render(owner))
	sb.WriteString("\n\n")

	if len(tasks) == 0 {
		sb.WriteString(MutedStyle.Render("(empty)"))
		return sb.String()
	}

	for i, t := range tasks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(TaskIcon(t))
		sb.WriteString(" ")
		sb.WriteString(Truncate(t.Title, width-2))
		switch {
		case t.Errored():
			sb.WriteString("\n  ")
			sb.WriteString(ErrorStyle.Render(Truncate(*t.Error, width-2)))
		case t.Claimed():
			sb.WriteString("\n  ")
			sb.WriteString(InfoStyle.Render(Truncate("@"+*t.AssignedAgent, width-2)))
		}
	}
	return sb.String()
}
