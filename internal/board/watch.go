package board

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DefaultRefreshInterval is how often the live view reloads the board.
const DefaultRefreshInterval = 2 * time.Second

// KeyMap defines the key bindings of the live view.
type KeyMap struct {
	Quit    key.Binding
	Refresh key.Binding
	Left    key.Binding
	Right   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Left: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("h/←", "prev queue"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("l/→", "next queue"),
		),
	}
}

// Model is the live board view.
type Model struct {
	ctx       context.Context
	src       Source
	projectID string

	snap      *Snapshot
	errorMsg  string
	updatedAt time.Time
	focus     int

	width  int
	height int

	keys            KeyMap
	refreshInterval time.Duration
}

// NewModel creates a live view of one project. A non-positive interval
// selects DefaultRefreshInterval.
func NewModel(ctx context.Context, src Source, projectID string, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return Model{
		ctx:             ctx,
		src:             src,
		projectID:       projectID,
		keys:            DefaultKeyMap(),
		refreshInterval: interval,
	}
}

// Watch runs the live view until the user quits or ctx is done.
func Watch(ctx context.Context, src Source, projectID string, interval time.Duration) error {
	p := tea.NewProgram(NewModel(ctx, src, projectID, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// tickMsg is sent on each refresh interval.
type tickMsg time.Time

// snapshotMsg carries a reloaded board.
type snapshotMsg struct {
	snap *Snapshot
	err  error
	at   time.Time
}

// Init loads the board and starts the refresh timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.refresh())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		snap, err := Load(m.ctx, m.src, m.projectID)
		return snapshotMsg{snap: snap, err: err, at: time.Now()}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.refresh()
		case key.Matches(msg, m.keys.Left):
			if m.focus > 0 {
				m.focus--
			}
			return m, nil
		case key.Matches(msg, m.keys.Right):
			if m.snap != nil && m.focus < len(m.snap.Queues)-1 {
				m.focus++
			}
			return m, nil
		}

	case tickMsg:
		return m, tea.Batch(m.tick(), m.refresh())

	case snapshotMsg:
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("Error refreshing board: %v", msg.err)
			return m, nil
		}
		m.errorMsg = ""
		m.snap = msg.snap
		m.updatedAt = msg.at
		if m.focus >= len(m.snap.Queues) {
			m.focus = max(0, len(m.snap.Queues)-1)
		}
		return m, nil
	}

	return m, nil
}

// View renders the live view.
func (m Model) View() string {
	if m.width == 0 || m.snap == nil {
		if m.errorMsg != "" {
			return ErrorStyle.Render(m.errorMsg)
		}
		return "Loading..."
	}

	var sb strings.Builder
	sb.WriteString(TitleStyle.Width(m.width).Render(m.snap.Summary()))
	sb.WriteString("\n")
	sb.WriteString(Render(m.snap, m.width, m.focus))
	sb.WriteString("\n")
	sb.WriteString(m.renderStatusBar())
	return sb.String()
}

func (m Model) renderStatusBar() string {
	left := MutedStyle.Render("updated " + m.updatedAt.Format("15:04:05"))
	if m.errorMsg != "" {
		left = ErrorStyle.Render(m.errorMsg)
	}
	right := HelpStyle.Render("[h/l] queue  [r] refresh  [q] quit")

	padding := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return StatusBarStyle.Width(m.width).Render(
		left + strings.Repeat(" ", padding) + right,
	)
}
