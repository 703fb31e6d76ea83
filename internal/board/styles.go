// Package board renders a project's queues and tasks as a terminal kanban
// board, statically or as a live view.
package board

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/openlares/openlares-sub000/internal/db"
)

// Colors used by the board.
var (
	ColorPrimary   = lipgloss.Color("12")  // Blue
	ColorSecondary = lipgloss.Color("245") // Gray
	ColorSuccess   = lipgloss.Color("42")  // Green
	ColorWarning   = lipgloss.Color("226") // Yellow
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("14")  // Cyan
	ColorMuted     = lipgloss.Color("240") // Dark gray
	ColorAssistant = lipgloss.Color("213") // Pink
)

var (
	// HeaderStyle is used for column headers.
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// TitleStyle is for the title bar of the live view.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Background(lipgloss.Color("236"))
)

// TaskSymbol returns the plain status symbol of a task.
func TaskSymbol(t *db.Task) string {
	switch {
	case t.Errored():
		return "✗"
	case t.Claimed():
		return "●"
	default:
		return "○"
	}
}

// TaskIcon returns the styled status symbol of a task.
func TaskIcon(t *db.Task) string {
	style := lipgloss.NewStyle().Foreground(ColorSecondary)
	switch {
	case t.Errored():
		style = style.Foreground(ColorError)
	case t.Claimed():
		style = style.Foreground(ColorWarning)
	}
	return style.Render(TaskSymbol(t))
}

// OwnerColor returns the header color for a queue owner.
func OwnerColor(o db.OwnerType) lipgloss.Color {
	if o == db.OwnerAssistant {
		return ColorAssistant
	}
	return ColorSuccess
}

// ColumnBorder returns the border style of a queue column.
func ColumnBorder(focused bool) lipgloss.Style {
	borderColor := ColorMuted
	if focused {
		borderColor = ColorPrimary
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor)
}

// Truncate shortens s to maxLen runes, ending with "..." when cut.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:max(maxLen, 0)])
	}
	return string(r[:maxLen-3]) + "..."
}
