package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/loopviz/loopviz/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	// Surface is whether this terminal is attached to the relay.
	Surface bool
	Retry   time.Duration
	// Link is the recorder link status reported by the relay.
	Link       string
	Connection string
	Process    string

	Live      int
	Destroyed int
	Orphans   uint64

	Width int
}

// New creates a status bar model.
func New() Model {
	return Model{Link: "disconnected"}
}

// SetCounts updates the node counts.
func (m *Model) SetCounts(live, destroyed int, orphans uint64) {
	m.Live = live
	m.Destroyed = destroyed
	m.Orphans = orphans
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var surfaceStr string
	switch {
	case m.Surface:
		surfaceStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Relay")
	case m.Retry > 0:
		surfaceStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(fmt.Sprintf("○ Relay (retry %s)", m.Retry))
	default:
		surfaceStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	link := "recorder " + m.Link
	if m.Connection != "" {
		link += " " + shortID(m.Connection)
	}
	linkStr := lipgloss.NewStyle().Foreground(theme.LinkColor(m.Link)).Render(link)

	counts := fmt.Sprintf("%d live  %d destroyed", m.Live, m.Destroyed)
	if m.Orphans > 0 {
		counts += fmt.Sprintf("  %d orphan events", m.Orphans)
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := surfaceStr + sep + linkStr + sep + counts
	if m.Process != "" {
		content += sep + theme.StyleDimmed.Render(m.Process)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
