// Package debug provides a scrollable event log overlay.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/loopviz/loopviz/internal/graph"
	"github.com/loopviz/loopviz/internal/tui/theme"
)

const maxEntries = 200

// Entry is a single log line.
type Entry struct {
	Time    time.Time
	Kind    string // "ws", "evt", "stat", "err", "nav"
	Message string
}

// Model holds debug log state.
type Model struct {
	Entries []Entry
	Offset  int    // scroll offset from the newest visible entry
	Filter  string // entry kind to show, empty for all
}

// New creates an empty debug model.
func New() Model {
	return Model{}
}

// Add appends a log entry and caps the buffer.
func (m *Model) Add(kind, message string) {
	m.push(Entry{Time: time.Now(), Kind: kind, Message: message})
}

// AddGraphEntry appends one line of the presentation model's log.
func (m *Model) AddGraphEntry(e graph.Entry) {
	if e.Kind == graph.EntryStatus {
		msg := e.Status
		if e.Connection != "" {
			msg += " " + e.Connection
		}
		m.push(Entry{Time: e.At, Kind: "stat", Message: msg})
		return
	}
	ev := e.Event
	msg := fmt.Sprintf("%-14s #%d", ev.EventType, ev.ResourceID)
	if ev.Kind != "" {
		msg += " " + ev.Kind
	}
	if ev.TriggerID != 0 {
		msg += fmt.Sprintf(" <- #%d", ev.TriggerID)
	}
	m.push(Entry{Time: e.At, Kind: "evt", Message: msg})
}

func (m *Model) push(e Entry) {
	m.Entries = append(m.Entries, e)
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// Clear drops every entry.
func (m *Model) Clear() {
	m.Entries = nil
	m.Offset = 0
}

// Filters the log can be narrowed to, in cycle order. Empty shows all.
var Filters = []string{"", "evt", "stat", "err"}

// CycleFilter advances to the next kind filter.
func (m *Model) CycleFilter() {
	for i, f := range Filters {
		if f == m.Filter {
			m.Filter = Filters[(i+1)%len(Filters)]
			m.Offset = 0
			return
		}
	}
	m.Filter = ""
}

// visible returns the entries passing the filter.
func (m Model) visible() []Entry {
	if m.Filter == "" {
		return m.Entries
	}
	var out []Entry
	for _, e := range m.Entries {
		if e.Kind == m.Filter {
			out = append(out, e)
		}
	}
	return out
}

// ScrollUp moves the viewport towards older entries.
func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.visible())-1, 0))
}

// ScrollDown moves the viewport towards the newest entry.
func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

// View renders the log as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	rows := max(height-6, 3)
	entries := m.visible()

	label := "all"
	if m.Filter != "" {
		label = m.Filter
	}
	title := theme.StyleHeader.Render(" EVENT LOG ") + theme.StyleDimmed.Render(" ["+label+"]")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  f:filter  c:clear  esc:close  %d/%d entries", len(entries), len(m.Entries)))

	panel := lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)

	if len(entries) == 0 {
		empty := theme.StyleDimmed.Render("  No events recorded yet.")
		return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", empty, "", help))
	}

	end := max(len(entries)-m.Offset, 0)
	start := max(end-rows, 0)
	lines := make([]string, 0, end-start)
	for _, e := range entries[start:end] {
		lines = append(lines, renderLine(e, innerW))
	}

	more := ""
	if m.Offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.Offset))
	}
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help))
}

func renderLine(e Entry, width int) string {
	msg := e.Message
	if room := width - 23; room > 0 && len(msg) > width-20 {
		msg = msg[:room] + "..."
	}
	return theme.StyleDimmed.Render(e.Time.Format("15:04:05.000")) + " " +
		lipgloss.NewStyle().Foreground(kindToColor(e.Kind)).Width(4).Render(e.Kind) + " " + msg
}

func kindToColor(kind string) lipgloss.Color {
	switch kind {
	case "ws":
		return theme.ColorRunnable
	case "evt":
		return theme.ColorPromise
	case "stat":
		return theme.ColorWarning
	case "err":
		return theme.ColorDanger
	case "nav":
		return theme.ColorCreated
	default:
		return theme.ColorDimmed
	}
}
