// Package timeline renders the resource graph as rows grouped by zone
// (live, pending, destroyed), each row with a lifetime bar scaled to the
// snapshot's time span.
package timeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/loopviz/loopviz/internal/graph"
	"github.com/loopviz/loopviz/internal/tui/theme"
)

// Model holds the timeline view state.
type Model struct {
	live    []graph.NodeView
	pending []graph.NodeView
	done    []graph.NodeView

	start, end time.Time

	SelectedIdx int
	ActiveZone  Zone

	Width  int
	Height int
}

// New creates a timeline model.
func New() Model {
	return Model{}
}

// SetSnapshot rebuilds zone groupings from s.
func (m *Model) SetSnapshot(s graph.Snapshot) {
	m.live, m.pending, m.done = nil, nil, nil
	for _, v := range s.Nodes {
		switch Classify(v) {
		case ZoneLive:
			m.live = append(m.live, v)
		case ZonePending:
			m.pending = append(m.pending, v)
		case ZoneDone:
			m.done = append(m.done, v)
		}
	}
	m.start, m.end = s.Span()

	// Busiest first, then most recently created.
	sort.SliceStable(m.live, func(i, j int) bool {
		if m.live[i].OpenRuns != m.live[j].OpenRuns {
			return m.live[i].OpenRuns > m.live[j].OpenRuns
		}
		return m.live[i].RunTime > m.live[j].RunTime
	})
	sort.SliceStable(m.pending, func(i, j int) bool {
		return m.pending[i].CreatedAt.After(m.pending[j].CreatedAt)
	})
	sort.SliceStable(m.done, func(i, j int) bool {
		return m.done[i].DestroyedAt.After(m.done[j].DestroyedAt)
	})

	m.clampSelection()
}

// Counts returns the number of nodes in each zone.
func (m Model) Counts() (live, pending, done int) {
	return len(m.live), len(m.pending), len(m.done)
}

// MoveDown advances the selection cursor within the active zone.
func (m *Model) MoveDown() {
	if count := len(m.zoneNodes(m.ActiveZone)); count > 0 {
		m.SelectedIdx = (m.SelectedIdx + 1) % count
	}
}

// MoveUp moves the selection cursor back within the active zone.
func (m *Model) MoveUp() {
	if count := len(m.zoneNodes(m.ActiveZone)); count > 0 {
		m.SelectedIdx = (m.SelectedIdx - 1 + count) % count
	}
}

// CycleZone advances to the next zone.
func (m *Model) CycleZone() {
	m.ActiveZone = (m.ActiveZone + 1) % 3
	m.SelectedIdx = 0
}

// JumpToZone sets the active zone directly.
func (m *Model) JumpToZone(z Zone) {
	m.ActiveZone = z
	m.SelectedIdx = 0
}

// Selected returns the currently selected node, if any.
func (m Model) Selected() (graph.NodeView, bool) {
	nodes := m.zoneNodes(m.ActiveZone)
	if m.SelectedIdx >= 0 && m.SelectedIdx < len(nodes) {
		return nodes[m.SelectedIdx], true
	}
	return graph.NodeView{}, false
}

// View renders all three zones.
func (m Model) View() string {
	width := m.Width
	if width < 60 {
		width = 60
	}

	var sections []string
	span := ""
	if d := m.end.Sub(m.start); d > 0 {
		span = " " + d.Round(time.Millisecond).String()
	}
	headerText := "═══ LIVE "
	fillLen := width - len(headerText) - len(span) - 2
	if fillLen < 4 {
		fillLen = 4
	}
	sections = append(sections, theme.StyleHeader.Render(headerText+strings.Repeat("═", fillLen)+span))
	sections = append(sections, m.renderZone(ZoneLive, "  No live resources", width)...)

	sections = append(sections, theme.StyleDimmed.Render("─── PENDING "+strings.Repeat("─", width-14)))
	sections = append(sections, m.renderZone(ZonePending, "  Nothing waiting to run", width)...)

	sections = append(sections, theme.StyleDimmed.Render("─── DESTROYED "+strings.Repeat("─", width-16)))
	sections = append(sections, m.renderZone(ZoneDone, "  No destroyed resources", width)...)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderZone(z Zone, empty string, width int) []string {
	nodes := m.zoneNodes(z)
	if len(nodes) == 0 {
		return []string{theme.StyleDimmed.Render(empty)}
	}
	limit := len(nodes)
	if m.Height > 0 {
		// Split the available rows between zones, favouring the active one.
		per := max(3, (m.Height-6)/3)
		if z == m.ActiveZone {
			per = max(per, m.Height-6-2*3)
		}
		limit = min(limit, per)
	}
	first := 0
	if z == m.ActiveZone && m.SelectedIdx >= limit {
		first = m.SelectedIdx - limit + 1
	}
	lines := make([]string, 0, limit+1)
	for i := first; i < first+limit && i < len(nodes); i++ {
		selected := z == m.ActiveZone && i == m.SelectedIdx
		lines = append(lines, renderRow(nodes[i], m.start, m.end, selected, width))
	}
	if hidden := len(nodes) - limit; hidden > 0 {
		lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  … %d more", hidden)))
	}
	return lines
}

func (m Model) zoneNodes(z Zone) []graph.NodeView {
	switch z {
	case ZoneLive:
		return m.live
	case ZonePending:
		return m.pending
	case ZoneDone:
		return m.done
	default:
		return nil
	}
}

func (m *Model) clampSelection() {
	count := len(m.zoneNodes(m.ActiveZone))
	if count == 0 {
		m.SelectedIdx = 0
	} else if m.SelectedIdx >= count {
		m.SelectedIdx = count - 1
	}
}
