package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/loopviz/loopviz/internal/graph"
	"github.com/loopviz/loopviz/internal/tui/theme"
)

const (
	colID    = 8
	colKind  = 16
	colRuns  = 6
	minBar   = 10
	fixedCol = 2 + 3 + colID + colKind + colRuns + 4
)

// renderRow draws one node: state glyph, id, kind, run count and a bar of
// its lifetime across the snapshot span.
func renderRow(v graph.NodeView, start, end time.Time, selected bool, width int) string {
	cursor := "  "
	if selected {
		cursor = lipgloss.NewStyle().Foreground(theme.ColorBright).Render("▸ ")
	}
	state := v.State.String()
	glyph := lipgloss.NewStyle().Foreground(theme.StateColor(state)).Width(3).Render(theme.StateGlyph(state))

	idStyle := lipgloss.NewStyle().Width(colID)
	if selected {
		idStyle = idStyle.Inherit(theme.StyleSelected)
	}
	id := idStyle.Render(fmt.Sprintf("#%d", v.ID))

	kind := v.Kind
	if len(kind) > colKind-1 {
		kind = kind[:colKind-2] + "…"
	}
	kindStr := lipgloss.NewStyle().Foreground(theme.KindColor(v.Kind)).Width(colKind).Render(kind)
	runs := theme.StyleDimmed.Width(colRuns).Align(lipgloss.Right).Render(fmt.Sprintf("%dx", v.Runs))

	barWidth := width - fixedCol
	if barWidth < minBar {
		barWidth = minBar
	}
	bar := renderBar(v, start, end, barWidth)

	return cursor + glyph + id + kindStr + runs + "  " + bar
}

// renderBar maps the node's lifetime onto width cells. Cells covered by a
// callback interval are solid; the rest of the lifetime is shaded.
func renderBar(v graph.NodeView, start, end time.Time, width int) string {
	cells := barCells(v, start, end, width)
	color := theme.KindColor(v.Kind)
	if v.State == graph.Destroyed {
		color = theme.ColorDestroyed
	}
	on := lipgloss.NewStyle().Foreground(color)
	off := lipgloss.NewStyle().Foreground(theme.ColorBorder)

	var b strings.Builder
	for _, c := range cells {
		switch c {
		case '█':
			b.WriteString(on.Render("█"))
		case '░':
			b.WriteString(off.Render("░"))
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// barCells is the uncolored form of renderBar.
func barCells(v graph.NodeView, start, end time.Time, width int) []rune {
	cells := []rune(strings.Repeat(" ", width))
	span := end.Sub(start)
	pos := func(t time.Time) int {
		if span <= 0 {
			return 0
		}
		p := int(float64(t.Sub(start)) / float64(span) * float64(width-1))
		return max(0, min(p, width-1))
	}

	last := end
	if !v.DestroyedAt.IsZero() {
		last = v.DestroyedAt
	}
	for i := pos(v.CreatedAt); i <= pos(last); i++ {
		cells[i] = '░'
	}
	for _, iv := range v.Intervals {
		for i := pos(iv.Start); i <= pos(iv.End); i++ {
			cells[i] = '█'
		}
	}
	if v.OpenRuns > 0 {
		cells[pos(last)] = '█'
	}
	if v.Resolved() {
		cells[pos(v.ResolvedAt)] = '◆'
	}
	return cells
}
