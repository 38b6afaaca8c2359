// Package dashboard provides a totals row and a per-kind table for the
// loopviz surface.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/loopviz/loopviz/internal/graph"
	"github.com/loopviz/loopviz/internal/tui/theme"
)

// Model holds the dashboard state.
type Model struct {
	Width    int
	stats    []graph.KindStat
	totals   graph.KindStat
	counters graph.Counters
	gen      int
}

// New creates a dashboard model.
func New() Model {
	return Model{}
}

// SetGraph copies the aggregates it renders from g.
func (m *Model) SetGraph(g *graph.Model) {
	m.stats = g.KindStats()
	m.totals = g.Totals()
	m.counters = g.Counters()
	m.gen = g.Generation()
}

// View renders the totals row and the kind table.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsRow(width),
		m.renderKindTable(width),
	)
}

func (m Model) renderStatsRow(width int) string {
	t := m.totals
	statStyle := lipgloss.NewStyle().Padding(0, 1)

	stats := []string{
		statStyle.Foreground(theme.ColorBright).Render(fmt.Sprintf("Resources: %d", t.Total)),
		statStyle.Foreground(theme.ColorRunnable).Render(fmt.Sprintf("Live: %d", t.Live)),
		statStyle.Foreground(theme.ColorRunning).Render(fmt.Sprintf("Running: %d", t.Running)),
		statStyle.Foreground(theme.ColorPromise).Render(fmt.Sprintf("Resolved: %d", t.Resolved)),
		statStyle.Foreground(theme.ColorDimmed).Render(fmt.Sprintf("Runs: %s", formatCount(t.Runs))),
		statStyle.Foreground(theme.ColorDimmed).Render(fmt.Sprintf("Session: %d", m.gen)),
	}
	if c := m.counters; c.Orphans+c.Malformed > 0 {
		stats = append(stats, statStyle.Foreground(theme.ColorWarning).Render(
			fmt.Sprintf("Orphans: %d  Malformed: %d", c.Orphans, c.Malformed)))
	}

	content := strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) renderKindTable(width int) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBright).
		Render("  Resource kinds")

	if len(m.stats) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  No resources"),
		)
	}

	colKind := 22
	colNum := 9
	colDur := 11

	dimStyle := lipgloss.NewStyle().Foreground(theme.ColorDimmed)
	brightStyle := lipgloss.NewStyle().Foreground(theme.ColorBright).Bold(true)

	tableHeader := fmt.Sprintf("  %-*s %*s %*s %*s %*s %*s %*s %*s",
		colKind, "Kind",
		colNum, "Total",
		colNum, "Live",
		colNum, "Running",
		colNum, "Resolved",
		colNum, "Runs",
		colDur, "Run time",
		colDur, "Avg run",
	)
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
		dimStyle.Render("  " + strings.Repeat("─", min(width-4, colKind+5*colNum+2*colDur+7))),
	}

	num := func(n int) string {
		return brightStyle.Width(colNum).Align(lipgloss.Right).Render(formatCount(n))
	}
	dur := func(d time.Duration) string {
		return dimStyle.Width(colDur).Align(lipgloss.Right).Render(formatDuration(d))
	}

	row := func(k graph.KindStat, kindStr string) string {
		return fmt.Sprintf("  %s %s %s %s %s %s %s %s",
			kindStr, num(k.Total), num(k.Live), num(k.Running), num(k.Resolved),
			num(k.Runs), dur(k.RunTime), dur(k.AvgRun()))
	}

	for _, k := range m.stats {
		name := k.Kind
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > colKind-1 {
			name = name[:colKind-2] + "…"
		}
		kindStr := lipgloss.NewStyle().Foreground(theme.KindColor(k.Kind)).Width(colKind).Render(name)
		lines = append(lines, row(k, kindStr))
	}

	lines = append(lines, dimStyle.Render("  "+strings.Repeat("─", min(width-4, colKind+5*colNum+2*colDur+7))))
	lines = append(lines, row(m.totals, theme.StyleHeader.Width(colKind).Render("Total")))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// formatCount formats large numbers with K/M suffixes.
func formatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "-"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
