// Package detail renders the resource info flyout overlay.
package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/loopviz/loopviz/internal/graph"
	"github.com/loopviz/loopviz/internal/tui/theme"
)

const (
	panelWidth    = 72
	labelWidth    = 14
	maxStackLines = 8
	maxIntervals  = 6
	maxChildren   = 12
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)

	styleSectionHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorDimmed)
)

// Model holds the state for the detail overlay.
type Model struct {
	Node graph.NodeView
	// Ancestry is the trigger chain from the node's parent up to the root.
	Ancestry []int64
	// Origin is the time offsets are shown relative to. Zero means the
	// node's own creation.
	Origin time.Time
}

// New creates a detail model for v.
func New(v graph.NodeView, ancestry []int64) Model {
	return Model{Node: v, Ancestry: ancestry}
}

// View renders the detail panel.
func (m Model) View() string {
	return stylePanel.Width(panelWidth).Render(m.renderInner())
}

func (m Model) renderInner() string {
	v := m.Node
	origin := m.Origin
	if origin.IsZero() {
		origin = v.CreatedAt
	}
	var b strings.Builder

	b.WriteString(styleTitle.Render(fmt.Sprintf("Resource #%d", v.ID)) + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")

	writeRow(&b, "Kind", lipgloss.NewStyle().Foreground(theme.KindColor(v.Kind)).Render(v.Kind))
	state := v.State.String()
	writeRow(&b, "State", lipgloss.NewStyle().Foreground(theme.StateColor(state)).
		Render(theme.StateGlyph(state)+" "+state))
	writeRow(&b, "Trigger", triggerLabel(v))
	if len(m.Ancestry) > 0 {
		writeRow(&b, "Ancestry", formatChain(m.Ancestry))
	}

	b.WriteString("\n")

	writeRow(&b, "Created", offset(v.CreatedAt, origin))
	if v.Resolved() {
		writeRow(&b, "Resolved", offset(v.ResolvedAt, origin))
	}
	if !v.DestroyedAt.IsZero() {
		writeRow(&b, "Destroyed", offset(v.DestroyedAt, origin)+
			fmt.Sprintf("  (lived %s)", v.DestroyedAt.Sub(v.CreatedAt)))
	}
	runs := fmt.Sprintf("%d  total %s", v.Runs, v.RunTime)
	if v.OpenRuns > 0 {
		runs += fmt.Sprintf("  %d open", v.OpenRuns)
	}
	writeRow(&b, "Runs", runs)

	if len(v.Intervals) > 0 {
		b.WriteString("\n")
		b.WriteString(styleSectionHeader.Render(fmt.Sprintf("Intervals (%d kept)", len(v.Intervals))) + "\n")
		ivs := v.Intervals
		if len(ivs) > maxIntervals {
			ivs = ivs[len(ivs)-maxIntervals:]
			b.WriteString(theme.StyleDimmed.Render("  …") + "\n")
		}
		for _, iv := range ivs {
			b.WriteString(fmt.Sprintf("  %s → %s  %s\n",
				offset(iv.Start, origin), offset(iv.End, origin), iv.Duration()))
		}
	}

	if len(v.Children) > 0 {
		b.WriteString("\n")
		b.WriteString(styleSectionHeader.Render(fmt.Sprintf("Triggered (%d)", len(v.Children))) + "\n")
		children := v.Children
		more := 0
		if len(children) > maxChildren {
			more = len(children) - maxChildren
			children = children[:maxChildren]
		}
		line := "  " + formatIDs(children)
		if more > 0 {
			line += fmt.Sprintf(" +%d", more)
		}
		b.WriteString(line + "\n")
	}

	if v.Stack != "" {
		b.WriteString("\n")
		b.WriteString(styleSectionHeader.Render("Creation stack") + "\n")
		lines := strings.Split(strings.TrimRight(v.Stack, "\n"), "\n")
		if len(lines) > maxStackLines {
			lines = append(lines[:maxStackLines], "…")
		}
		for _, l := range lines {
			b.WriteString(theme.StyleDimmed.Render("  "+truncate(strings.TrimSpace(l), panelWidth-8)) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(styleFooter.Render("[p] parent  [esc] close"))
	return b.String()
}

func triggerLabel(v graph.NodeView) string {
	if v.Parent == 0 {
		if v.TriggerID != 0 {
			return fmt.Sprintf("#%d (not observed)", v.TriggerID)
		}
		return "root"
	}
	return fmt.Sprintf("#%d", v.Parent)
}

func formatChain(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			parts = append(parts, "root")
			continue
		}
		parts = append(parts, fmt.Sprintf("#%d", id))
	}
	return strings.Join(parts, " → ")
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, " ")
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}

func offset(t, origin time.Time) string {
	return "+" + t.Sub(origin).String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
