// Package theme provides the Lip Gloss color palette and reusable styles
// for the loopviz terminal surface. It is a leaf package with no internal
// imports to avoid import cycles.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Resource kind colors.
var (
	ColorTimeout   = lipgloss.Color("#3b82f6")
	ColorImmediate = lipgloss.Color("#06b6d4")
	ColorTick      = lipgloss.Color("#a855f7")
	ColorPromise   = lipgloss.Color("#22c55e")
	ColorGoroutine = lipgloss.Color("#f59e0b")
	ColorIO        = lipgloss.Color("#10b981")
	ColorDefault   = lipgloss.Color("#9ca3af")
)

// Node state colors.
var (
	ColorCreated   = lipgloss.Color("#7c3aed")
	ColorRunning   = lipgloss.Color("#d97706")
	ColorRunnable  = lipgloss.Color("#2563eb")
	ColorDestroyed = lipgloss.Color("#374151")
)

// Link status colors.
var (
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder = lipgloss.Color("#4b5563")
	ColorDimmed = lipgloss.Color("#6b7280")
	ColorBright = lipgloss.Color("#f9fafb")
	ColorBg     = lipgloss.Color("#111827")
)

// KindColor returns the color for a resource kind.
func KindColor(kind string) lipgloss.Color {
	switch {
	case kind == "Timeout":
		return ColorTimeout
	case kind == "Immediate":
		return ColorImmediate
	case kind == "TickObject":
		return ColorTick
	case strings.HasPrefix(kind, "Promise"):
		return ColorPromise
	case kind == "Goroutine":
		return ColorGoroutine
	case strings.HasPrefix(kind, "FS"), strings.Contains(kind, "TCP"), strings.Contains(kind, "HTTP"):
		return ColorIO
	default:
		return ColorDefault
	}
}

// StateColor returns the color for a node state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "created":
		return ColorCreated
	case "running":
		return ColorRunning
	case "runnable":
		return ColorRunnable
	case "destroyed":
		return ColorDestroyed
	default:
		return ColorDefault
	}
}

// StateGlyph returns a Unicode glyph representing a node state.
func StateGlyph(state string) string {
	switch state {
	case "created":
		return "◎"
	case "running":
		return "●>"
	case "runnable":
		return "○"
	case "destroyed":
		return "✓"
	default:
		return "·"
	}
}

// LinkColor returns the color for a link status.
func LinkColor(status string) lipgloss.Color {
	switch status {
	case "connected":
		return ColorHealthy
	case "error":
		return ColorDanger
	case "disconnected":
		return ColorWarning
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)
)
