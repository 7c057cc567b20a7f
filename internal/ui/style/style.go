// Package style holds the shared palette and icons used by terminal output.
package style

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	Slate  = lipgloss.Color("#667085")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons for pack and entry states.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
)

// Header renders section titles, Dim renders secondary detail lines.
var (
	Header = lipgloss.NewStyle().Bold(true)
	Dim    = lipgloss.NewStyle().Foreground(Slate)
)
