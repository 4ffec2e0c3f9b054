package theme

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha.
var (
	Mantle   = lipgloss.Color("#181825")
	Surface1 = lipgloss.Color("#45475a")
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Lavender = lipgloss.Color("#b4befe")
	Sapphire = lipgloss.Color("#74c7ec")
	Green    = lipgloss.Color("#a6e3a1")
	Yellow   = lipgloss.Color("#f9e2af")
	Peach    = lipgloss.Color("#fab387")
	Red      = lipgloss.Color("#f38ba8")

	Title = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	Muted = lipgloss.NewStyle().Foreground(Subtext0)
	Hot   = lipgloss.NewStyle().Foreground(Peach).Bold(true)
)

var stateColors = map[string]lipgloss.Color{
	"polling":   Green,
	"starting":  Sapphire,
	"suspended": Yellow,
	"stopped":   Red,
	"idle":      Subtext0,
	"active":    Green,
	"alerted":   Peach,
}

// State renders a loop or session state label in its color; unknown labels
// fall back to Hot.
func State(label string) string {
	c, ok := stateColors[label]
	if !ok {
		return Hot.Render(label)
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(label)
}
