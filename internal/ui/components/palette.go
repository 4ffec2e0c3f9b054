package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"appguard/internal/ui/theme"
)

// PaletteSubmitMsg is emitted when the user confirms a command.
type PaletteSubmitMsg struct{ Input string }

// PaletteCancelMsg is emitted when the user presses esc.
type PaletteCancelMsg struct{}

var (
	paletteStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Peach).
			Background(theme.Mantle).
			Foreground(theme.Text).
			Padding(0, 1)

	hintStyle = lipgloss.NewStyle().Foreground(theme.Subtext0)
)

// hints must stay in sync with the switch in app/model.go executePalette.
var paletteHints = []string{
	"resume",
	"monitor <app> [duration]",
	"enable <app>",
	"disable <app>",
	"limit <app> <duration>",
	"message <app> <text>",
	"payload <app> <text|image|audio|video> [path]",
	"remove <app>",
}

// Palette is a command-palette overlay backed by bubbles/textinput. Tab
// completes the command verb, then the app id from the monitored set.
type Palette struct {
	input   textinput.Model
	visible bool
	width   int
	appIDs  []string
}

// NewPalette creates an inactive Palette ready to be opened.
func NewPalette() Palette {
	ti := textinput.New()
	ti.Placeholder = "type a command…"
	ti.CharLimit = 256
	return Palette{input: ti}
}

// Visible reports whether the palette is currently shown.
func (p Palette) Visible() bool { return p.visible }

// Open shows the palette, clears the input, and returns the focus command.
func (p *Palette) Open() tea.Cmd {
	p.visible = true
	p.input.SetValue("")
	return p.input.Focus()
}

// SetWidth sets the render width for the overlay.
func (p *Palette) SetWidth(w int) { p.width = w }

// SetAppIDs replaces the ids offered for completion.
func (p *Palette) SetAppIDs(ids []string) { p.appIDs = append(p.appIDs[:0], ids...) }

func (p *Palette) complete() {
	fields := strings.Fields(p.input.Value())
	trailing := strings.HasSuffix(p.input.Value(), " ")
	switch {
	case len(fields) == 0:
		return
	case len(fields) == 1 && !trailing:
		verbs := make([]string, 0, len(paletteHints))
		for _, h := range paletteHints {
			verbs = append(verbs, strings.Fields(h)[0])
		}
		if c, ok := uniquePrefix(fields[0], verbs); ok {
			p.setValue(c + " ")
		}
	case len(fields) == 2 && !trailing && fields[0] != "resume":
		if c, ok := uniquePrefix(fields[1], p.appIDs); ok {
			p.setValue(fields[0] + " " + c + " ")
		}
	}
}

func (p *Palette) setValue(v string) {
	p.input.SetValue(v)
	p.input.CursorEnd()
}

func uniquePrefix(prefix string, candidates []string) (string, bool) {
	found := ""
	for _, c := range candidates {
		if !strings.HasPrefix(c, prefix) {
			continue
		}
		if found != "" && found != c {
			return "", false
		}
		found = c
	}
	return found, found != ""
}

func (p Palette) Update(msg tea.Msg) (Palette, tea.Cmd) {
	if !p.visible {
		return p, nil
	}
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			p.visible = false
			p.input.Blur()
			return p, func() tea.Msg { return PaletteCancelMsg{} }
		case "tab":
			p.complete()
			return p, nil
		case "enter":
			val := strings.TrimSpace(p.input.Value())
			p.visible = false
			p.input.Blur()
			return p, func() tea.Msg { return PaletteSubmitMsg{Input: val} }
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p Palette) View() string {
	if !p.visible {
		return ""
	}
	prefix := strings.ToLower(p.input.Value())
	var matching []string
	for _, h := range paletteHints {
		if prefix == "" || strings.HasPrefix(h, prefix) {
			matching = append(matching, h)
			if len(matching) == 5 {
				break
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(theme.Title.Render("Command Palette") + "\n")
	sb.WriteString(": " + p.input.View() + "\n")
	if len(matching) > 0 {
		sb.WriteString("\n")
		for _, h := range matching {
			sb.WriteString(hintStyle.Render("  "+h) + "\n")
		}
	}

	w := p.width
	if w < 20 {
		w = 64
	}
	return paletteStyle.Width(w - 2).Render(sb.String())
}
