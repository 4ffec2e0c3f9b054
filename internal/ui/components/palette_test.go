package components

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func pressTab(p Palette) Palette {
	p, _ = p.Update(tea.KeyMsg{Type: tea.KeyTab})
	return p
}

func TestPaletteCompletesVerbThenAppID(t *testing.T) {
	p := NewPalette()
	p.Open()
	p.SetAppIDs([]string{"org.mozilla.firefox", "com.visualstudio.code"})

	p.input.SetValue("lim")
	p = pressTab(p)
	if got := p.input.Value(); got != "limit " {
		t.Fatalf("verb completion = %q", got)
	}

	p.input.SetValue("limit org")
	p = pressTab(p)
	if got := p.input.Value(); got != "limit org.mozilla.firefox " {
		t.Fatalf("app completion = %q", got)
	}
}

func TestPaletteLeavesAmbiguousPrefix(t *testing.T) {
	p := NewPalette()
	p.Open()
	p.SetAppIDs([]string{"org.a", "org.b"})

	p.input.SetValue("enable org")
	p = pressTab(p)
	if got := p.input.Value(); got != "enable org" {
		t.Fatalf("ambiguous prefix changed input: %q", got)
	}

	// "m" matches both monitor and message.
	p.input.SetValue("m")
	p = pressTab(p)
	if got := p.input.Value(); got != "m" {
		t.Fatalf("ambiguous verb changed input: %q", got)
	}
}
