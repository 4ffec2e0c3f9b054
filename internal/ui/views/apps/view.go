package apps

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	appsdto "appguard/internal/modules/apps/dto"
	"appguard/internal/ui/theme"
)

// DefaultThreshold is applied when an app is first monitored from this tab.
const DefaultThreshold = 30 * time.Minute

type AppsPort interface {
	List(ctx context.Context) ([]appsdto.AppOutput, error)
}

type LoadedMsg struct {
	Apps []appsdto.AppOutput
	Err  error
}

// MonitorRequestMsg asks the root model to start monitoring an app.
type MonitorRequestMsg struct {
	AppID     string
	Threshold time.Duration
}

type appItem struct{ a appsdto.AppOutput }

func (i appItem) Title() string       { return i.a.Name }
func (i appItem) Description() string { return i.a.ID }
func (i appItem) FilterValue() string { return i.a.Name + " " + i.a.ID }

type Model struct {
	port   AppsPort
	list   list.Model
	width  int
	height int
}

func New(port AppsPort) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(theme.Green).BorderForeground(theme.Green)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(theme.Sapphire).BorderForeground(theme.Green)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Installed apps"
	l.Styles.Title = theme.Title
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)
	return Model{port: port, list: l}
}

func (m Model) Init() tea.Cmd {
	return func() tea.Msg {
		apps, err := m.port.List(context.Background())
		return LoadedMsg{Apps: apps, Err: err}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, m.height-1)

	case LoadedMsg:
		if msg.Err != nil {
			m.list.Title = "Installed apps: " + msg.Err.Error()
			return m, nil
		}
		items := make([]list.Item, len(msg.Apps))
		for i, a := range msg.Apps {
			items[i] = appItem{a: a}
		}
		return m, m.list.SetItems(items)

	case tea.KeyMsg:
		if !m.Filtering() && msg.String() == "m" {
			if item, ok := m.list.SelectedItem().(appItem); ok {
				id := item.a.ID
				return m, func() tea.Msg { return MonitorRequestMsg{AppID: id, Threshold: DefaultThreshold} }
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	hint := theme.Muted.Render("m: monitor with a " + DefaultThreshold.String() + " limit  /: filter")
	return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), hint)
}

// Filtering reports whether the list's search filter is currently active.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}
