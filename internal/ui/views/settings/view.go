package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	settingsdto "appguard/internal/modules/settings/dto"
	"appguard/internal/ui/theme"
)

// ─── port ────────────────────────────────────────────────────────────────────

type SettingsPort interface {
	List(ctx context.Context) ([]settingsdto.SettingsOutput, error)
	Set(ctx context.Context, input settingsdto.SetInput) (settingsdto.SettingsOutput, error)
	Remove(ctx context.Context, appID string) error
}

// ─── messages ────────────────────────────────────────────────────────────────

type LoadedMsg struct {
	Items []settingsdto.SettingsOutput
	Err   error
}

// ChangedMsg reports the outcome of an edit made from any tab.
type ChangedMsg struct {
	AppID string
	Err   error
}

// ─── list item ───────────────────────────────────────────────────────────────

type settingItem struct {
	s settingsdto.SettingsOutput
}

func (i settingItem) Title() string {
	mark := "○ "
	if i.s.Enabled {
		mark = "● "
	}
	return mark + i.s.AppID
}
func (i settingItem) Description() string {
	return fmt.Sprintf("%s  %s", i.s.Threshold, i.s.Kind)
}
func (i settingItem) FilterValue() string { return i.s.AppID }

// ─── model ───────────────────────────────────────────────────────────────────

type Model struct {
	port       SettingsPort
	list       list.Model
	preview    viewport.Model
	spinner    spinner.Model
	loading    bool
	statusLine string
	width      int
	height     int
}

func New(port SettingsPort) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(theme.Lavender).BorderForeground(theme.Lavender)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(theme.Sapphire).BorderForeground(theme.Lavender)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Monitored apps"
	l.Styles.Title = theme.Title
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	vp := viewport.New(0, 0)
	vp.Style = lipgloss.NewStyle().
		Background(theme.Mantle).
		Foreground(theme.Text).
		Padding(1)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Lavender)

	return Model{
		port:    port,
		list:    l,
		preview: vp,
		spinner: sp,
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.Reload(), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case LoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.list.Title = "Monitored apps: " + msg.Err.Error()
			return m, nil
		}
		items := make([]list.Item, len(msg.Items))
		for i, s := range msg.Items {
			items[i] = settingItem{s: s}
		}
		cmds = append(cmds, m.list.SetItems(items))
		m.preview.SetContent(m.renderDetail())

	case ChangedMsg:
		if msg.Err != nil {
			m.statusLine = msg.AppID + ": " + msg.Err.Error()
		} else {
			m.statusLine = "saved " + msg.AppID
		}
		cmds = append(cmds, m.Reload())

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		if m.Filtering() {
			break
		}
		if item, ok := m.list.SelectedItem().(settingItem); ok {
			switch msg.String() {
			case "e":
				cmds = append(cmds, m.SetCmd(settingsdto.SetInput{AppID: item.s.AppID, Enabled: boolPtr(!item.s.Enabled)}))
			case "x":
				cmds = append(cmds, m.RemoveCmd(item.s.AppID))
			}
		}
	}

	if !m.loading {
		var lCmd tea.Cmd
		prevIdx := m.list.Index()
		m.list, lCmd = m.list.Update(msg)
		cmds = append(cmds, lCmd)
		if m.list.Index() != prevIdx {
			m.preview.SetContent(m.renderDetail())
		}

		var vCmd tea.Cmd
		m.preview, vCmd = m.preview.Update(msg)
		cmds = append(cmds, vCmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.loading {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.spinner.View()+" Loading settings…")
	}

	listW := m.width * 4 / 10
	detailW := m.width - listW

	listPane := lipgloss.NewStyle().
		Width(listW).
		Height(m.height).
		Render(m.list.View())

	detailPane := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.Surface1).
		Background(theme.Mantle).
		Width(detailW - 2).
		Height(m.height - 2).
		Render(m.preview.View())

	return lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)
}

// SelectedAppID returns the app id under the cursor, if any.
func (m Model) SelectedAppID() (string, bool) {
	if item, ok := m.list.SelectedItem().(settingItem); ok {
		return item.s.AppID, true
	}
	return "", false
}

// Filtering reports whether the list's search filter is currently active.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m Model) Reload() tea.Cmd {
	return func() tea.Msg {
		items, err := m.port.List(context.Background())
		return LoadedMsg{Items: items, Err: err}
	}
}

func (m Model) SetCmd(input settingsdto.SetInput) tea.Cmd {
	return func() tea.Msg {
		_, err := m.port.Set(context.Background(), input)
		return ChangedMsg{AppID: input.AppID, Err: err}
	}
}

func (m Model) RemoveCmd(appID string) tea.Cmd {
	return func() tea.Msg {
		return ChangedMsg{AppID: appID, Err: m.port.Remove(context.Background(), appID)}
	}
}

// ─── private ─────────────────────────────────────────────────────────────────

func (m *Model) resize() {
	listW := m.width * 4 / 10
	detailW := m.width - listW
	m.list.SetSize(listW, m.height)
	m.preview.Width = detailW - 4
	m.preview.Height = m.height - 4
}

func (m Model) renderDetail() string {
	item, ok := m.list.SelectedItem().(settingItem)
	if !ok {
		return theme.Muted.Render("No monitored apps yet. Add one from the Apps tab.")
	}
	s := item.s
	var sb strings.Builder
	sb.WriteString(theme.Title.Render(s.AppID) + "\n\n")
	enabled := theme.Muted.Render("disabled")
	if s.Enabled {
		enabled = theme.Hot.Render("enabled")
	}
	sb.WriteString(theme.Muted.Render("state:     ") + enabled + "\n")
	sb.WriteString(theme.Muted.Render("threshold: ") + s.Threshold.String() + "\n")
	sb.WriteString(theme.Muted.Render("payload:   ") + s.Kind + "\n")
	if s.Content != "" {
		sb.WriteString(theme.Muted.Render("content:   ") + s.Content + "\n")
	}
	if s.TimeoutMessage != "" {
		sb.WriteString(theme.Muted.Render("message:   ") + s.TimeoutMessage + "\n")
	}
	if !s.UpdatedAt.IsZero() {
		sb.WriteString(theme.Muted.Render("updated:   ") + humanize.Time(s.UpdatedAt) + "\n")
	}
	if m.statusLine != "" {
		sb.WriteString("\n" + theme.Hot.Render(m.statusLine) + "\n")
	}
	sb.WriteString("\n" + theme.Muted.Render("e: toggle  x: remove"))
	return sb.String()
}

func boolPtr(v bool) *bool { return &v }
