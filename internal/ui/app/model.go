package app

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	appsdto "appguard/internal/modules/apps/dto"
	monitordto "appguard/internal/modules/monitor/dto"
	settingsdto "appguard/internal/modules/settings/dto"
	"appguard/internal/ui/components"
	"appguard/internal/ui/theme"
	appsview "appguard/internal/ui/views/apps"
	monitorview "appguard/internal/ui/views/monitor"
	settingsview "appguard/internal/ui/views/settings"
)

// ─── ports ───────────────────────────────────────────────────────────────────

type monitorPort interface {
	DaemonStatus(ctx context.Context) (monitordto.DaemonStatusOutput, error)
	ActivityTail(ctx context.Context, within time.Duration, limit int) ([]monitordto.ActivityOutput, error)
	Resume(ctx context.Context) error
}

type settingsPort interface {
	List(ctx context.Context) ([]settingsdto.SettingsOutput, error)
	Set(ctx context.Context, input settingsdto.SetInput) (settingsdto.SettingsOutput, error)
	Remove(ctx context.Context, appID string) error
}

type appsPort interface {
	List(ctx context.Context) ([]appsdto.AppOutput, error)
}

// ─── tab index ───────────────────────────────────────────────────────────────

type tabID int

const (
	tabMonitor tabID = iota
	tabSettings
	tabApps
	tabCount
)

var tabLabels = [tabCount]string{"Monitor", "Settings", "Apps"}

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	Tab     key.Binding
	Help    key.Binding
	Palette key.Binding
	Quit    key.Binding
	Resume  key.Binding
	Toggle  key.Binding
	Monitor key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Tab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Palette: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "palette")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
		Resume:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume source")),
		Toggle:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "toggle app")),
		Monitor: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "monitor app")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Help, k.Palette, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.Resume, k.Toggle, k.Monitor},
		{k.Help, k.Palette, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model. It owns tab routing, the help overlay
// and the command palette; each tab renders itself.
type Model struct {
	settings settingsPort

	monitorView  monitorview.Model
	settingsView settingsview.Model
	appsView     appsview.Model

	activeTab tabID
	keys      keyMap
	help      help.Model
	showHelp  bool
	palette   components.Palette
	status    string
	width     int
	height    int
}

func NewModel(monitor monitorPort, settings settingsPort, apps appsPort) Model {
	return Model{
		settings:     settings,
		monitorView:  monitorview.New(monitor),
		settingsView: settingsview.New(settings),
		appsView:     appsview.New(apps),
		activeTab:    tabMonitor,
		keys:         defaultKeys(),
		help:         help.New(),
		palette:      components.NewPalette(),
		status:       "ready",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.monitorView.Init(),
		m.settingsView.Init(),
		m.appsView.Init(),
	)
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, isKey := msg.(tea.KeyMsg); isKey && m.palette.Visible() {
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 80))
		m.help.Width = m.width
		m.propagateSize()
		return m, nil

	case components.PaletteSubmitMsg:
		return m.executePalette(msg.Input)

	case components.PaletteCancelMsg:
		m.status = "ready"
		return m, nil

	case appsview.MonitorRequestMsg:
		m.status = "monitoring " + msg.AppID
		return m, m.settingsView.SetCmd(settingsdto.SetInput{
			AppID:     msg.AppID,
			Enabled:   boolPtr(true),
			Threshold: &msg.Threshold,
		})

	case settingsview.LoadedMsg:
		if msg.Err == nil {
			ids := make([]string, len(msg.Items))
			for i, item := range msg.Items {
				ids[i] = item.AppID
			}
			m.palette.SetAppIDs(ids)
		}

	case settingsview.ChangedMsg:
		if msg.Err != nil {
			m.status = "save failed: " + msg.Err.Error()
		} else {
			m.status = "saved " + msg.AppID
		}

	case monitorview.ResumeMsg:
		if msg.Err != nil {
			m.status = "resume failed: " + msg.Err.Error()
		} else {
			m.status = "event source resumed"
		}

	case tea.KeyMsg:
		if m.showHelp {
			if msg.String() == "?" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}
		if !m.activeFiltering() {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "tab":
				m.activeTab = (m.activeTab + 1) % tabCount
				return m, nil
			case "shift+tab":
				m.activeTab = (m.activeTab + tabCount - 1) % tabCount
				return m, nil
			case "?":
				m.showHelp = true
				return m, nil
			case ":":
				return m, m.palette.Open()
			}
		}
		// Keys only reach the visible tab.
		var cmd tea.Cmd
		switch m.activeTab {
		case tabMonitor:
			m.monitorView, cmd = m.monitorView.Update(msg)
		case tabSettings:
			m.settingsView, cmd = m.settingsView.Update(msg)
		case tabApps:
			m.appsView, cmd = m.appsView.Update(msg)
		}
		return m, cmd
	}

	// Everything else is broadcast so background refreshes keep running on
	// hidden tabs.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.monitorView, cmd = m.monitorView.Update(msg)
	cmds = append(cmds, cmd)
	m.settingsView, cmd = m.settingsView.Update(msg)
	cmds = append(cmds, cmd)
	m.appsView, cmd = m.appsView.Update(msg)
	cmds = append(cmds, cmd)
	m.palette, cmd = m.palette.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	tabBar := m.renderTabBar()
	statusBar := m.renderStatusBar()
	contentH := m.height - lipgloss.Height(tabBar) - lipgloss.Height(statusBar)
	if contentH < 1 {
		contentH = 1
	}

	var content string
	switch {
	case m.showHelp:
		content = lipgloss.NewStyle().Width(m.width).Height(contentH).
			Render(m.help.View(m.keys))
	case m.palette.Visible():
		content = lipgloss.Place(m.width, contentH,
			lipgloss.Center, lipgloss.Center, m.palette.View())
	default:
		content = m.activeView()
	}

	return lipgloss.JoinVertical(lipgloss.Left, tabBar, content, statusBar)
}

func (m Model) activeView() string {
	switch m.activeTab {
	case tabMonitor:
		return m.monitorView.View()
	case tabSettings:
		return m.settingsView.View()
	case tabApps:
		return m.appsView.View()
	}
	return ""
}

func (m Model) renderTabBar() string {
	parts := make([]string, tabCount)
	for i := tabID(0); i < tabCount; i++ {
		label := tabLabels[i]
		if i == m.activeTab {
			parts[i] = theme.Hot.Render(" " + label + " ")
		} else {
			parts[i] = theme.Muted.Render(" " + label + " ")
		}
	}
	bar := "appguard  " + strings.Join(parts, theme.Muted.Render(" │ "))
	return lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar) + "\n"
}

func (m Model) renderStatusBar() string {
	left := m.status
	right := theme.Muted.Render("?:help  tab:switch  :::palette  q:quit")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	bar := left + strings.Repeat(" ", gap) + right
	return "\n" + lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar)
}

// ─── palette execution ────────────────────────────────────────────────────────

func (m Model) executePalette(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}
	appID := ""
	if len(parts) >= 2 {
		appID = parts[1]
	} else if selected, ok := m.settingsView.SelectedAppID(); ok {
		appID = selected
	}

	switch parts[0] {
	case "resume":
		return m, m.monitorView.ResumeCmd()

	case "enable", "disable":
		if appID == "" {
			m.status = "usage: " + parts[0] + " <app>"
			return m, nil
		}
		return m, m.settingsView.SetCmd(settingsdto.SetInput{AppID: appID, Enabled: boolPtr(parts[0] == "enable")})

	case "limit":
		if len(parts) < 3 {
			m.status = "usage: limit <app> <duration>"
			return m, nil
		}
		d, err := time.ParseDuration(parts[2])
		if err != nil {
			m.status = "invalid duration: " + parts[2]
			return m, nil
		}
		return m, m.settingsView.SetCmd(settingsdto.SetInput{AppID: appID, Threshold: &d})

	case "message":
		if len(parts) < 3 {
			m.status = "usage: message <app> <text>"
			return m, nil
		}
		text := strings.TrimSpace(strings.TrimPrefix(input, parts[0]+" "+parts[1]))
		return m, m.settingsView.SetCmd(settingsdto.SetInput{AppID: appID, TimeoutMessage: &text})

	case "payload":
		if len(parts) < 3 {
			m.status = "usage: payload <app> <text|image|audio|video> [path]"
			return m, nil
		}
		kind := parts[2]
		content := ""
		if len(parts) >= 4 {
			content = strings.Join(parts[3:], " ")
		}
		return m, m.settingsView.SetCmd(settingsdto.SetInput{AppID: appID, Kind: &kind, Content: &content})

	case "remove":
		if appID == "" {
			m.status = "usage: remove <app>"
			return m, nil
		}
		return m, m.settingsView.RemoveCmd(appID)

	case "monitor":
		if appID == "" {
			m.status = "usage: monitor <app> [duration]"
			return m, nil
		}
		threshold := appsview.DefaultThreshold
		if len(parts) >= 3 {
			d, err := time.ParseDuration(parts[2])
			if err != nil {
				m.status = "invalid duration: " + parts[2]
				return m, nil
			}
			threshold = d
		}
		return m, m.settingsView.SetCmd(settingsdto.SetInput{AppID: appID, Enabled: boolPtr(true), Threshold: &threshold})

	default:
		m.status = "unknown command: " + parts[0]
	}
	return m, nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func (m Model) activeFiltering() bool {
	switch m.activeTab {
	case tabMonitor:
		return m.monitorView.Filtering()
	case tabSettings:
		return m.settingsView.Filtering()
	case tabApps:
		return m.appsView.Filtering()
	}
	return false
}

func (m *Model) propagateSize() {
	sz := tea.WindowSizeMsg{Width: m.width, Height: m.height - 3}
	m.monitorView, _ = m.monitorView.Update(sz)
	m.settingsView, _ = m.settingsView.Update(sz)
	m.appsView, _ = m.appsView.Update(sz)
}

func boolPtr(v bool) *bool { return &v }
