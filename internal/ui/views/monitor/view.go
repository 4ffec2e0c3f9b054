package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	monitordto "appguard/internal/modules/monitor/dto"
	"appguard/internal/ui/theme"
)

const refreshEvery = 2 * time.Second

// ─── port ────────────────────────────────────────────────────────────────────

type MonitorPort interface {
	DaemonStatus(ctx context.Context) (monitordto.DaemonStatusOutput, error)
	ActivityTail(ctx context.Context, within time.Duration, limit int) ([]monitordto.ActivityOutput, error)
	Resume(ctx context.Context) error
}

// ─── messages ────────────────────────────────────────────────────────────────

type StatusMsg struct {
	Status monitordto.DaemonStatusOutput
	Err    error
	// Poll marks loads that belong to the refresh cycle.
	Poll bool
}

type ActivityMsg struct {
	Events []monitordto.ActivityOutput
	Err    error
}

type ResumeMsg struct {
	Err error
}

type refreshMsg struct{}

// ─── sub-tab ─────────────────────────────────────────────────────────────────

type subTab int

const (
	subTabSessions subTab = iota
	subTabActivity
)

// ─── list items ──────────────────────────────────────────────────────────────

type sessionItem struct{ s monitordto.SessionOutput }

func (i sessionItem) Title() string { return i.s.AppID + " (" + i.s.State + ")" }
func (i sessionItem) Description() string {
	return "foreground since " + humanize.Time(i.s.StartedAt)
}
func (i sessionItem) FilterValue() string { return i.s.AppID }

type activityItem struct{ a monitordto.ActivityOutput }

func (i activityItem) Title() string { return i.a.Type + ": " + i.a.Message }
func (i activityItem) Description() string {
	desc := i.a.OccurredAt.Local().Format("15:04:05")
	if i.a.AppID != "" {
		desc += "  " + i.a.AppID
	}
	return desc
}
func (i activityItem) FilterValue() string { return i.a.AppID + " " + i.a.Message }

// ─── model ───────────────────────────────────────────────────────────────────

type Model struct {
	port       MonitorPort
	activeTab  subTab
	list       list.Model
	detail     viewport.Model
	spinner    spinner.Model
	status     monitordto.DaemonStatusOutput
	statusErr  error
	activity   []monitordto.ActivityOutput
	loading    bool
	statusLine string
	width      int
	height     int
}

func New(port MonitorPort) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(theme.Peach).BorderForeground(theme.Peach)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(theme.Sapphire).BorderForeground(theme.Peach)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Sessions"
	l.Styles.Title = theme.Title
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	vp := viewport.New(0, 0)
	vp.Style = lipgloss.NewStyle().Background(theme.Mantle).Foreground(theme.Text).Padding(1)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Peach)

	return Model{
		port:    port,
		list:    l,
		detail:  vp,
		spinner: sp,
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadStatusCmd(true), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case StatusMsg:
		m.loading = false
		m.status = msg.Status
		m.statusErr = msg.Err
		if m.activeTab == subTabSessions {
			cmds = append(cmds, m.list.SetItems(sessionsToItems(m.status.Status.Sessions)))
		}
		m.detail.SetContent(m.renderStatus())
		if msg.Poll {
			cmds = append(cmds, tea.Tick(refreshEvery, func(time.Time) tea.Msg { return refreshMsg{} }))
		}

	case refreshMsg:
		cmds = append(cmds, m.loadStatusCmd(true))
		if m.activeTab == subTabActivity {
			cmds = append(cmds, m.loadActivityCmd())
		}

	case ActivityMsg:
		if msg.Err != nil {
			m.statusLine = "activity load failed: " + msg.Err.Error()
			break
		}
		m.activity = msg.Events
		if m.activeTab == subTabActivity {
			cmds = append(cmds, m.list.SetItems(activityToItems(m.activity)))
		}

	case ResumeMsg:
		if msg.Err != nil {
			m.statusLine = "resume failed: " + msg.Err.Error()
		} else {
			m.statusLine = "event source resumed"
		}
		m.detail.SetContent(m.renderStatus())
		cmds = append(cmds, m.loadStatusCmd(false))

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
		switch msg.String() {
		case "1":
			m.activeTab = subTabSessions
			m.list.Title = "Sessions"
			cmds = append(cmds, m.list.SetItems(sessionsToItems(m.status.Status.Sessions)))
		case "2":
			m.activeTab = subTabActivity
			m.list.Title = "Activity"
			cmds = append(cmds, m.loadActivityCmd())
		case "r":
			cmds = append(cmds, m.ResumeCmd())
		}
	}

	if !m.loading {
		var lCmd tea.Cmd
		m.list, lCmd = m.list.Update(msg)
		cmds = append(cmds, lCmd)

		var vCmd tea.Cmd
		m.detail, vCmd = m.detail.Update(msg)
		cmds = append(cmds, vCmd)
	}

	return m, tea.Batch(cmds...)
}

// Filtering reports whether the list's search filter is currently active.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m Model) View() string {
	if m.loading {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.spinner.View()+" Contacting daemon…")
	}

	tabs := m.renderSubTabs()
	bodyH := m.height - lipgloss.Height(tabs)
	if bodyH < 1 {
		bodyH = 1
	}

	listW := m.width * 4 / 10
	detailW := m.width - listW

	listPane := lipgloss.NewStyle().Width(listW).Height(bodyH).Render(m.list.View())
	detailPane := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.Surface1).
		Background(theme.Mantle).
		Width(detailW - 2).
		Height(bodyH - 2).
		Render(m.detail.View())

	body := lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)
	return lipgloss.JoinVertical(lipgloss.Left, tabs, body)
}

// ResumeCmd asks the daemon to leave the suspended state.
func (m Model) ResumeCmd() tea.Cmd {
	return func() tea.Msg {
		return ResumeMsg{Err: m.port.Resume(context.Background())}
	}
}

// ─── private ─────────────────────────────────────────────────────────────────

func (m *Model) resize() {
	listW := m.width * 4 / 10
	detailW := m.width - listW
	contentH := m.height - 4
	if contentH < 1 {
		contentH = 1
	}
	m.list.SetSize(listW, contentH)
	m.detail.Width = detailW - 4
	m.detail.Height = contentH - 2
}

func (m Model) renderSubTabs() string {
	labels := []string{"1:Sessions", "2:Activity"}
	var parts []string
	for i, label := range labels {
		if subTab(i) == m.activeTab {
			parts = append(parts, theme.Hot.Render(" "+label+" "))
		} else {
			parts = append(parts, theme.Muted.Render(" "+label+" "))
		}
	}
	hint := theme.Muted.Render("  r:resume")
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...) + hint + "\n"
}

func (m Model) renderStatus() string {
	d := m.status
	s := d.Status
	var sb strings.Builder
	sb.WriteString(theme.Title.Render("Daemon") + "\n\n")
	if m.statusErr != nil {
		sb.WriteString(theme.Hot.Render(m.statusErr.Error()) + "\n")
		return sb.String()
	}
	if !d.Running {
		sb.WriteString(theme.Muted.Render("not running") + "\n\n")
		sb.WriteString(theme.Muted.Render("start it with: appguard daemon start") + "\n")
		return sb.String()
	}
	sb.WriteString("state:      " + theme.State(s.State) + "\n")
	sb.WriteString(fmt.Sprintf("pid:        %d\n", d.PID))
	if !s.StartedAt.IsZero() {
		sb.WriteString("up since:   " + humanize.Time(s.StartedAt) + "\n")
	}
	sb.WriteString("ticks:      " + humanize.Comma(int64(s.Ticks)) + "\n")
	if !s.LastTickAt.IsZero() {
		sb.WriteString("last tick:  " + humanize.Time(s.LastTickAt) + "\n")
	}
	sb.WriteString(fmt.Sprintf("restarts:   %d\n", s.Restarts))
	sb.WriteString(fmt.Sprintf("monitored:  %d\n", len(s.Monitored)))
	if len(s.Monitored) > 0 {
		sb.WriteString(theme.Muted.Render("            "+strings.Join(s.Monitored, ", ")) + "\n")
	}
	if s.HTTPAddr != "" {
		sb.WriteString("endpoint:   http://" + s.HTTPAddr + "/metrics\n")
	}
	if s.LastError != "" {
		sb.WriteString("\n" + theme.Hot.Render("last error: "+s.LastError) + "\n")
	}
	if m.statusLine != "" {
		sb.WriteString("\n" + theme.Hot.Render(m.statusLine) + "\n")
	}
	return sb.String()
}

func sessionsToItems(sessions []monitordto.SessionOutput) []list.Item {
	items := make([]list.Item, len(sessions))
	for i, s := range sessions {
		items[i] = sessionItem{s: s}
	}
	return items
}

func activityToItems(events []monitordto.ActivityOutput) []list.Item {
	items := make([]list.Item, len(events))
	// Newest first.
	for i, a := range events {
		items[len(events)-1-i] = activityItem{a: a}
	}
	return items
}

func (m Model) loadStatusCmd(poll bool) tea.Cmd {
	return func() tea.Msg {
		status, err := m.port.DaemonStatus(context.Background())
		return StatusMsg{Status: status, Err: err, Poll: poll}
	}
}

func (m Model) loadActivityCmd() tea.Cmd {
	return func() tea.Msg {
		events, err := m.port.ActivityTail(context.Background(), 24*time.Hour, 100)
		return ActivityMsg{Events: events, Err: err}
	}
}
