package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	appsinadapter "appguard/internal/modules/apps/adapter/in"
	appsoutadapter "appguard/internal/modules/apps/adapter/out"
	appsusecase "appguard/internal/modules/apps/usecase"
	monitorinadapter "appguard/internal/modules/monitor/adapter/in"
	monitoroutadapter "appguard/internal/modules/monitor/adapter/out"
	"appguard/internal/modules/monitor/domain"
	monitorout "appguard/internal/modules/monitor/port/out"
	monitorservice "appguard/internal/modules/monitor/service"
	monitorusecase "appguard/internal/modules/monitor/usecase"
	settingsinadapter "appguard/internal/modules/settings/adapter/in"
	settingsoutadapter "appguard/internal/modules/settings/adapter/out"
	settingsservice "appguard/internal/modules/settings/service"
	settingsusecase "appguard/internal/modules/settings/usecase"
	"appguard/internal/platform/clock"
	"appguard/internal/platform/config"
	"appguard/internal/platform/id"
	"appguard/internal/platform/logging"
	uiapp "appguard/internal/ui/app"
)

type App struct {
	SettingsCLI settingsinadapter.CLIHandler
	AppsCLI     appsinadapter.CLIHandler
	MonitorCLI  monitorinadapter.CLIHandler
	Logger      *slog.Logger

	closers []func()
}

// Close releases the settings database and any plugin processes.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func New(cfg config.Config) (*App, error) {
	clk := clock.System()
	ids := id.UUID{}
	logger := logging.Init(cfg.Log.Level, cfg.Log.Format)

	if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
		return nil, fmt.Errorf("create home: %w", err)
	}
	store, err := settingsoutadapter.NewSQLiteStore(cfg.DBPath, clk)
	if err != nil {
		return nil, fmt.Errorf("new settings store: %w", err)
	}
	app := &App{Logger: logger}
	app.closers = append(app.closers, func() { _ = store.Close() })

	settingsUC := settingsusecase.NewInteractor(settingsservice.NewSettingsService(clk, store).WithTx(store.TxManager()))
	appsUC := appsusecase.NewInteractor(appsoutadapter.NewDesktopDirectory())

	deps := monitorservice.Deps{
		Feed:      monitoroutadapter.NewSettingsFeed(settingsUC),
		Routes:    map[string]http.Handler{},
		Daemon:    monitoroutadapter.NewFileDaemonStore(cfg.Home),
		IPCServer: monitoroutadapter.NewJSONRPCServer(),
		IPCClient: monitoroutadapter.NewJSONRPCClient(),
		Activity:  monitoroutadapter.NewFileActivityStore(cfg.Home),
		Clock:     clk,
		IDs:       ids,
		Logger:    logger,
	}
	switch cfg.Source.Kind {
	case config.SourceFile:
		src := monitoroutadapter.NewFileEventSource(cfg.Source.EventsFile)
		deps.Source = src
		deps.Recorder = src
	default:
		src := monitoroutadapter.NewProbeEventSource(monitoroutadapter.NewForegroundProbe(), clk, cfg.SampleEvery, logger)
		deps.Source = src
		deps.Runners = append(deps.Runners, src)
	}

	presenters, err := buildPresenters(cfg, deps.Routes, logger, app)
	if err != nil {
		app.Close()
		return nil, err
	}
	deps.Presenters = presenters

	monitorSvc := monitorservice.NewMonitorService(monitorservice.Options{
		Home:           cfg.Home,
		HTTPAddr:       cfg.HTTPAddr,
		PollInterval:   cfg.PollInterval,
		MaxWindow:      cfg.MaxWindow,
		Dedup:          domain.DedupPolicy(cfg.DedupPolicy),
		PresentTimeout: cfg.Presentation.Timeout,
		QueueSize:      cfg.Presentation.QueueSize,
		InitialBackoff: cfg.Restart.InitialBackoff,
		MaxBackoff:     cfg.Restart.MaxBackoff,
		StableAfter:    cfg.Restart.StableAfter,
	}, deps)

	app.SettingsCLI = settingsinadapter.NewCLIHandler(settingsUC)
	app.AppsCLI = appsinadapter.NewCLIHandler(appsUC)
	app.MonitorCLI = monitorinadapter.NewCLIHandler(monitorusecase.NewInteractor(monitorSvc))
	return app, nil
}

// buildPresenters follows the configured channel order. The terminal channel
// is appended when missing so text alerts always have somewhere to go.
func buildPresenters(cfg config.Config, routes map[string]http.Handler, logger *slog.Logger, app *App) ([]monitorout.Presenter, error) {
	plugins := map[string]config.PluginConfig{}
	for _, p := range cfg.Presentation.Plugins {
		plugins[p.Name] = p
	}

	var out []monitorout.Presenter
	hasTerminal := false
	for _, ch := range cfg.Presentation.Channels {
		switch {
		case ch == config.ChannelDesktop:
			out = append(out, monitoroutadapter.NewDesktopPresenter())
		case ch == config.ChannelTerminal:
			hasTerminal = true
			out = append(out, monitoroutadapter.NewTerminalPresenter(os.Stderr))
		case ch == config.ChannelDiscord:
			p, err := monitoroutadapter.NewDiscordPresenter(cfg.Presentation.Discord.Token, cfg.Presentation.Discord.ChannelID)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case ch == config.ChannelWebsocket:
			hub := monitoroutadapter.NewOverlayHub(logger)
			routes["/alerts"] = hub
			out = append(out, hub)
		case strings.HasPrefix(ch, config.ChannelPluginPfx):
			name := strings.TrimPrefix(ch, config.ChannelPluginPfx)
			pc := plugins[name]
			p := monitoroutadapter.NewPluginPresenter(name, pc.Binary, pc.SHA256)
			app.closers = append(app.closers, p.Close)
			out = append(out, p)
		default:
			return nil, fmt.Errorf("unknown presentation channel: %s", ch)
		}
	}
	if !hasTerminal {
		out = append(out, monitoroutadapter.NewTerminalPresenter(os.Stderr))
	}
	return out, nil
}

func RunTUI(app *App) error {
	model := uiapp.NewModel(app.MonitorCLI, app.SettingsCLI, app.AppsCLI)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
