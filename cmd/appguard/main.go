package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"appguard/internal/bootstrap"
	settingsdto "appguard/internal/modules/settings/dto"
	"appguard/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var home string

	root := &cobra.Command{
		Use:           "appguard",
		Short:         "Per-app screen time limits",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&home, "home", config.DefaultHome(), "state directory (config, database, daemon socket)")

	root.AddCommand(newTUICmd(&home))
	root.AddCommand(newDaemonCmd(&home))
	root.AddCommand(newSettingsCmd(&home))
	root.AddCommand(newAppsCmd(&home))
	root.AddCommand(newActivityCmd(&home))
	root.AddCommand(newEventsCmd(&home))
	root.AddCommand(newConfigCmd(&home))
	return root
}

func loadApp(home string) (*bootstrap.App, error) {
	cfg, err := config.Load(home)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg)
}

// withApp builds the app for one command and releases it afterwards.
func withApp(home *string, run func(cmd *cobra.Command, args []string, app *bootstrap.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(*home)
		if err != nil {
			return err
		}
		defer app.Close()
		return run(cmd, args, app)
	}
}

func newTUICmd(home *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the appguard dashboard",
		RunE: withApp(home, func(_ *cobra.Command, _ []string, app *bootstrap.App) error {
			return bootstrap.RunTUI(app)
		}),
	}
}

func newDaemonCmd(home *string) *cobra.Command {
	daemon := &cobra.Command{Use: "daemon", Short: "Manage the monitoring daemon"}

	run := withApp(home, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
		return app.MonitorCLI.RunDaemon(cmd.Context())
	})
	daemon.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE:  run,
	})
	daemon.AddCommand(&cobra.Command{
		Use:    "__run",
		Hidden: true,
		RunE:   run,
	})
	daemon.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: withApp(home, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			if err := app.MonitorCLI.StartDaemon(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "daemon started")
			return nil
		}),
	})
	daemon.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: withApp(home, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			if err := app.MonitorCLI.StopDaemon(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "daemon stopped")
			return nil
		}),
	})
	daemon.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show daemon and polling loop status",
		RunE: withApp(home, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			status, err := app.MonitorCLI.DaemonStatus(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "running=%t pid=%d socket=%s\n", status.Running, status.PID, status.SocketPath)
			if !status.Running {
				return nil
			}
			s := status.Status
			_, _ = fmt.Fprintf(w, "state=%s ticks=%s restarts=%d monitored=%d\n", s.State, humanize.Comma(int64(s.Ticks)), s.Restarts, len(s.Monitored))
			if !s.StartedAt.IsZero() {
				_, _ = fmt.Fprintf(w, "started %s\n", humanize.Time(s.StartedAt))
			}
			if !s.LastTickAt.IsZero() {
				_, _ = fmt.Fprintf(w, "last tick %s, cursor=%s\n", humanize.Time(s.LastTickAt), s.Cursor.Format(time.RFC3339))
			}
			if s.LastError != "" {
				_, _ = fmt.Fprintf(w, "last error: %s\n", s.LastError)
			}
			if s.HTTPAddr != "" {
				_, _ = fmt.Fprintf(w, "metrics=http://%s/metrics\n", s.HTTPAddr)
			}
			for _, sess := range s.Sessions {
				_, _ = fmt.Fprintf(w, "%s\t%s\tsince %s\n", sess.AppID, sess.State, humanize.Time(sess.StartedAt))
			}
			return nil
		}),
	})
	var logTail int
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		RunE: withApp(home, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			payload, err := app.MonitorCLI.DaemonLogs(cmd.Context(), logTail)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), payload)
			return nil
		}),
	}
	logs.Flags().IntVar(&logTail, "tail", 200, "log lines to show from the end")
	daemon.AddCommand(logs)
	daemon.AddCommand(&cobra.Command{
		Use:   "resume",
		Short: "Resume polling after the event source became unavailable",
		RunE: withApp(home, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			if err := app.MonitorCLI.Resume(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "resume requested")
			return nil
		}),
	})
	return daemon
}

func newSettingsCmd(home *string) *cobra.Command {
	settings := &cobra.Command{Use: "settings", Short: "Manage per-app limits"}

	var (
		enable, disable     bool
		limit               time.Duration
		kind, content, text string
	)
	set := &cobra.Command{
		Use:   "set <app-id>",
		Short: "Create or update an app's limit",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(home, func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are mutually exclusive")
			}
			input := settingsdto.SetInput{AppID: args[0]}
			flags := cmd.Flags()
			if enable || disable {
				v := enable
				input.Enabled = &v
			}
			if flags.Changed("limit") {
				input.Threshold = &limit
			}
			if flags.Changed("kind") {
				input.Kind = &kind
			}
			if flags.Changed("content") {
				input.Content = &content
			}
			if flags.Changed("message") {
				input.TimeoutMessage = &text
			}
			out, err := app.SettingsCLI.Set(cmd.Context(), input)
			if err != nil {
				return err
			}
			printSetting(cmd.OutOrStdout(), out)
			return nil
		}),
	}
	set.Flags().BoolVar(&enable, "enable", false, "enable monitoring")
	set.Flags().BoolVar(&disable, "disable", false, "disable monitoring")
	set.Flags().DurationVar(&limit, "limit", 0, "foreground time before the alert, e.g. 45m")
	set.Flags().StringVar(&kind, "kind", "", "alert payload: text|image|audio|video")
	set.Flags().StringVar(&content, "content", "", "media file for non-text payloads")
	set.Flags().StringVar(&text, "message", "", "custom alert message")
	settings.AddCommand(set)

	settings.AddCommand(&cobra.Command{
		Use:   "show <app-id>",
		Short: "Show one app's limit",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(home, func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
			out, err := app.SettingsCLI.Show(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSetting(cmd.OutOrStdout(), out)
			return nil
		}),
	})
	settings.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured apps",
		RunE: withApp(home, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			items, err := app.SettingsCLI.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no apps configured")
				return nil
			}
			for _, item := range items {
				printSetting(cmd.OutOrStdout(), item)
			}
			return nil
		}),
	})
	settings.AddCommand(&cobra.Command{
		Use:   "remove <app-id>",
		Short: "Forget an app's limit",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(home, func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
			if err := app.SettingsCLI.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		}),
	})
	settings.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Write all settings as YAML to stdout",
		RunE: withApp(home, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			return app.SettingsCLI.Export(cmd.Context(), cmd.OutOrStdout())
		}),
	})
	settings.AddCommand(&cobra.Command{
		Use:   "import <file|->",
		Short: "Load settings from a YAML export",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(home, func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			out, err := app.SettingsCLI.Import(cmd.Context(), r)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d apps\n", out.Imported)
			return nil
		}),
	})
	return settings
}

func printSetting(w io.Writer, s settingsdto.SettingsOutput) {
	state := "disabled"
	if s.Enabled {
		state = "enabled"
	}
	line := fmt.Sprintf("%s\t%s\tlimit=%s\tpayload=%s", s.AppID, state, s.Threshold, s.Kind)
	if s.Content != "" {
		line += "\tcontent=" + s.Content
	}
	if s.TimeoutMessage != "" {
		line += fmt.Sprintf("\tmessage=%q", s.TimeoutMessage)
	}
	_, _ = fmt.Fprintln(w, line)
}

func newAppsCmd(home *string) *cobra.Command {
	apps := &cobra.Command{Use: "apps", Short: "Discover installed applications"}
	apps.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed applications",
		RunE: withApp(home, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			items, err := app.AppsCLI.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no applications found")
				return nil
			}
			for _, item := range items {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", item.ID, item.Name)
			}
			return nil
		}),
	})
	return apps
}

func newActivityCmd(home *string) *cobra.Command {
	var (
		within time.Duration
		limit  int
	)
	activity := &cobra.Command{
		Use:   "activity",
		Short: "Show recent daemon activity",
		RunE: withApp(home, func(cmd *cobra.Command, _ []string, app *bootstrap.App) error {
			events, err := app.MonitorCLI.ActivityTail(cmd.Context(), within, limit)
			if err != nil {
				return err
			}
			for _, ev := range events {
				line := fmt.Sprintf("%s\t%s", ev.OccurredAt.Local().Format(time.DateTime), ev.Type)
				if ev.AppID != "" {
					line += "\t" + ev.AppID
				}
				if ev.Message != "" {
					line += "\t" + ev.Message
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		}),
	}
	activity.Flags().DurationVar(&within, "since", 0, "only show events newer than this, e.g. 2h")
	activity.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	return activity
}

func newEventsCmd(home *string) *cobra.Command {
	events := &cobra.Command{Use: "events", Short: "Feed the file event source"}
	var at string
	record := &cobra.Command{
		Use:   "record <app-id> <enter|exit>",
		Short: "Append a foreground transition",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(home, func(cmd *cobra.Command, args []string, app *bootstrap.App) error {
			return app.MonitorCLI.RecordEvent(cmd.Context(), args[0], args[1], at)
		}),
	}
	record.Flags().StringVar(&at, "at", "", "RFC 3339 timestamp, defaults to now")
	events.AddCommand(record)
	return events
}

func newConfigCmd(home *string) *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*home)
			if err != nil {
				return err
			}
			if cfg.Presentation.Discord.Token != "" {
				cfg.Presentation.Discord.Token = strings.Repeat("*", 8)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cfgCmd
}
