package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"

	DedupSession = "session"
	DedupProcess = "process"

	SourceProbe = "probe"
	SourceFile  = "file"

	ChannelDesktop   = "desktop"
	ChannelTerminal  = "terminal"
	ChannelDiscord   = "discord"
	ChannelWebsocket = "websocket"
	ChannelPluginPfx = "plugin:"
)

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

type Config struct {
	Home         string             `yaml:"-"`
	DBPath       string             `yaml:"-"`
	PollInterval time.Duration      `yaml:"poll_interval"`
	SampleEvery  time.Duration      `yaml:"sample_interval"`
	MaxWindow    time.Duration      `yaml:"max_window"`
	DedupPolicy  string             `yaml:"dedup_policy"`
	HTTPAddr     string             `yaml:"http_addr"`
	Source       SourceConfig       `yaml:"source"`
	Log          LogConfig          `yaml:"log"`
	Restart      RestartConfig      `yaml:"restart"`
	Presentation PresentationConfig `yaml:"presentation"`
}

type SourceConfig struct {
	Kind       string `yaml:"kind"`
	EventsFile string `yaml:"events_file"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RestartConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	StableAfter    time.Duration `yaml:"stable_after"`
}

type PresentationConfig struct {
	Channels  []string       `yaml:"channels"`
	Timeout   time.Duration  `yaml:"timeout"`
	QueueSize int            `yaml:"queue_size"`
	Discord   DiscordConfig  `yaml:"discord"`
	Plugins   []PluginConfig `yaml:"plugins"`
}

type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

type PluginConfig struct {
	Name   string `yaml:"name"`
	Binary string `yaml:"binary"`
	SHA256 string `yaml:"sha256"`
}

func New(home string) (Config, error) {
	if home == "" {
		return Config{}, fmt.Errorf("home path is required")
	}
	return Config{
		Home:         home,
		DBPath:       filepath.Join(home, "appguard.db"),
		PollInterval: time.Second,
		SampleEvery:  500 * time.Millisecond,
		MaxWindow:    5 * time.Minute,
		DedupPolicy:  DedupSession,
		HTTPAddr:     "127.0.0.1:7465",
		Source:       SourceConfig{Kind: SourceProbe, EventsFile: filepath.Join(home, "events.jsonl")},
		Log:          LogConfig{Level: "info", Format: "text"},
		Restart: RestartConfig{
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			StableAfter:    time.Minute,
		},
		Presentation: PresentationConfig{
			Channels:  []string{ChannelDesktop, ChannelTerminal},
			Timeout:   5 * time.Second,
			QueueSize: 32,
		},
	}, nil
}

// Load returns the defaults for home overlaid with home/config.yaml when present.
func Load(home string) (Config, error) {
	cfg, err := New(home)
	if err != nil {
		return Config{}, err
	}
	raw, err := os.ReadFile(filepath.Join(home, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Source.EventsFile != "" && !filepath.IsAbs(cfg.Source.EventsFile) {
		cfg.Source.EventsFile = filepath.Join(home, cfg.Source.EventsFile)
	}
	for i := range cfg.Presentation.Plugins {
		bin := cfg.Presentation.Plugins[i].Binary
		if bin != "" && !filepath.IsAbs(bin) {
			cfg.Presentation.Plugins[i].Binary = filepath.Clean(filepath.Join(home, bin))
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.SampleEvery <= 0 {
		return fmt.Errorf("sample_interval must be positive")
	}
	if c.MaxWindow < c.PollInterval {
		return fmt.Errorf("max_window must be at least poll_interval")
	}
	switch c.DedupPolicy {
	case DedupSession, DedupProcess:
	default:
		return fmt.Errorf("unknown dedup_policy: %s", c.DedupPolicy)
	}
	switch c.Source.Kind {
	case SourceProbe, SourceFile:
	default:
		return fmt.Errorf("unknown source kind: %s", c.Source.Kind)
	}
	if c.Restart.InitialBackoff <= 0 || c.Restart.MaxBackoff < c.Restart.InitialBackoff {
		return fmt.Errorf("restart backoff must be positive and max >= initial")
	}
	if c.Presentation.QueueSize <= 0 {
		return fmt.Errorf("presentation queue_size must be positive")
	}
	plugins := map[string]struct{}{}
	for _, p := range c.Presentation.Plugins {
		if p.Name == "" || p.Binary == "" {
			return fmt.Errorf("presentation plugin requires name and binary")
		}
		if p.SHA256 != "" && !sha256Pattern.MatchString(p.SHA256) {
			return fmt.Errorf("plugin %s sha256 must be lowercase 64-char hex", p.Name)
		}
		plugins[p.Name] = struct{}{}
	}
	for _, ch := range c.Presentation.Channels {
		switch {
		case ch == ChannelDesktop, ch == ChannelTerminal, ch == ChannelWebsocket:
		case ch == ChannelDiscord:
			if c.Presentation.Discord.Token == "" || c.Presentation.Discord.ChannelID == "" {
				return fmt.Errorf("discord channel requires token and channel_id")
			}
		case strings.HasPrefix(ch, ChannelPluginPfx):
			if _, ok := plugins[strings.TrimPrefix(ch, ChannelPluginPfx)]; !ok {
				return fmt.Errorf("presentation channel %s has no matching plugin", ch)
			}
		default:
			return fmt.Errorf("unknown presentation channel: %s", ch)
		}
	}
	return nil
}

// DefaultHome resolves $APPGUARD_HOME, falling back to ~/.appguard.
func DefaultHome() string {
	if home := strings.TrimSpace(os.Getenv("APPGUARD_HOME")); home != "" {
		return home
	}
	user, err := os.UserHomeDir()
	if err != nil {
		return ".appguard"
	}
	return filepath.Join(user, ".appguard")
}
