package out

import (
	"context"
	"time"

	"appguard/internal/modules/monitor/domain"
)

// EventSource returns foreground transitions in [from, to), ordered by time.
// Errors wrap domain.ErrSourceUnavailable or domain.ErrSourceTransient.
type EventSource interface {
	QueryEvents(ctx context.Context, from, to time.Time) ([]domain.Event, error)
}

// ForegroundReporter is implemented by sources that know which app is in the
// foreground right now. An empty id means none or unknown.
type ForegroundReporter interface {
	CurrentForeground() string
}

// EventRecorder appends events for sources that are fed externally.
type EventRecorder interface {
	Append(ctx context.Context, ev domain.Event) error
}

// Runner is a long-lived background task run under supervision.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// ConfigUpdate carries either a full replacement set or an error.
type ConfigUpdate struct {
	Configs []domain.MonitorConfig
	Err     error
}

// SettingsFeed emits a full config set on subscribe and after every change.
// The channel closes when ctx ends or the subscription breaks.
type SettingsFeed interface {
	Watch(ctx context.Context) (<-chan ConfigUpdate, error)
}

// Presenter shows an alert on one channel.
type Presenter interface {
	Name() string
	Supports(kind domain.PayloadKind) bool
	Present(ctx context.Context, alert domain.Alert) error
}

type ActivityQuery struct {
	Since time.Time
	Limit int
}

type ActivityStore interface {
	Append(ctx context.Context, event domain.ActivityEvent) error
	Tail(ctx context.Context, query ActivityQuery) ([]domain.ActivityEvent, error)
}

type DaemonStore interface {
	WritePID(ctx context.Context, pid int) error
	ReadPID(ctx context.Context) (int, error)
	ClearPID(ctx context.Context) error
	SocketPath() string
	LogPath() string
}

// IPCServer serves the JSON-RPC daemon API.
type IPCServer interface {
	Serve(ctx context.Context, socketPath string, handler IPCHandler) error
}

// IPCClient talks to the local daemon JSON-RPC API.
type IPCClient interface {
	Status(ctx context.Context, socketPath string) (LoopStatus, error)
	Resume(ctx context.Context, socketPath string) error
	ActivityTail(ctx context.Context, socketPath string, query ActivityQuery) ([]domain.ActivityEvent, error)
	Stop(ctx context.Context, socketPath string) error
}

type IPCHandler interface {
	Status(ctx context.Context) (LoopStatus, error)
	Resume(ctx context.Context) error
	ActivityTail(ctx context.Context, query ActivityQuery) ([]domain.ActivityEvent, error)
	Stop(ctx context.Context) error
}

type LoopState string

const (
	LoopStarting  LoopState = "starting"
	LoopPolling   LoopState = "polling"
	LoopSuspended LoopState = "suspended"
	LoopStopped   LoopState = "stopped"
)

// LoopStatus is a point-in-time view of the polling loop.
type LoopStatus struct {
	State      LoopState
	Cursor     time.Time
	LastTickAt time.Time
	Ticks      uint64
	LastError  string
	Monitored  []string
	Sessions   []domain.Session
	Restarts   int
	StartedAt  time.Time
	HTTPAddr   string
}

type DaemonRuntimeStatus struct {
	Running    bool
	PID        int
	SocketPath string
	Status     LoopStatus
}
