package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"appguard/internal/modules/monitor/domain"
	monitorout "appguard/internal/modules/monitor/port/out"
	"appguard/internal/platform/clock"
	"appguard/internal/platform/metrics"
)

const (
	defaultPollInterval = time.Second
	defaultMaxWindow    = 5 * time.Minute
	transientLogEvery   = 30 * time.Second
)

// AlertSink accepts alert decisions without blocking the caller.
type AlertSink interface {
	Dispatch(d domain.Decision) bool
}

type activityRecorder func(ctx context.Context, event domain.ActivityEvent)

type PollerOptions struct {
	Interval  time.Duration
	MaxWindow time.Duration
	Logger    *slog.Logger
	Record    activityRecorder
}

// Poller drives the session tracker from the event source on a fixed cadence.
// Tick must only be called from one goroutine at a time.
type Poller struct {
	source  monitorout.EventSource
	table   *ConfigTable
	tracker *domain.Tracker
	sink    AlertSink
	clock   clock.Clock

	interval  time.Duration
	maxWindow time.Duration
	logger    *slog.Logger
	record    activityRecorder

	resume       chan struct{}
	transientLog *rate.Limiter

	cursor   time.Time
	ticks    uint64
	lastTick time.Time
	lastErr  string
	status   atomic.Pointer[monitorout.LoopStatus]
}

func NewPoller(source monitorout.EventSource, table *ConfigTable, tracker *domain.Tracker, sink AlertSink, clk clock.Clock, opts PollerOptions) *Poller {
	if clk == nil {
		clk = clock.System()
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultPollInterval
	}
	if opts.MaxWindow <= 0 {
		opts.MaxWindow = defaultMaxWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Poller{
		source:       source,
		table:        table,
		tracker:      tracker,
		sink:         sink,
		clock:        clk,
		interval:     opts.Interval,
		maxWindow:    opts.MaxWindow,
		logger:       opts.Logger.With("component", "poller"),
		record:       opts.Record,
		resume:       make(chan struct{}, 1),
		transientLog: rate.NewLimiter(rate.Every(transientLogEvery), 1),
		cursor:       clk.Now(),
	}
	p.publish(monitorout.LoopStarting)
	return p
}

// Run ticks until ctx ends. Each run starts from a fresh cursor at the
// current time, so sessions from an earlier run are dropped.
func (p *Poller) Run(ctx context.Context) error {
	p.skipTo(p.clock.Now(), "loop started")
	p.publish(monitorout.LoopPolling)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.publish(monitorout.LoopStopped)
			return nil
		case <-ticker.Chan():
			err := p.Tick(ctx)
			if !errors.Is(err, domain.ErrSourceUnavailable) {
				continue
			}
			if !p.suspend(ctx, err) {
				p.publish(monitorout.LoopStopped)
				return nil
			}
		}
	}
}

// Tick queries [cursor, now), feeds the tracker and runs the mid-session
// check. The check only looks as far as the event stream is complete, so a
// failed query checks at the cursor rather than at now. It returns the
// source error, if any.
func (p *Poller) Tick(ctx context.Context) error {
	now := p.clock.Now()
	defer func(start time.Time) {
		metrics.TickDuration.Observe(p.clock.Since(start).Seconds())
	}(now)

	from := p.cursor
	if from.After(now) {
		from = now
	}
	if now.Sub(from) > p.maxWindow {
		from = now.Add(-p.maxWindow)
		p.skipTo(from, "window capped")
	}

	snap := p.table.Current()
	events, err := p.source.QueryEvents(ctx, from, now)
	switch {
	case err == nil:
		for _, ev := range events {
			if !ev.InWindow(from, now) {
				continue
			}
			metrics.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()
			if d, ok := p.tracker.Apply(ev, snap); ok {
				p.dispatch(d)
			}
		}
		p.cursor = now
		p.lastErr = ""
		metrics.TicksTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrSourceUnavailable):
		p.lastErr = err.Error()
		metrics.TicksTotal.WithLabelValues("unavailable").Inc()
	default:
		// The window is retried next tick, bounded by maxWindow.
		p.cursor = from
		p.lastErr = err.Error()
		metrics.TicksTotal.WithLabelValues("transient").Inc()
		if p.transientLog.AllowN(now, 1) {
			p.logger.Warn("event query failed, retrying window", "error", err, "from", from, "to", now)
		}
	}

	for _, d := range p.tracker.Check(p.cursor, snap) {
		p.dispatch(d)
	}

	p.ticks++
	p.lastTick = now
	metrics.LiveSessions.Set(float64(p.tracker.Len()))
	p.publish(monitorout.LoopPolling)
	return err
}

// Resume signals that access to the event source was granted again.
func (p *Poller) Resume() {
	select {
	case p.resume <- struct{}{}:
	default:
	}
}

// Status returns the last published loop status.
func (p *Poller) Status() monitorout.LoopStatus {
	return *p.status.Load()
}

func (p *Poller) suspend(ctx context.Context, cause error) bool {
	select {
	case <-p.resume:
	default:
	}
	p.logger.Error("event source unavailable, polling suspended until resumed", "error", cause)
	p.emit(ctx, domain.ActivityEvent{Type: domain.ActivitySourceUnavailable, Message: cause.Error()})
	p.publish(monitorout.LoopSuspended)

	select {
	case <-ctx.Done():
		return false
	case <-p.resume:
	}

	p.skipTo(p.clock.Now(), "source resumed")
	p.lastErr = ""
	p.logger.Info("event source access restored, polling resumed", "cursor", p.cursor)
	p.emit(ctx, domain.ActivityEvent{Type: domain.ActivitySourceResumed, Message: "polling resumed"})
	p.publish(monitorout.LoopPolling)
	return true
}

// skipTo moves the cursor to at. Events between the old cursor and at are
// never read, so live sessions can no longer be trusted and are dropped. When
// the source knows the current foreground app, its session restarts at at.
func (p *Poller) skipTo(at time.Time, reason string) {
	dropped := p.tracker.Len()
	p.tracker.Reset()
	p.cursor = at

	reporter, ok := p.source.(monitorout.ForegroundReporter)
	if !ok {
		if dropped > 0 {
			p.logger.Info("event gap, live sessions dropped", "reason", reason, "sessions", dropped, "cursor", at)
		}
		return
	}
	appID := reporter.CurrentForeground()
	if appID != "" {
		p.tracker.Apply(domain.Event{AppID: appID, Kind: domain.ForegroundEnter, At: at}, p.table.Current())
	}
	if dropped > 0 {
		p.logger.Info("event gap, live sessions dropped", "reason", reason, "sessions", dropped, "cursor", at, "foreground", appID)
	}
}

func (p *Poller) dispatch(d domain.Decision) {
	p.logger.Info("usage threshold reached",
		"app_id", d.Config.AppID,
		"elapsed", d.Elapsed.Round(time.Second),
		"threshold", d.Config.Threshold,
	)
	p.sink.Dispatch(d)
}

func (p *Poller) emit(ctx context.Context, event domain.ActivityEvent) {
	if p.record != nil {
		p.record(ctx, event)
	}
}

func (p *Poller) publish(state monitorout.LoopState) {
	p.status.Store(&monitorout.LoopStatus{
		State:      state,
		Cursor:     p.cursor,
		LastTickAt: p.lastTick,
		Ticks:      p.ticks,
		LastError:  p.lastErr,
		Monitored:  p.table.Current().AppIDs(),
		Sessions:   p.tracker.Sessions(),
	})
}
