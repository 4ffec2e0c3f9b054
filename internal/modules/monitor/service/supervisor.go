package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"appguard/internal/modules/monitor/domain"
	"appguard/internal/platform/clock"
	"appguard/internal/platform/metrics"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultStableAfter    = time.Minute
)

type SupervisorOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// StableAfter is how long a task must run before its backoff resets.
	StableAfter time.Duration
	Logger      *slog.Logger
	Record      activityRecorder
}

// Supervisor keeps long-lived tasks running. A task that panics or returns
// while its context is live is restarted with exponential backoff.
type Supervisor struct {
	clock    clock.Clock
	initial  time.Duration
	max      time.Duration
	stable   time.Duration
	logger   *slog.Logger
	record   activityRecorder
	restarts atomic.Int64
}

func NewSupervisor(clk clock.Clock, opts SupervisorOptions) *Supervisor {
	if clk == nil {
		clk = clock.System()
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.InitialBackoff)
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = defaultStableAfter
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Supervisor{
		clock:   clk,
		initial: opts.InitialBackoff,
		max:     opts.MaxBackoff,
		stable:  opts.StableAfter,
		logger:  opts.Logger.With("component", "supervisor"),
		record:  opts.Record,
	}
}

// Supervise runs task until ctx ends.
func (s *Supervisor) Supervise(ctx context.Context, name string, task func(context.Context) error) {
	backoff := s.initial
	for {
		started := s.clock.Now()
		err := runGuarded(ctx, task)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = fmt.Errorf("task returned while still required")
		}
		if s.clock.Since(started) >= s.stable {
			backoff = s.initial
		}

		s.restarts.Add(1)
		metrics.LoopRestarts.Inc()
		s.logger.Error("task stopped, restarting", "task", name, "error", err, "backoff", backoff)
		if s.record != nil {
			s.record(ctx, domain.ActivityEvent{
				Type:    domain.ActivityLoopRestarted,
				Message: err.Error(),
				Fields:  map[string]string{"task": name, "backoff": backoff.String()},
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(backoff):
		}
		backoff = min(backoff*2, s.max)
	}
}

func (s *Supervisor) Restarts() int {
	return int(s.restarts.Load())
}

func runGuarded(ctx context.Context, task func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return task(ctx)
}
