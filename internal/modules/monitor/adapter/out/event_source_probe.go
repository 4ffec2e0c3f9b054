package out

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"appguard/internal/modules/monitor/domain"
	"appguard/internal/platform/clock"
)

const (
	defaultSampleEvery = 500 * time.Millisecond
	maxBufferedEvents  = 4096
)

// ProbeEventSource turns periodic foreground samples into enter and exit
// events. Run does the sampling; QueryEvents serves the buffered events.
type ProbeEventSource struct {
	probe  ForegroundProbe
	clock  clock.Clock
	every  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	events  []domain.Event
	current string
	lastErr error
}

func NewProbeEventSource(probe ForegroundProbe, clk clock.Clock, every time.Duration, logger *slog.Logger) *ProbeEventSource {
	if clk == nil {
		clk = clock.System()
	}
	if every <= 0 {
		every = defaultSampleEvery
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProbeEventSource{
		probe:  probe,
		clock:  clk,
		every:  every,
		logger: logger.With("component", "foreground_sampler"),
	}
}

func (s *ProbeEventSource) Name() string {
	return "foreground-sampler"
}

func (s *ProbeEventSource) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.every)
	defer ticker.Stop()
	s.Sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.Sample(ctx)
		}
	}
}

// Sample probes once and records a transition if the foreground app changed.
func (s *ProbeEventSource) Sample(ctx context.Context) {
	appID, err := s.probe.Foreground(ctx)
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.lastErr == nil {
			s.logger.Warn("foreground probe failed", "error", err)
		}
		s.lastErr = err
		return
	}
	s.lastErr = nil
	if appID == s.current {
		return
	}
	if s.current != "" {
		s.events = append(s.events, domain.Event{AppID: s.current, Kind: domain.ForegroundExit, At: now})
	}
	if appID != "" {
		s.events = append(s.events, domain.Event{AppID: appID, Kind: domain.ForegroundEnter, At: now})
	}
	s.current = appID
	if over := len(s.events) - maxBufferedEvents; over > 0 {
		s.events = append(s.events[:0:0], s.events[over:]...)
	}
}

// CurrentForeground returns the app seen by the last successful sample.
func (s *ProbeEventSource) CurrentForeground() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr != nil {
		return ""
	}
	return s.current
}

// QueryEvents returns buffered events in [from, to) and forgets older ones.
func (s *ProbeEventSource) QueryEvents(_ context.Context, from, to time.Time) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastErr != nil {
		if errors.Is(s.lastErr, domain.ErrSourceUnavailable) || errors.Is(s.lastErr, domain.ErrSourceTransient) {
			return nil, s.lastErr
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceTransient, s.lastErr)
	}

	keep := s.events[:0]
	var out []domain.Event
	for _, ev := range s.events {
		if ev.At.Before(from) {
			continue
		}
		keep = append(keep, ev)
		if ev.At.Before(to) {
			out = append(out, ev)
		}
	}
	s.events = keep
	return out, nil
}
