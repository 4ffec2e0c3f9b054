package service_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"appguard/internal/modules/monitor/domain"
	monitorout "appguard/internal/modules/monitor/port/out"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type scriptedSource struct {
	mu      sync.Mutex
	events  []domain.Event
	err     error
	windows [][2]time.Time
}

func (s *scriptedSource) add(kind domain.EventKind, appID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, domain.Event{AppID: appID, Kind: kind, At: at})
}

func (s *scriptedSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *scriptedSource) lastWindow() [2]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windows[len(s.windows)-1]
}

func (s *scriptedSource) QueryEvents(_ context.Context, from, to time.Time) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, [2]time.Time{from, to})
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Event
	for _, ev := range s.events {
		if ev.InWindow(from, to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// reportingSource also reports a fixed foreground app.
type reportingSource struct {
	*scriptedSource
	current string
}

func (s *reportingSource) CurrentForeground() string { return s.current }

type recordingSink struct {
	mu        sync.Mutex
	decisions []domain.Decision
}

func (s *recordingSink) Dispatch(d domain.Decision) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return true
}

func (s *recordingSink) all() []domain.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Decision(nil), s.decisions...)
}

type fakePresenter struct {
	name  string
	kinds []domain.PayloadKind
	err   error

	mu    sync.Mutex
	shown []domain.Alert
	calls int
}

func (p *fakePresenter) Name() string { return p.name }

func (p *fakePresenter) Supports(kind domain.PayloadKind) bool {
	if len(p.kinds) == 0 {
		return true
	}
	for _, k := range p.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (p *fakePresenter) Present(_ context.Context, alert domain.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.shown = append(p.shown, alert)
	return nil
}

func (p *fakePresenter) alerts() []domain.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Alert(nil), p.shown...)
}

func (p *fakePresenter) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type staticFeed struct {
	updates chan monitorout.ConfigUpdate
	err     error
}

func newStaticFeed(configs ...domain.MonitorConfig) *staticFeed {
	f := &staticFeed{updates: make(chan monitorout.ConfigUpdate, 8)}
	f.updates <- monitorout.ConfigUpdate{Configs: configs}
	return f
}

func (f *staticFeed) Watch(context.Context) (<-chan monitorout.ConfigUpdate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.updates, nil
}

type fixedIDs struct {
	mu   sync.Mutex
	next int
}

func (f *fixedIDs) New() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return "alert-" + strconv.Itoa(f.next)
}

func monitored(appID string, threshold time.Duration) domain.MonitorConfig {
	return domain.MonitorConfig{
		AppID:     appID,
		Enabled:   true,
		Threshold: threshold,
		Payload:   domain.AlertPayload{Kind: domain.PayloadText},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
