package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	out "appguard/internal/modules/monitor/adapter/out"
	"appguard/internal/modules/monitor/domain"
	monitorout "appguard/internal/modules/monitor/port/out"
	"appguard/internal/modules/monitor/service"
	apperrors "appguard/internal/platform/errors"
	"appguard/internal/platform/logging"
)

type serviceFixture struct {
	home      string
	source    *scriptedSource
	feed      *staticFeed
	presenter *fakePresenter
	clock     *clockwork.FakeClock
	svc       *service.MonitorService
}

func newServiceFixture(t *testing.T, httpAddr string, configs ...domain.MonitorConfig) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		home:      t.TempDir(),
		source:    &scriptedSource{},
		feed:      newStaticFeed(configs...),
		presenter: &fakePresenter{name: "terminal"},
		clock:     clockwork.NewFakeClockAt(t0),
	}
	f.svc = newService(f.home, httpAddr, f.clock, service.Deps{
		Source:     f.source,
		Feed:       f.feed,
		Presenters: []monitorout.Presenter{f.presenter},
	})
	return f
}

func newService(home, httpAddr string, clk clockwork.Clock, deps service.Deps) *service.MonitorService {
	deps.Daemon = out.NewFileDaemonStore(home)
	deps.IPCServer = out.NewJSONRPCServer()
	deps.IPCClient = out.NewJSONRPCClient()
	deps.Activity = out.NewFileActivityStore(home)
	deps.Clock = clk
	deps.IDs = &fixedIDs{}
	deps.Logger = logging.Discard()
	return service.NewMonitorService(service.Options{
		Home:           home,
		HTTPAddr:       httpAddr,
		PollInterval:   time.Minute,
		MaxWindow:      time.Hour,
		Dedup:          domain.DedupSession,
		PresentTimeout: time.Second,
		QueueSize:      4,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
		StableAfter:    time.Minute,
	}, deps)
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	waitFor(t, "daemon socket", func() bool {
		conn, err := net.DialTimeout("unix", path, 100*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	})
}

func TestRunDaemonAlertsAndStopsOverIPC(t *testing.T) {
	f := newServiceFixture(t, "127.0.0.1:0", monitored("firefox", 10*time.Minute))
	daemonStore := out.NewFileDaemonStore(f.home)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- f.svc.RunDaemon(ctx) }()

	waitForSocket(t, daemonStore.SocketPath())
	waitFor(t, "config snapshot", func() bool { return f.svc.Table().Current().Len() == 1 })
	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("poller never started: %v", err)
	}

	f.source.add(domain.ForegroundEnter, "firefox", t0.Add(time.Second))
	f.clock.Advance(11 * time.Minute)
	waitFor(t, "alert presentation", func() bool { return len(f.presenter.alerts()) == 1 })
	alert := f.presenter.alerts()[0]
	if alert.AppID != "firefox" || alert.Message != "You have used firefox for 10 minutes" {
		t.Fatalf("unexpected alert %+v", alert)
	}

	// A second service on the same home talks to the daemon over the socket.
	remote := newService(f.home, "", f.clock, service.Deps{Source: &scriptedSource{}, Feed: newStaticFeed()})
	status, err := remote.DaemonStatus(ctx)
	if err != nil {
		t.Fatalf("remote status: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() || status.Status.State != monitorout.LoopPolling {
		t.Fatalf("unexpected remote status %+v", status)
	}
	if len(status.Status.Sessions) != 1 || !status.Status.Sessions[0].Alerted {
		t.Fatalf("expected one alerted session, got %+v", status.Status.Sessions)
	}
	if err := remote.Resume(ctx); err != nil {
		t.Fatalf("remote resume: %v", err)
	}

	local, _ := f.svc.Status(ctx)
	resp, err := http.Get("http://" + local.HTTPAddr + "/status")
	if err != nil {
		t.Fatalf("get /status: %v", err)
	}
	var viaHTTP monitorout.LoopStatus
	err = json.NewDecoder(resp.Body).Decode(&viaHTTP)
	resp.Body.Close()
	if err != nil || viaHTTP.Ticks == 0 || len(viaHTTP.Monitored) != 1 {
		t.Fatalf("unexpected /status payload %+v, %v", viaHTTP, err)
	}
	resp, err = http.Get("http://" + local.HTTPAddr + "/metrics")
	if err != nil {
		t.Fatalf("get /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "appguard_ticks_total") {
		t.Fatalf("metrics endpoint is missing loop counters")
	}

	if err := out.NewJSONRPCClient().Stop(ctx, daemonStore.SocketPath()); err != nil {
		t.Fatalf("ipc stop: %v", err)
	}
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run daemon: %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("daemon did not stop")
	}

	if _, err := daemonStore.ReadPID(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
	events, err := out.NewFileActivityStore(f.home).Tail(context.Background(), monitorout.ActivityQuery{})
	if err != nil {
		t.Fatalf("activity tail: %v", err)
	}
	seen := map[domain.ActivityType]bool{}
	for _, ev := range events {
		seen[ev.Type] = true
	}
	for _, want := range []domain.ActivityType{domain.ActivityDaemonStarted, domain.ActivityAlertDispatched, domain.ActivityDaemonStopped} {
		if !seen[want] {
			t.Fatalf("missing %s activity in %+v", want, events)
		}
	}
}

func TestStopDaemonIdempotentAndStaleCleanup(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, "")
	daemonStore := out.NewFileDaemonStore(f.home)
	ctx := context.Background()

	if err := f.svc.StopDaemon(ctx); err != nil {
		t.Fatalf("stop daemon first call: %v", err)
	}
	if err := f.svc.StopDaemon(ctx); err != nil {
		t.Fatalf("stop daemon second call: %v", err)
	}

	if err := daemonStore.WritePID(ctx, 999999); err != nil {
		t.Fatalf("write stale pid: %v", err)
	}
	if err := os.WriteFile(daemonStore.SocketPath(), []byte("stale"), 0o644); err != nil {
		t.Fatalf("write stale socket: %v", err)
	}
	if err := f.svc.StopDaemon(ctx); err != nil {
		t.Fatalf("stop daemon stale cleanup: %v", err)
	}
	if _, err := daemonStore.ReadPID(ctx); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, got err=%v", err)
	}
	if _, err := os.Stat(daemonStore.SocketPath()); !os.IsNotExist(err) {
		t.Fatalf("expected socket removed, got err=%v", err)
	}
}

func TestResumeWithoutDaemon(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, "")
	if err := f.svc.Resume(context.Background()); !errors.Is(err, apperrors.ErrDaemonNotRunning) {
		t.Fatalf("expected daemon not running, got %v", err)
	}
	status, err := f.svc.DaemonStatus(context.Background())
	if err != nil || status.Running {
		t.Fatalf("expected stopped daemon, got %+v %v", status, err)
	}
}

func TestDaemonLogsTail(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, "")
	logPath := out.NewFileDaemonStore(f.home).LogPath()
	if err := os.WriteFile(logPath, []byte("l1\nl2\nl3\n"), 0o644); err != nil {
		t.Fatalf("write logs: %v", err)
	}
	logs, err := f.svc.DaemonLogs(context.Background(), 2)
	if err != nil {
		t.Fatalf("daemon logs: %v", err)
	}
	if strings.TrimSpace(logs) != "l2\nl3" {
		t.Fatalf("unexpected tail output: %q", logs)
	}
}

func TestRecordEventAppendsToEventFile(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	path := filepath.Join(home, "events.jsonl")
	source := out.NewFileEventSource(path)
	clk := clockwork.NewFakeClockAt(t0)
	svc := newService(home, "", clk, service.Deps{Source: source, Recorder: source, Feed: newStaticFeed()})
	ctx := context.Background()

	if err := svc.RecordEvent(ctx, domain.Event{AppID: "firefox", Kind: domain.ForegroundEnter}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.RecordEvent(ctx, domain.Event{AppID: "firefox", Kind: "sideways"}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid kind, got %v", err)
	}
	if err := svc.RecordEvent(ctx, domain.Event{Kind: domain.ForegroundExit}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected missing app id, got %v", err)
	}
	events, err := source.QueryEvents(ctx, t0, t0.Add(time.Second))
	if err != nil || len(events) != 1 || !events[0].At.Equal(t0) {
		t.Fatalf("unexpected recorded events %+v, %v", events, err)
	}

	noRecorder := newService(home, "", clk, service.Deps{Source: &scriptedSource{}, Feed: newStaticFeed()})
	if err := noRecorder.RecordEvent(ctx, domain.Event{AppID: "firefox", Kind: domain.ForegroundEnter}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected recorder error, got %v", err)
	}
}
