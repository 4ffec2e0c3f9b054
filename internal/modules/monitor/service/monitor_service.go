package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"appguard/internal/modules/monitor/domain"
	monitorout "appguard/internal/modules/monitor/port/out"
	"appguard/internal/platform/clock"
	apperrors "appguard/internal/platform/errors"
	"appguard/internal/platform/id"
)

const (
	daemonStartTimeout  = 5 * time.Second
	daemonStopTimeout   = 2 * time.Second
	defaultLogTailLines = 200
)

type Options struct {
	Home           string
	HTTPAddr       string
	PollInterval   time.Duration
	MaxWindow      time.Duration
	Dedup          domain.DedupPolicy
	PresentTimeout time.Duration
	QueueSize      int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	StableAfter    time.Duration
}

type Deps struct {
	Source     monitorout.EventSource
	// Recorder is set when events can be injected from the command line.
	Recorder   monitorout.EventRecorder
	Feed       monitorout.SettingsFeed
	Presenters []monitorout.Presenter
	// Runners are extra background tasks such as the foreground sampler.
	Runners []monitorout.Runner
	// Routes are mounted on the daemon HTTP endpoint next to /metrics.
	Routes    map[string]http.Handler
	Daemon    monitorout.DaemonStore
	IPCServer monitorout.IPCServer
	IPCClient monitorout.IPCClient
	Activity  monitorout.ActivityStore
	Clock     clock.Clock
	IDs       id.Generator
	Logger    *slog.Logger
}

type runtimeState struct {
	cancel    context.CancelFunc
	startedAt time.Time
	httpSrv   *http.Server
	httpLn    net.Listener
	httpAddr  string
}

// MonitorService owns the monitoring engine and the daemon process around it.
type MonitorService struct {
	home     string
	httpAddr string

	feed      monitorout.SettingsFeed
	recorder  monitorout.EventRecorder
	runners   []monitorout.Runner
	routes    map[string]http.Handler
	daemon    monitorout.DaemonStore
	ipcServer monitorout.IPCServer
	ipcClient monitorout.IPCClient
	activity  monitorout.ActivityStore
	clock     clock.Clock
	ids       id.Generator
	logger    *slog.Logger

	table      *ConfigTable
	tracker    *domain.Tracker
	poller     *Poller
	dispatcher *Dispatcher
	supervisor *Supervisor

	mu      sync.RWMutex
	runtime *runtimeState
}

func NewMonitorService(opts Options, deps Deps) *MonitorService {
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.IDs == nil {
		deps.IDs = id.UUID{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &MonitorService{
		home:      opts.Home,
		httpAddr:  opts.HTTPAddr,
		feed:      deps.Feed,
		recorder:  deps.Recorder,
		runners:   deps.Runners,
		routes:    deps.Routes,
		daemon:    deps.Daemon,
		ipcServer: deps.IPCServer,
		ipcClient: deps.IPCClient,
		activity:  deps.Activity,
		clock:     deps.Clock,
		ids:       deps.IDs,
		logger:    deps.Logger,
	}

	s.table = NewConfigTable(deps.Logger)
	s.table.onFailure = func(err error) {
		s.record(context.Background(), domain.ActivityEvent{Type: domain.ActivitySubscriptionFailure, Message: err.Error()})
	}
	s.tracker = domain.NewTracker(opts.Dedup)
	s.dispatcher = NewDispatcher(deps.Presenters, DispatcherOptions{
		Timeout:   opts.PresentTimeout,
		QueueSize: opts.QueueSize,
		IDs:       deps.IDs,
		Logger:    deps.Logger,
		Record:    s.record,
	})
	s.poller = NewPoller(deps.Source, s.table, s.tracker, s.dispatcher, deps.Clock, PollerOptions{
		Interval:  opts.PollInterval,
		MaxWindow: opts.MaxWindow,
		Logger:    deps.Logger,
		Record:    s.record,
	})
	s.supervisor = NewSupervisor(deps.Clock, SupervisorOptions{
		InitialBackoff: opts.InitialBackoff,
		MaxBackoff:     opts.MaxBackoff,
		StableAfter:    opts.StableAfter,
		Logger:         deps.Logger,
		Record:         s.record,
	})
	return s
}

// RunDaemon runs the engine in the foreground until ctx ends or a Stop call
// arrives over IPC. SIGHUP resumes a suspended polling loop.
func (s *MonitorService) RunDaemon(ctx context.Context) error {
	if err := s.cleanupStaleArtifacts(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rt := &runtimeState{cancel: cancel, startedAt: s.clock.Now()}

	s.mu.Lock()
	if s.runtime != nil {
		s.mu.Unlock()
		return fmt.Errorf("monitor daemon already running in this process")
	}
	s.runtime = rt
	s.mu.Unlock()

	if err := s.startHTTPEndpoint(rt); err != nil {
		s.cleanupRuntime(context.Background())
		return err
	}
	if err := s.daemon.WritePID(ctx, os.Getpid()); err != nil {
		s.cleanupRuntime(context.Background())
		return err
	}

	s.logger.Info("monitor daemon started", "pid", os.Getpid(), "socket", s.daemon.SocketPath(), "http", rt.httpAddr)
	s.record(ctx, domain.ActivityEvent{
		Type:    domain.ActivityDaemonStarted,
		Message: "monitor daemon started",
		Fields:  map[string]string{"pid": fmt.Sprintf("%d", os.Getpid())},
	})

	ipcErr := make(chan error, 1)
	go func() {
		if s.ipcServer == nil {
			ipcErr <- fmt.Errorf("ipc server is not configured")
			return
		}
		ipcErr <- s.ipcServer.Serve(runCtx, s.daemon.SocketPath(), s)
	}()

	go s.supervisor.Supervise(runCtx, "dispatcher", s.dispatcher.Run)
	for _, r := range s.runners {
		go s.supervisor.Supervise(runCtx, r.Name(), r.Run)
	}
	go s.supervisor.Supervise(runCtx, "config-sync", func(ctx context.Context) error {
		return s.table.Subscribe(ctx, s.feed)
	})
	go s.supervisor.Supervise(runCtx, "poller", s.poller.Run)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-runCtx.Done():
			s.cleanupRuntime(context.Background())
			return nil
		case <-hup:
			s.logger.Info("received SIGHUP, resuming event source")
			s.poller.Resume()
		case err := <-ipcErr:
			s.cleanupRuntime(context.Background())
			if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
	}
}

func (s *MonitorService) StartDaemon(ctx context.Context) error {
	if err := s.cleanupStaleArtifacts(ctx); err != nil {
		return err
	}
	status, err := s.DaemonStatus(ctx)
	if err == nil && status.Running {
		if socketReachable(s.daemon.SocketPath()) {
			return nil
		}
		return fmt.Errorf("daemon process is alive but socket is unavailable")
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.daemon.LogPath()), 0o755); err != nil {
		return fmt.Errorf("create daemon log dir: %w", err)
	}
	if err := os.Remove(s.daemon.SocketPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale daemon socket: %w", err)
	}

	logFile, err := os.OpenFile(s.daemon.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(execPath, "daemon", "__run", "--home", s.home)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if err := s.daemon.WritePID(ctx, cmd.Process.Pid); err != nil {
		return err
	}
	_ = cmd.Process.Release()

	if err := waitForSocket(s.daemon.SocketPath(), daemonStartTimeout); err != nil {
		_ = s.daemon.ClearPID(ctx)
		return fmt.Errorf("start daemon: %w", err)
	}
	return nil
}

// StopDaemon is safe to call when no daemon is running.
func (s *MonitorService) StopDaemon(ctx context.Context) error {
	s.mu.RLock()
	rt := s.runtime
	s.mu.RUnlock()
	if rt != nil {
		rt.cancel()
		return nil
	}

	if s.ipcClient != nil && socketReachable(s.daemon.SocketPath()) {
		_ = s.ipcClient.Stop(ctx, s.daemon.SocketPath())
	}

	pid, err := s.daemon.ReadPID(ctx)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_ = os.Remove(s.daemon.SocketPath())
			return nil
		}
		return err
	}
	if pid <= 0 || !processAlive(pid) {
		_ = s.daemon.ClearPID(ctx)
		_ = os.Remove(s.daemon.SocketPath())
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("stop daemon pid=%d: %w", pid, err)
	}
	deadline := time.Now().Add(daemonStopTimeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if processAlive(pid) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
	if err := s.daemon.ClearPID(ctx); err != nil {
		return err
	}
	_ = os.Remove(s.daemon.SocketPath())
	return nil
}

func (s *MonitorService) DaemonStatus(ctx context.Context) (monitorout.DaemonRuntimeStatus, error) {
	out := monitorout.DaemonRuntimeStatus{SocketPath: s.daemon.SocketPath()}

	s.mu.RLock()
	rt := s.runtime
	s.mu.RUnlock()
	if rt != nil {
		out.PID = os.Getpid()
		out.Running = true
		out.Status, _ = s.Status(ctx)
		return out, nil
	}

	pid, err := s.daemon.ReadPID(ctx)
	if err == nil {
		out.PID = pid
		out.Running = processAlive(pid)
	}
	if out.Running && s.ipcClient != nil {
		status, statusErr := s.ipcClient.Status(ctx, s.daemon.SocketPath())
		if statusErr == nil {
			out.Status = status
		}
	}
	return out, nil
}

func (s *MonitorService) DaemonLogs(_ context.Context, tail int) (string, error) {
	if tail <= 0 {
		tail = defaultLogTailLines
	}
	file, err := os.Open(s.daemon.LogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open daemon log: %w", err)
	}
	defer file.Close()

	lines := make([]string, 0, tail)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if len(lines) < tail {
			lines = append(lines, line)
			continue
		}
		copy(lines, lines[1:])
		lines[len(lines)-1] = line
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("scan daemon log: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

// Status reports the in-process loop status.
func (s *MonitorService) Status(_ context.Context) (monitorout.LoopStatus, error) {
	s.mu.RLock()
	rt := s.runtime
	s.mu.RUnlock()

	status := s.poller.Status()
	status.Restarts = s.supervisor.Restarts()
	if rt != nil {
		status.StartedAt = rt.startedAt
		status.HTTPAddr = rt.httpAddr
	}
	return status, nil
}

// Resume wakes a suspended polling loop, locally or through the daemon socket.
func (s *MonitorService) Resume(ctx context.Context) error {
	s.mu.RLock()
	rt := s.runtime
	s.mu.RUnlock()
	if rt != nil {
		s.poller.Resume()
		return nil
	}
	if s.ipcClient == nil || !socketReachable(s.daemon.SocketPath()) {
		return apperrors.ErrDaemonNotRunning
	}
	return s.ipcClient.Resume(ctx, s.daemon.SocketPath())
}

func (s *MonitorService) ActivityTail(ctx context.Context, query monitorout.ActivityQuery) ([]domain.ActivityEvent, error) {
	s.mu.RLock()
	rt := s.runtime
	s.mu.RUnlock()
	if rt == nil && s.ipcClient != nil && socketReachable(s.daemon.SocketPath()) {
		return s.ipcClient.ActivityTail(ctx, s.daemon.SocketPath(), query)
	}
	return s.activity.Tail(ctx, query)
}

// RecordEvent appends a foreground transition to the configured event file.
func (s *MonitorService) RecordEvent(ctx context.Context, ev domain.Event) error {
	if s.recorder == nil {
		return fmt.Errorf("%w: event source does not accept recorded events", apperrors.ErrInvalidInput)
	}
	if strings.TrimSpace(ev.AppID) == "" {
		return fmt.Errorf("%w: app id is required", apperrors.ErrInvalidInput)
	}
	if err := ev.Kind.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if ev.At.IsZero() {
		ev.At = s.clock.Now().UTC()
	}
	return s.recorder.Append(ctx, ev)
}

// Stop is the IPC entry point for a graceful shutdown.
func (s *MonitorService) Stop(ctx context.Context) error {
	return s.StopDaemon(ctx)
}

func (s *MonitorService) Table() *ConfigTable {
	return s.table
}

func (s *MonitorService) Poller() *Poller {
	return s.poller
}

func (s *MonitorService) Dispatcher() *Dispatcher {
	return s.dispatcher
}

func (s *MonitorService) cleanupRuntime(ctx context.Context) {
	s.mu.Lock()
	rt := s.runtime
	s.runtime = nil
	s.mu.Unlock()

	if rt != nil {
		if rt.httpSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			_ = rt.httpSrv.Shutdown(shutdownCtx)
			cancel()
		}
		if rt.httpLn != nil {
			_ = rt.httpLn.Close()
		}
		s.record(ctx, domain.ActivityEvent{Type: domain.ActivityDaemonStopped, Message: "monitor daemon stopped"})
		s.logger.Info("monitor daemon stopped")
	}
	_ = s.daemon.ClearPID(ctx)
	_ = os.Remove(s.daemon.SocketPath())
}

func (s *MonitorService) cleanupStaleArtifacts(ctx context.Context) error {
	pid, err := s.daemon.ReadPID(ctx)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	} else if pid > 0 && !processAlive(pid) {
		_ = s.daemon.ClearPID(ctx)
		_ = os.Remove(s.daemon.SocketPath())
	}

	if _, statErr := os.Stat(s.daemon.SocketPath()); statErr == nil {
		if !socketReachable(s.daemon.SocketPath()) {
			if removeErr := os.Remove(s.daemon.SocketPath()); removeErr != nil && !os.IsNotExist(removeErr) {
				return fmt.Errorf("remove stale daemon socket: %w", removeErr)
			}
		}
	}
	return nil
}

func (s *MonitorService) startHTTPEndpoint(rt *runtimeState) error {
	if s.httpAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("start http listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status, _ := s.Status(r.Context())
		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})
	for pattern, handler := range s.routes {
		mux.Handle(pattern, handler)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
	}
	rt.httpLn = ln
	rt.httpSrv = srv
	rt.httpAddr = ln.Addr().String()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("http endpoint stopped", "error", err)
		}
	}()
	return nil
}

func (s *MonitorService) record(ctx context.Context, event domain.ActivityEvent) {
	if s.activity == nil {
		return
	}
	if event.ID == "" {
		event.ID = s.ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now().UTC()
	}
	if err := s.activity.Append(ctx, event); err != nil {
		s.logger.Warn("append activity failed", "type", string(event.Type), "error", err)
	}
}

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if socketReachable(path) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon socket not ready: %s", path)
}

func socketReachable(path string) bool {
	conn, err := net.DialTimeout("unix", path, 150*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
