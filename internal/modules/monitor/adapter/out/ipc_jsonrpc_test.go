package out_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	out "appguard/internal/modules/monitor/adapter/out"
	"appguard/internal/modules/monitor/domain"
	monitorout "appguard/internal/modules/monitor/port/out"
)

type fakeIPCHandler struct {
	mu      sync.Mutex
	resumed int
	stopped bool
}

func (h *fakeIPCHandler) Status(context.Context) (monitorout.LoopStatus, error) {
	return monitorout.LoopStatus{
		State:     monitorout.LoopPolling,
		Ticks:     42,
		Monitored: []string{"firefox"},
		Sessions:  []domain.Session{{AppID: "firefox", StartedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}},
	}, nil
}

func (h *fakeIPCHandler) Resume(context.Context) error {
	h.mu.Lock()
	h.resumed++
	h.mu.Unlock()
	return nil
}

func (h *fakeIPCHandler) ActivityTail(_ context.Context, query monitorout.ActivityQuery) ([]domain.ActivityEvent, error) {
	return []domain.ActivityEvent{{ID: "evt-1", Type: domain.ActivityAlertDispatched, AppID: "firefox", Message: "limit", Fields: map[string]string{"limit": "x"}}}[:min(query.Limit, 1)], nil
}

func (h *fakeIPCHandler) Stop(context.Context) error {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	return nil
}

func TestJSONRPCServerClientContract(t *testing.T) {
	t.Parallel()
	h := &fakeIPCHandler{}
	server := out.NewJSONRPCServer()
	client := out.NewJSONRPCClient()
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx, socketPath, h)
	}()

	var (
		status monitorout.LoopStatus
		err    error
	)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err = client.Status(context.Background(), socketPath)
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != monitorout.LoopPolling || status.Ticks != 42 || len(status.Sessions) != 1 {
		t.Fatalf("unexpected status output: %+v", status)
	}

	if err := client.Resume(context.Background(), socketPath); err != nil {
		t.Fatalf("resume: %v", err)
	}
	h.mu.Lock()
	resumed := h.resumed
	h.mu.Unlock()
	if resumed != 1 {
		t.Fatalf("expected resume hook to run once, got %d", resumed)
	}

	events, err := client.ActivityTail(context.Background(), socketPath, monitorout.ActivityQuery{Limit: 5})
	if err != nil {
		t.Fatalf("activity tail: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.ActivityAlertDispatched {
		t.Fatalf("unexpected activity output: %+v", events)
	}

	if err := client.Stop(context.Background(), socketPath); err != nil {
		t.Fatalf("stop rpc: %v", err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		stopped := h.stopped
		h.mu.Unlock()
		if stopped {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if !stopped {
		t.Fatalf("expected stop hook to run")
	}

	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve exit error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
