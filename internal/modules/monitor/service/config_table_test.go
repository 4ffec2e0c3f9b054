package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"appguard/internal/modules/monitor/domain"
	monitorout "appguard/internal/modules/monitor/port/out"
	"appguard/internal/modules/monitor/service"
	"appguard/internal/platform/logging"
)

func TestConfigTableFollowsFeed(t *testing.T) {
	t.Parallel()
	table := service.NewConfigTable(logging.Discard())
	if table.Current().Len() != 0 {
		t.Fatalf("new table must start empty")
	}
	feed := newStaticFeed(monitored("com.video", 30*time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- table.Subscribe(ctx, feed) }()

	waitFor(t, "initial snapshot", func() bool { return table.Current().Len() == 1 })

	disabled := monitored("com.chat", time.Minute)
	disabled.Enabled = false
	feed.updates <- monitorout.ConfigUpdate{Configs: []domain.MonitorConfig{monitored("com.video", time.Hour), disabled}}
	waitFor(t, "replacement", func() bool {
		cfg, ok := table.Current().Lookup("com.video")
		return ok && cfg.Threshold == time.Hour
	})
	if _, ok := table.Current().Lookup("com.chat"); ok {
		t.Fatalf("disabled app must not be in the snapshot")
	}

	feed.updates <- monitorout.ConfigUpdate{Err: errors.New("database is locked")}
	feed.updates <- monitorout.ConfigUpdate{Configs: []domain.MonitorConfig{monitored("com.video", time.Hour), monitored("com.game", time.Hour)}}
	waitFor(t, "update after error", func() bool { return table.Current().Len() == 2 })

	close(feed.updates)
	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrSubscriptionFailure) {
			t.Fatalf("expected subscription failure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscribe did not return after feed closed")
	}
	if table.Current().Len() != 2 {
		t.Fatalf("last snapshot must stay in effect after the feed breaks")
	}
}

func TestConfigTableSubscribeFailure(t *testing.T) {
	t.Parallel()
	table := service.NewConfigTable(logging.Discard())
	err := table.Subscribe(context.Background(), &staticFeed{err: errors.New("open settings db")})
	if !errors.Is(err, domain.ErrSubscriptionFailure) {
		t.Fatalf("expected subscription failure, got %v", err)
	}
}
