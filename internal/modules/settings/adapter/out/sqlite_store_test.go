package out_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	settingsout "appguard/internal/modules/settings/adapter/out"
	"appguard/internal/modules/settings/domain"
	portout "appguard/internal/modules/settings/port/out"
	apperrors "appguard/internal/platform/errors"
)

func sample(appID string, enabled bool) domain.AppSettings {
	s := domain.Defaults(appID)
	s.Enabled = enabled
	s.UpdatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return s
}

func recv(t *testing.T, feed <-chan portout.Snapshot) portout.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-feed:
		if !ok {
			t.Fatalf("watch feed closed unexpectedly")
		}
		return snap
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return portout.Snapshot{}
}

func TestSQLiteStoreCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := settingsout.NewSQLiteStore(filepath.Join(t.TempDir(), "appguard.db"), clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	item := sample("org.example.chat", true)
	item.Kind = domain.AlertAudio
	item.Content = "/tmp/bell.ogg"
	item.Threshold = 90 * time.Second
	item.TimeoutMessage = "enough chat"
	if err := store.Save(ctx, item); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, item.AppID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Kind != domain.AlertAudio || got.Threshold != 90*time.Second || got.Content != "/tmp/bell.ogg" || !got.Enabled {
		t.Fatalf("unexpected round trip: %+v", got)
	}
	if !got.UpdatedAt.Equal(item.UpdatedAt) {
		t.Fatalf("updated_at mismatch: %s vs %s", got.UpdatedAt, item.UpdatedAt)
	}

	item.Enabled = false
	if err := store.Save(ctx, item); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Enabled {
		t.Fatalf("expected single disabled entry, got %+v", list)
	}

	if err := store.Delete(ctx, item.AppID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, item.AppID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("second delete should report not found, got %v", err)
	}
}

func TestWatchEmitsOnLocalAndForeignCommits(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "appguard.db")
	clk := clockwork.NewFakeClock()
	store, err := settingsout.NewSQLiteStore(dbPath, clk)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, err := store.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if first := recv(t, feed); first.Err != nil || len(first.Settings) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", first)
	}

	if err := store.Save(ctx, sample("a", true)); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if second := recv(t, feed); len(second.Settings) != 1 || second.Settings[0].AppID != "a" {
		t.Fatalf("expected snapshot with a, got %+v", second)
	}

	other, err := settingsout.NewSQLiteStore(dbPath, clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	defer other.Close()
	if err := other.Save(ctx, sample("b", false)); err != nil {
		t.Fatalf("save b: %v", err)
	}
	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("wait for watch ticker: %v", err)
	}
	clk.Advance(time.Second)
	third := recv(t, feed)
	if len(third.Settings) != 2 {
		t.Fatalf("expected foreign commit to be observed, got %+v", third)
	}

	cancel()
	select {
	case _, ok := <-feed:
		for ok {
			_, ok = <-feed
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("feed did not close after cancel")
	}
}

func TestTxManagerCommitsOrRollsBackTogether(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := settingsout.NewSQLiteStore(filepath.Join(t.TempDir(), "appguard.db"), clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	mgr := store.TxManager()

	boom := errors.New("boom")
	err = mgr.Within(ctx, func(ctx context.Context) error {
		if err := store.Save(ctx, sample("a", true)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected rollback error, got %v", err)
	}
	if list, _ := store.List(ctx); len(list) != 0 {
		t.Fatalf("rolled back write is visible: %+v", list)
	}

	err = mgr.Within(ctx, func(ctx context.Context) error {
		for _, id := range []string{"a", "b"} {
			if err := store.Save(ctx, sample(id, true)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected both records committed, got %+v", list)
	}
}
