package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"appguard/internal/modules/monitor/domain"
	monitorout "appguard/internal/modules/monitor/port/out"
	"appguard/internal/platform/metrics"
)

// ConfigTable holds the current configuration snapshot. Readers take the
// snapshot with Current and never wait on the settings feed.
type ConfigTable struct {
	snap   atomic.Pointer[domain.Snapshot]
	logger *slog.Logger

	// onFailure observes feed errors after they are logged.
	onFailure func(err error)
}

func NewConfigTable(logger *slog.Logger) *ConfigTable {
	if logger == nil {
		logger = slog.Default()
	}
	t := &ConfigTable{logger: logger.With("component", "config_table")}
	t.snap.Store(domain.NewSnapshot(nil))
	return t
}

func (t *ConfigTable) Current() *domain.Snapshot {
	return t.snap.Load()
}

// Replace swaps in a snapshot built from configs. Disabled entries are dropped.
func (t *ConfigTable) Replace(configs []domain.MonitorConfig) {
	next := domain.NewSnapshot(configs)
	t.snap.Store(next)
	metrics.MonitoredApps.Set(float64(next.Len()))
	t.logger.Debug("configuration replaced", "monitored", next.Len())
}

// Subscribe applies feed updates until ctx ends. Error updates keep the last
// snapshot in effect. A feed that closes while ctx is live is reported as
// domain.ErrSubscriptionFailure so the caller can resubscribe.
func (t *ConfigTable) Subscribe(ctx context.Context, feed monitorout.SettingsFeed) error {
	updates, err := feed.Watch(ctx)
	if err != nil {
		t.fail(err)
		return fmt.Errorf("%w: %v", domain.ErrSubscriptionFailure, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				err := fmt.Errorf("%w: feed closed", domain.ErrSubscriptionFailure)
				t.fail(err)
				return err
			}
			if upd.Err != nil {
				t.fail(upd.Err)
				continue
			}
			t.Replace(upd.Configs)
		}
	}
}

func (t *ConfigTable) fail(err error) {
	metrics.SubscriptionFailures.Inc()
	t.logger.Warn("settings feed error, keeping last snapshot", "error", err, "monitored", t.Current().Len())
	if t.onFailure != nil {
		t.onFailure(err)
	}
}
