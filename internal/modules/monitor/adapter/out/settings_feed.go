package out

import (
	"context"
	"fmt"

	"appguard/internal/modules/monitor/domain"
	monitorout "appguard/internal/modules/monitor/port/out"
	settingsdto "appguard/internal/modules/settings/dto"
)

type settingsWatcher interface {
	Watch(ctx context.Context) (<-chan settingsdto.SnapshotOutput, error)
}

// SettingsFeed adapts the settings module watch stream to monitor configs.
type SettingsFeed struct {
	settings settingsWatcher
}

func NewSettingsFeed(settings settingsWatcher) *SettingsFeed {
	return &SettingsFeed{settings: settings}
}

func (f *SettingsFeed) Watch(ctx context.Context) (<-chan monitorout.ConfigUpdate, error) {
	snapshots, err := f.settings.Watch(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan monitorout.ConfigUpdate)
	go func() {
		defer close(out)
		for snap := range snapshots {
			upd := monitorout.ConfigUpdate{}
			if snap.Err != nil {
				upd.Err = fmt.Errorf("%w: %v", domain.ErrSubscriptionFailure, snap.Err)
			} else {
				upd.Configs = toMonitorConfigs(snap.Settings)
			}
			select {
			case out <- upd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func toMonitorConfigs(items []settingsdto.SettingsOutput) []domain.MonitorConfig {
	out := make([]domain.MonitorConfig, 0, len(items))
	for _, item := range items {
		out = append(out, domain.MonitorConfig{
			AppID:          item.AppID,
			Enabled:        item.Enabled,
			Threshold:      item.Threshold,
			Payload:        domain.AlertPayload{Kind: domain.PayloadKind(item.Kind), Content: item.Content},
			TimeoutMessage: item.TimeoutMessage,
		})
	}
	return out
}
