package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"

	"appguard/internal/modules/settings/domain"
	settingsdto "appguard/internal/modules/settings/dto"
	settingsin "appguard/internal/modules/settings/port/in"
	"appguard/internal/modules/settings/service"
	apperrors "appguard/internal/platform/errors"
)

type Interactor struct {
	svc *service.SettingsService
}

func NewInteractor(svc *service.SettingsService) settingsin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Set(ctx context.Context, input settingsdto.SetInput) (settingsdto.SettingsOutput, error) {
	appID := strings.TrimSpace(input.AppID)
	if appID == "" {
		return settingsdto.SettingsOutput{}, fmt.Errorf("%w: app id is required", apperrors.ErrInvalidInput)
	}
	settings, _, err := i.svc.Load(ctx, appID)
	if err != nil {
		return settingsdto.SettingsOutput{}, err
	}
	if input.Enabled != nil {
		settings.Enabled = *input.Enabled
	}
	if input.Kind != nil {
		kind, err := domain.ParseAlertKind(*input.Kind)
		if err != nil {
			return settingsdto.SettingsOutput{}, err
		}
		settings.Kind = kind
	}
	if input.Content != nil {
		settings.Content = *input.Content
	}
	if input.Threshold != nil {
		settings.Threshold = *input.Threshold
	}
	if input.TimeoutMessage != nil {
		settings.TimeoutMessage = *input.TimeoutMessage
	}
	saved, err := i.svc.Save(ctx, settings)
	if err != nil {
		return settingsdto.SettingsOutput{}, err
	}
	return toOutput(saved), nil
}

func (i *Interactor) Get(ctx context.Context, appID string) (settingsdto.SettingsOutput, error) {
	settings, err := i.svc.Get(ctx, appID)
	if err != nil {
		return settingsdto.SettingsOutput{}, err
	}
	return toOutput(settings), nil
}

func (i *Interactor) List(ctx context.Context) ([]settingsdto.SettingsOutput, error) {
	list, err := i.svc.List(ctx)
	if err != nil {
		return nil, err
	}
	return toOutputs(list), nil
}

func (i *Interactor) Remove(ctx context.Context, appID string) error {
	if strings.TrimSpace(appID) == "" {
		return fmt.Errorf("%w: app id is required", apperrors.ErrInvalidInput)
	}
	return i.svc.Delete(ctx, appID)
}

func (i *Interactor) Watch(ctx context.Context) (<-chan settingsdto.SnapshotOutput, error) {
	in, err := i.svc.Watch(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan settingsdto.SnapshotOutput, 1)
	go func() {
		defer close(out)
		for snap := range in {
			select {
			case out <- settingsdto.SnapshotOutput{Settings: toOutputs(snap.Settings), Err: snap.Err}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (i *Interactor) Export(ctx context.Context, w io.Writer) error {
	return i.svc.Export(ctx, w)
}

func (i *Interactor) Import(ctx context.Context, r io.Reader) (settingsdto.ImportOutput, error) {
	n, err := i.svc.Import(ctx, r)
	if err != nil {
		return settingsdto.ImportOutput{}, err
	}
	return settingsdto.ImportOutput{Imported: n}, nil
}

func toOutputs(list []domain.AppSettings) []settingsdto.SettingsOutput {
	out := make([]settingsdto.SettingsOutput, 0, len(list))
	for _, item := range list {
		out = append(out, toOutput(item))
	}
	return out
}

func toOutput(s domain.AppSettings) settingsdto.SettingsOutput {
	return settingsdto.SettingsOutput{
		AppID:          s.AppID,
		Enabled:        s.Enabled,
		Kind:           string(s.Kind),
		Content:        s.Content,
		Threshold:      s.Threshold,
		TimeoutMessage: s.TimeoutMessage,
		UpdatedAt:      s.UpdatedAt,
	}
}
