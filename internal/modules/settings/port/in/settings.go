package in

import (
	"context"
	"io"

	"appguard/internal/modules/settings/dto"
)

type Usecase interface {
	Set(ctx context.Context, input dto.SetInput) (dto.SettingsOutput, error)
	Get(ctx context.Context, appID string) (dto.SettingsOutput, error)
	List(ctx context.Context) ([]dto.SettingsOutput, error)
	Remove(ctx context.Context, appID string) error
	Watch(ctx context.Context) (<-chan dto.SnapshotOutput, error)
	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, r io.Reader) (dto.ImportOutput, error)
}
