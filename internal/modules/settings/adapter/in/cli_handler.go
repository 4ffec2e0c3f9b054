package in

import (
	"context"
	"io"

	settingsdto "appguard/internal/modules/settings/dto"
	settingsin "appguard/internal/modules/settings/port/in"
)

type CLIHandler struct {
	usecase settingsin.Usecase
}

func NewCLIHandler(usecase settingsin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Set(ctx context.Context, input settingsdto.SetInput) (settingsdto.SettingsOutput, error) {
	return h.usecase.Set(ctx, input)
}

func (h CLIHandler) Show(ctx context.Context, appID string) (settingsdto.SettingsOutput, error) {
	return h.usecase.Get(ctx, appID)
}

func (h CLIHandler) List(ctx context.Context) ([]settingsdto.SettingsOutput, error) {
	return h.usecase.List(ctx)
}

func (h CLIHandler) Remove(ctx context.Context, appID string) error {
	return h.usecase.Remove(ctx, appID)
}

func (h CLIHandler) Export(ctx context.Context, w io.Writer) error {
	return h.usecase.Export(ctx, w)
}

func (h CLIHandler) Import(ctx context.Context, r io.Reader) (settingsdto.ImportOutput, error) {
	return h.usecase.Import(ctx, r)
}
