package in

import (
	"context"

	appsdto "appguard/internal/modules/apps/dto"
	appsin "appguard/internal/modules/apps/port/in"
)

type CLIHandler struct {
	usecase appsin.Usecase
}

func NewCLIHandler(usecase appsin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) List(ctx context.Context) ([]appsdto.AppOutput, error) {
	return h.usecase.List(ctx)
}

func (h CLIHandler) Names(ctx context.Context) (map[string]string, error) {
	return h.usecase.Names(ctx)
}
