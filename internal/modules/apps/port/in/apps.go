package in

import (
	"context"

	"appguard/internal/modules/apps/dto"
)

type Usecase interface {
	List(ctx context.Context) ([]dto.AppOutput, error)
	// Names maps app ids to display names for the installed applications.
	Names(ctx context.Context) (map[string]string, error)
}
