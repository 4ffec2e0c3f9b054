package out

import (
	"context"

	"appguard/internal/modules/apps/domain"
)

type Directory interface {
	List(ctx context.Context) ([]domain.AppInfo, error)
}
