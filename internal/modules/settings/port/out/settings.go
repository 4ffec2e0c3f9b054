package out

import (
	"context"

	"appguard/internal/modules/settings/domain"
)

// Snapshot is one push of the full settings collection; Err is set when the
// collection could not be read and Settings must be ignored.
type Snapshot struct {
	Settings []domain.AppSettings
	Err      error
}

type Store interface {
	Get(ctx context.Context, appID string) (domain.AppSettings, error)
	List(ctx context.Context) ([]domain.AppSettings, error)
	Save(ctx context.Context, settings domain.AppSettings) error
	Delete(ctx context.Context, appID string) error
	// Watch emits the full collection immediately and again after every change,
	// including changes committed by other processes. The channel closes when
	// ctx is done.
	Watch(ctx context.Context) (<-chan Snapshot, error)
}
