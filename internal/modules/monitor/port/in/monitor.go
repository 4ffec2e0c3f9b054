package in

import (
	"context"
	"time"

	"appguard/internal/modules/monitor/dto"
)

type Usecase interface {
	RunDaemon(ctx context.Context) error
	StartDaemon(ctx context.Context) error
	StopDaemon(ctx context.Context) error
	DaemonStatus(ctx context.Context) (dto.DaemonStatusOutput, error)
	DaemonLogs(ctx context.Context, tail int) (string, error)
	Resume(ctx context.Context) error
	ActivityTail(ctx context.Context, since time.Time, limit int) ([]dto.ActivityOutput, error)
	RecordEvent(ctx context.Context, input dto.EventInput) error
}
