package in

import (
	"context"
	"fmt"
	"strings"
	"time"

	"appguard/internal/modules/monitor/dto"
	monitorin "appguard/internal/modules/monitor/port/in"
	apperrors "appguard/internal/platform/errors"
)

type CLIHandler struct {
	usecase monitorin.Usecase
}

func NewCLIHandler(usecase monitorin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) RunDaemon(ctx context.Context) error {
	return h.usecase.RunDaemon(ctx)
}

func (h CLIHandler) StartDaemon(ctx context.Context) error {
	return h.usecase.StartDaemon(ctx)
}

func (h CLIHandler) StopDaemon(ctx context.Context) error {
	return h.usecase.StopDaemon(ctx)
}

func (h CLIHandler) DaemonStatus(ctx context.Context) (dto.DaemonStatusOutput, error) {
	return h.usecase.DaemonStatus(ctx)
}

func (h CLIHandler) DaemonLogs(ctx context.Context, tail int) (string, error) {
	return h.usecase.DaemonLogs(ctx, tail)
}

func (h CLIHandler) Resume(ctx context.Context) error {
	return h.usecase.Resume(ctx)
}

// ActivityTail accepts a look-back window such as 2h; zero means no bound.
func (h CLIHandler) ActivityTail(ctx context.Context, within time.Duration, limit int) ([]dto.ActivityOutput, error) {
	since := time.Time{}
	if within > 0 {
		since = time.Now().Add(-within)
	}
	return h.usecase.ActivityTail(ctx, since, limit)
}

// RecordEvent takes an optional RFC 3339 timestamp.
func (h CLIHandler) RecordEvent(ctx context.Context, appID, kind, at string) error {
	input := dto.EventInput{AppID: strings.TrimSpace(appID), Kind: strings.ToLower(strings.TrimSpace(kind))}
	if strings.TrimSpace(at) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(at))
		if err != nil {
			return fmt.Errorf("%w: invalid --at %q: %v", apperrors.ErrInvalidInput, at, err)
		}
		input.At = parsed.UTC()
	}
	return h.usecase.RecordEvent(ctx, input)
}
