package out

import (
	"context"
	"os/exec"
)

// ForegroundProbe reports the application currently in the foreground, or ""
// when nothing is focused. Permission problems wrap
// domain.ErrSourceUnavailable.
type ForegroundProbe interface {
	Foreground(ctx context.Context) (string, error)
}

type commandOutput func(ctx context.Context, name string, args ...string) ([]byte, error)

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
