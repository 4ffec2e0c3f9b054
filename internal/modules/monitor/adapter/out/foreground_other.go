//go:build !linux && !darwin

package out

import (
	"context"
	"fmt"
	"runtime"

	"appguard/internal/modules/monitor/domain"
)

type unsupportedProbe struct{}

func NewForegroundProbe() ForegroundProbe {
	return unsupportedProbe{}
}

func (unsupportedProbe) Foreground(context.Context) (string, error) {
	return "", fmt.Errorf("%w: no foreground probe for %s", domain.ErrSourceUnavailable, runtime.GOOS)
}
