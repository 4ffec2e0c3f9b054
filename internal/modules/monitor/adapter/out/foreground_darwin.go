//go:build darwin

package out

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"appguard/internal/modules/monitor/domain"
)

var _ ForegroundProbe = (*osascriptProbe)(nil)

const frontmostScript = `tell application "System Events" to get bundle identifier of first application process whose frontmost is true`

// osascriptProbe asks System Events for the frontmost bundle identifier.
// It needs the Accessibility/Automation permission for the calling terminal.
type osascriptProbe struct {
	run commandOutput
}

func NewForegroundProbe() ForegroundProbe {
	return &osascriptProbe{run: execOutput}
}

func (p *osascriptProbe) Foreground(ctx context.Context) (string, error) {
	out, err := p.run(ctx, "osascript", "-e", frontmostScript)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: osascript not found", domain.ErrSourceUnavailable)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && permissionDenied(string(exitErr.Stderr)) {
			return "", fmt.Errorf("%w: automation permission denied", domain.ErrSourceUnavailable)
		}
		return "", fmt.Errorf("%w: osascript: %v", domain.ErrSourceTransient, err)
	}
	id := strings.TrimSpace(string(out))
	if id == "missing value" {
		return "", nil
	}
	return id, nil
}

// -1743 is errAEEventNotPermitted, -1719 is the assistive access error.
func permissionDenied(stderr string) bool {
	return strings.Contains(stderr, "-1743") || strings.Contains(stderr, "-1719") || strings.Contains(stderr, "not allowed")
}
