//go:build linux

package out

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"appguard/internal/modules/monitor/domain"
)

var _ ForegroundProbe = (*xdotoolProbe)(nil)

// xdotoolProbe resolves the focused X11 window to the executable that owns it.
type xdotoolProbe struct {
	run      commandOutput
	getenv   func(string) string
	procRoot string
}

func NewForegroundProbe() ForegroundProbe {
	return &xdotoolProbe{run: execOutput, getenv: os.Getenv, procRoot: "/proc"}
}

func (p *xdotoolProbe) Foreground(ctx context.Context) (string, error) {
	if p.getenv("DISPLAY") == "" {
		return "", fmt.Errorf("%w: DISPLAY is not set", domain.ErrSourceUnavailable)
	}
	out, err := p.run(ctx, "xdotool", "getactivewindow", "getwindowpid")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: xdotool is not installed", domain.ErrSourceUnavailable)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// No window has focus, or the window exposes no pid.
			return "", nil
		}
		return "", fmt.Errorf("%w: xdotool: %v", domain.ErrSourceTransient, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || pid <= 0 {
		return "", fmt.Errorf("%w: unexpected xdotool output %q", domain.ErrSourceTransient, strings.TrimSpace(string(out)))
	}
	return p.appIDForPID(pid), nil
}

// appIDForPID names a process by its executable, falling back to comm.
func (p *xdotoolProbe) appIDForPID(pid int) string {
	dir := filepath.Join(p.procRoot, strconv.Itoa(pid))
	if exe, err := os.Readlink(filepath.Join(dir, "exe")); err == nil {
		return filepath.Base(strings.TrimSuffix(exe, " (deleted)"))
	}
	if comm, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
		return strings.TrimSpace(string(comm))
	}
	return ""
}
