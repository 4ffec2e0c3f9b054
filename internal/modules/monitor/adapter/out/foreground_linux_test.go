//go:build linux

package out

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"appguard/internal/modules/monitor/domain"
)

func fakeProc(t *testing.T, pid, comm, exe string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, pid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if comm != "" {
		if err := os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644); err != nil {
			t.Fatalf("write comm: %v", err)
		}
	}
	if exe != "" {
		if err := os.Symlink(exe, filepath.Join(dir, "exe")); err != nil {
			t.Fatalf("symlink: %v", err)
		}
	}
	return root
}

func probeWith(root string, out []byte, err error, display string) *xdotoolProbe {
	return &xdotoolProbe{
		run: func(context.Context, string, ...string) ([]byte, error) {
			return out, err
		},
		getenv:   func(string) string { return display },
		procRoot: root,
	}
}

func TestXdotoolProbeResolvesExecutable(t *testing.T) {
	root := fakeProc(t, "4242", "Web Content", "/usr/lib/firefox/firefox")
	got, err := probeWith(root, []byte("4242\n"), nil, ":0").Foreground(context.Background())
	if err != nil || got != "firefox" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestXdotoolProbeFallsBackToComm(t *testing.T) {
	root := fakeProc(t, "7", "code", "")
	got, err := probeWith(root, []byte("7"), nil, ":0").Foreground(context.Background())
	if err != nil || got != "code" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestXdotoolProbeClassifiesErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := probeWith("", nil, nil, "").Foreground(ctx); !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("missing display: %v", err)
	}
	if _, err := probeWith("", nil, exec.ErrNotFound, ":0").Foreground(ctx); !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("missing xdotool: %v", err)
	}
	if _, err := probeWith("", []byte("garbage"), nil, ":0").Foreground(ctx); !errors.Is(err, domain.ErrSourceTransient) {
		t.Fatalf("bad output: %v", err)
	}
	if _, err := probeWith("", nil, errors.New("signal: killed"), ":0").Foreground(ctx); !errors.Is(err, domain.ErrSourceTransient) {
		t.Fatalf("killed: %v", err)
	}
	got, err := probeWith("", nil, &exec.ExitError{}, ":0").Foreground(ctx)
	if err != nil || got != "" {
		t.Fatalf("no focus should mean no app, got %q %v", got, err)
	}
}
