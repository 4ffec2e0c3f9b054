package out

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"appguard/internal/modules/monitor/domain"
)

// TerminalPresenter prints alerts to a writer. It is the last-resort channel
// and handles text only.
type TerminalPresenter struct {
	mu   sync.Mutex
	w    io.Writer
	bell bool
}

func NewTerminalPresenter(w io.Writer) *TerminalPresenter {
	bell := false
	if f, ok := w.(*os.File); ok {
		bell = term.IsTerminal(int(f.Fd()))
	}
	return &TerminalPresenter{w: w, bell: bell}
}

func (p *TerminalPresenter) Name() string {
	return "terminal"
}

func (p *TerminalPresenter) Supports(kind domain.PayloadKind) bool {
	return kind == domain.PayloadText
}

func (p *TerminalPresenter) Present(_ context.Context, alert domain.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	prefix := ""
	if p.bell {
		prefix = "\a"
	}
	_, err := fmt.Fprintf(p.w, "%s[appguard %s] %s: %s\n", prefix, alert.At.Local().Format(time.Kitchen), alert.AppID, alert.Content)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPresentationFailure, err)
	}
	return nil
}
