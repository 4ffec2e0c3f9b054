package out

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"appguard/internal/modules/monitor/domain"
)

const notificationTitle = "appguard"

// desktopCommands builds the platform commands behind the desktop channel.
// An empty argv means the platform cannot perform that action.
type desktopCommands interface {
	notify(title, message, icon string) []string
	play(path string) []string
	open(path string) []string
}

type commandStarter func(ctx context.Context, argv []string, wait bool) error

// DesktopPresenter shows alerts through native notifications. Audio is played
// and images or videos are opened with the platform handler next to the
// notification.
type DesktopPresenter struct {
	cmds  desktopCommands
	start commandStarter
}

func NewDesktopPresenter() *DesktopPresenter {
	return &DesktopPresenter{cmds: platformDesktopCommands(), start: startCommand}
}

func (p *DesktopPresenter) Name() string {
	return "desktop"
}

func (p *DesktopPresenter) Supports(kind domain.PayloadKind) bool {
	switch kind {
	case domain.PayloadText:
		return len(p.cmds.notify("", "", "")) > 0
	case domain.PayloadAudio:
		return len(p.cmds.play("")) > 0
	case domain.PayloadImage, domain.PayloadVideo:
		return len(p.cmds.open("")) > 0
	default:
		return false
	}
}

func (p *DesktopPresenter) Present(ctx context.Context, alert domain.Alert) error {
	icon := ""
	var media []string
	switch alert.Kind {
	case domain.PayloadImage:
		icon = alert.Content
		media = p.cmds.open(alert.Content)
	case domain.PayloadVideo:
		media = p.cmds.open(alert.Content)
	case domain.PayloadAudio:
		media = p.cmds.play(alert.Content)
	}
	if alert.Kind != domain.PayloadText && len(media) == 0 {
		return fmt.Errorf("%w: desktop cannot present %s alerts", domain.ErrPresentationFailure, alert.Kind)
	}
	if len(media) > 0 {
		// Players and viewers outlive the presentation.
		if err := p.start(ctx, media, false); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrPresentationFailure, media[0], err)
		}
	}

	notify := p.cmds.notify(notificationTitle, alert.Message, icon)
	if len(notify) == 0 {
		if len(media) > 0 {
			return nil
		}
		return fmt.Errorf("%w: no notification command", domain.ErrPresentationFailure)
	}
	if err := p.start(ctx, notify, true); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrPresentationFailure, notify[0], err)
	}
	return nil
}

func startCommand(ctx context.Context, argv []string, wait bool) error {
	if wait {
		out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && len(out) > 0 {
				return fmt.Errorf("%v: %s", err, out)
			}
			return err
		}
		return nil
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
