package out

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bwmarrin/discordgo"

	"appguard/internal/modules/monitor/domain"
)

type fakeDesktop struct{ audio bool }

func (fakeDesktop) notify(title, message, icon string) []string {
	return []string{"notify", title, message, icon}
}

func (d fakeDesktop) play(path string) []string {
	if !d.audio {
		return nil
	}
	return []string{"play", path}
}

func (fakeDesktop) open(path string) []string { return []string{"open", path} }

type startCall struct {
	argv []string
	wait bool
}

func recordStarts(calls *[]startCall, err error) commandStarter {
	return func(_ context.Context, argv []string, wait bool) error {
		*calls = append(*calls, startCall{argv: argv, wait: wait})
		return err
	}
}

func TestDesktopPresenterOpensMediaThenNotifies(t *testing.T) {
	var calls []startCall
	p := &DesktopPresenter{cmds: fakeDesktop{}, start: recordStarts(&calls, nil)}
	alert := domain.Alert{AppID: "firefox", Kind: domain.PayloadImage, Content: "/tmp/stop.png", Message: "stop"}
	if err := p.Present(context.Background(), alert); err != nil {
		t.Fatalf("present: %v", err)
	}
	want := []startCall{
		{argv: []string{"open", "/tmp/stop.png"}, wait: false},
		{argv: []string{"notify", notificationTitle, "stop", "/tmp/stop.png"}, wait: true},
	}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %+v, want %+v", calls, want)
	}
}

func TestDesktopPresenterWithoutPlayerRefusesAudio(t *testing.T) {
	var calls []startCall
	p := &DesktopPresenter{cmds: fakeDesktop{}, start: recordStarts(&calls, nil)}
	if p.Supports(domain.PayloadAudio) {
		t.Fatalf("audio must be unsupported without a player")
	}
	err := p.Present(context.Background(), domain.Alert{Kind: domain.PayloadAudio, Content: "/tmp/a.ogg"})
	if !errors.Is(err, domain.ErrPresentationFailure) || len(calls) != 0 {
		t.Fatalf("expected failure with no commands, got %v %+v", err, calls)
	}
}

func TestDesktopPresenterWrapsCommandFailure(t *testing.T) {
	var calls []startCall
	p := &DesktopPresenter{cmds: fakeDesktop{audio: true}, start: recordStarts(&calls, errors.New("exit status 1"))}
	err := p.Present(context.Background(), domain.Alert{Kind: domain.PayloadText, Message: "stop", Content: "stop"})
	if !errors.Is(err, domain.ErrPresentationFailure) {
		t.Fatalf("expected presentation failure, got %v", err)
	}
}

type fakeDiscord struct {
	channel string
	sent    *discordgo.MessageSend
	err     error
}

func (f *fakeDiscord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel = channelID
	f.sent = data
	return &discordgo.Message{}, f.err
}

func TestDiscordPresenterAttachesMedia(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	api := &fakeDiscord{}
	p := &DiscordPresenter{api: api, channelID: "123"}
	alert := domain.Alert{AppID: "firefox", Kind: domain.PayloadImage, Content: path, Message: "stop"}
	if err := p.Present(context.Background(), alert); err != nil {
		t.Fatalf("present: %v", err)
	}
	if api.channel != "123" || api.sent.Content != "**firefox**: stop" {
		t.Fatalf("unexpected message %+v to %q", api.sent, api.channel)
	}
	if len(api.sent.Files) != 1 || api.sent.Files[0].Name != "stop.png" || api.sent.Files[0].ContentType != "image/png" {
		t.Fatalf("unexpected attachment %+v", api.sent.Files)
	}
}

func TestDiscordPresenterFailures(t *testing.T) {
	p := &DiscordPresenter{api: &fakeDiscord{err: errors.New("401")}, channelID: "123"}
	if err := p.Present(context.Background(), domain.Alert{Kind: domain.PayloadText, Message: "stop"}); !errors.Is(err, domain.ErrPresentationFailure) {
		t.Fatalf("expected api failure to be a presentation failure, got %v", err)
	}
	p = &DiscordPresenter{api: &fakeDiscord{}, channelID: "123"}
	missing := domain.Alert{Kind: domain.PayloadAudio, Content: filepath.Join(t.TempDir(), "nope.ogg")}
	if err := p.Present(context.Background(), missing); !errors.Is(err, domain.ErrPresentationFailure) {
		t.Fatalf("expected missing media to fail, got %v", err)
	}
}

func TestNormalizeBotToken(t *testing.T) {
	if got := normalizeBotToken(" abc "); got != "Bot abc" {
		t.Fatalf("got %q", got)
	}
	if got := normalizeBotToken("bot abc"); got != "bot abc" {
		t.Fatalf("got %q", got)
	}
}
