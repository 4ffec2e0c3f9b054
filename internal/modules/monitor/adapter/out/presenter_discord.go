package out

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/discordgo"

	"appguard/internal/modules/monitor/domain"
)

type discordAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordPresenter posts alerts to a Discord channel through a bot. Media
// alerts attach the referenced file.
type DiscordPresenter struct {
	api       discordAPI
	channelID string
}

func NewDiscordPresenter(token, channelID string) (*DiscordPresenter, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(channelID) == "" {
		return nil, fmt.Errorf("discord token and channel id are required")
	}
	session, err := discordgo.New(normalizeBotToken(token))
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &DiscordPresenter{api: session, channelID: strings.TrimSpace(channelID)}, nil
}

func (p *DiscordPresenter) Name() string {
	return "discord"
}

func (p *DiscordPresenter) Supports(domain.PayloadKind) bool {
	return true
}

func (p *DiscordPresenter) Present(ctx context.Context, alert domain.Alert) error {
	msg := &discordgo.MessageSend{Content: fmt.Sprintf("**%s**: %s", alert.AppID, alert.Message)}
	if alert.Kind != domain.PayloadText && alert.Content != "" {
		file, err := os.Open(alert.Content)
		if err != nil {
			return fmt.Errorf("%w: open %s: %v", domain.ErrPresentationFailure, alert.Content, err)
		}
		defer file.Close()
		name := filepath.Base(alert.Content)
		msg.Files = []*discordgo.File{{
			Name:        name,
			ContentType: mime.TypeByExtension(filepath.Ext(name)),
			Reader:      file,
		}}
	}
	if _, err := p.api.ChannelMessageSendComplex(p.channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: discord: %v", domain.ErrPresentationFailure, err)
	}
	return nil
}

func normalizeBotToken(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(token), "bot ") {
		return token
	}
	return "Bot " + token
}
