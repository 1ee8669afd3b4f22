// Package discord implements the platform ports over a discordgo session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/platform"
)

// Intents the ticket workflow needs: guild channels, guild messages for
// the close-reason collector, and their content.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

// Session wraps a gateway session. Every REST call carries the caller's
// context bounded by the request timeout.
type Session struct {
	session *discordgo.Session
	timeout time.Duration
	logger  *zap.Logger
}

// NewSession creates an unopened session for the bot token.
func NewSession(cfg config.DiscordConfig, timeout time.Duration, logger *zap.Logger) (*Session, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = Intents
	dg.StateEnabled = true
	return &Session{session: dg, timeout: timeout, logger: logger}, nil
}

// AddHandler registers a discordgo event handler and returns its remover.
func (s *Session) AddHandler(handler interface{}) func() {
	return s.session.AddHandler(handler)
}

// Open connects to the gateway.
func (s *Session) Open() error {
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	s.logger.Info("gateway connected", zap.Int("intents", int(s.session.Identify.Intents)))
	return nil
}

// Close disconnects from the gateway.
func (s *Session) Close() error {
	return s.session.Close()
}

// Ping reports whether the gateway connection is ready.
func (s *Session) Ping(context.Context) error {
	if !s.session.DataReady {
		return errors.New("gateway not ready")
	}
	return nil
}

func (s *Session) withTimeout(ctx context.Context) (discordgo.RequestOption, context.CancelFunc) {
	if s.timeout <= 0 {
		return discordgo.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return discordgo.WithContext(ctx), cancel
}

func (s *Session) RegisterCommands(ctx context.Context, appID, guildID string, commands []*discordgo.ApplicationCommand) error {
	opt, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.session.ApplicationCommandBulkOverwrite(appID, guildID, commands, opt); err != nil {
		return fmt.Errorf("overwrite guild commands: %w", err)
	}
	return nil
}

func (s *Session) Respond(ctx context.Context, interaction *discordgo.Interaction, reply platform.Reply) error {
	opt, cancel := s.withTimeout(ctx)
	defer cancel()
	err := s.session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    reply.Content,
			Embeds:     reply.Embeds,
			Components: reply.Components,
			Flags:      replyFlags(reply),
		},
	}, opt)
	if err != nil {
		return fmt.Errorf("respond to interaction %s: %w", interaction.ID, err)
	}
	return nil
}

func (s *Session) FollowUp(ctx context.Context, interaction *discordgo.Interaction, reply platform.Reply) error {
	opt, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.session.FollowupMessageCreate(interaction, false, &discordgo.WebhookParams{
		Content:    reply.Content,
		Embeds:     reply.Embeds,
		Components: reply.Components,
		Flags:      replyFlags(reply),
	}, opt)
	if err != nil {
		return fmt.Errorf("follow up interaction %s: %w", interaction.ID, err)
	}
	return nil
}

func (s *Session) SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	opt, cancel := s.withTimeout(ctx)
	defer cancel()
	sent, err := s.session.ChannelMessageSendComplex(channelID, msg, opt)
	if err != nil {
		return nil, fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return sent, nil
}

func (s *Session) CreateChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	opt, cancel := s.withTimeout(ctx)
	defer cancel()
	ch, err := s.session.GuildChannelCreateComplex(guildID, data, opt)
	if err != nil {
		return nil, fmt.Errorf("create channel %s: %w", data.Name, err)
	}
	return ch, nil
}

func (s *Session) DeleteChannel(ctx context.Context, channelID string) error {
	opt, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.session.ChannelDelete(channelID, opt); err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	return nil
}

func (s *Session) ListChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	opt, cancel := s.withTimeout(ctx)
	defer cancel()
	channels, err := s.session.GuildChannels(guildID, opt)
	if err != nil {
		return nil, fmt.Errorf("list channels of %s: %w", guildID, err)
	}
	return channels, nil
}

// Channel serves from the gateway state cache and falls back to REST.
func (s *Session) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if s.session.State != nil {
		if ch, err := s.session.State.Channel(channelID); err == nil {
			return ch, nil
		}
	}
	opt, cancel := s.withTimeout(ctx)
	defer cancel()
	ch, err := s.session.Channel(channelID, opt)
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	return ch, nil
}

func replyFlags(reply platform.Reply) discordgo.MessageFlags {
	if reply.Private {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

var _ platform.Platform = (*Session)(nil)
