package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/platform"
)

// NotificationService reacts to ticket events: every event is logged and
// lifecycle milestones are summarized in the staff log channel when one
// is configured.
type NotificationService struct {
	dispatcher   events.Dispatcher
	messages     platform.MessagePort
	logger       *zap.Logger
	logChannelID string
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, messages platform.MessagePort, logger *zap.Logger, logChannelID string) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:   dispatcher,
		messages:     messages,
		logger:       logger,
		logChannelID: logChannelID,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.SubscribeAll(n.handleAny)
	n.dispatcher.Subscribe(events.EventTicketOpened, n.handleTicketOpened)
	n.dispatcher.Subscribe(events.EventTicketClaimed, n.handleTicketClaimed)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
}

func (n *NotificationService) handleAny(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("ticket_id", event.TicketID),
		zap.String("channel_id", event.ChannelID),
		zap.String("actor_id", event.Actor.UserID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketOpened(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketOpenedPayload)
	return n.postLog(ctx, event, &discordgo.MessageEmbed{
		Title:       "Ticket opened",
		Description: fmt.Sprintf("<@%s> opened <#%s>.", event.Actor.UserID, event.ChannelID),
		Color:       0x00FF00,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Ticket", Value: payload.Key, Inline: true},
			{Name: "Category", Value: payload.Category, Inline: true},
		},
	})
}

func (n *NotificationService) handleTicketClaimed(ctx context.Context, event events.Event) error {
	return n.postLog(ctx, event, &discordgo.MessageEmbed{
		Title:       "Ticket claimed",
		Description: fmt.Sprintf("<@%s> claimed <#%s>.", event.Actor.UserID, event.ChannelID),
		Color:       0xFFD700,
	})
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketClosedPayload)
	return n.postLog(ctx, event, &discordgo.MessageEmbed{
		Title:       "Ticket closed",
		Description: fmt.Sprintf("<@%s> closed <#%s>.", event.Actor.UserID, event.ChannelID),
		Color:       0xFF0000,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reason", Value: payload.Reason},
		},
	})
}

func (n *NotificationService) postLog(ctx context.Context, event events.Event, embed *discordgo.MessageEmbed) error {
	if n.messages == nil || n.logChannelID == "" {
		return nil
	}
	if !event.Timestamp.IsZero() {
		embed.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	if _, err := n.messages.SendMessage(ctx, n.logChannelID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}); err != nil {
		return fmt.Errorf("post ticket log: %w", err)
	}
	return nil
}
