package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/internal/service"
)

// handleTicketMenu opens a ticket for the selected category.
func (b *Bot) handleTicketMenu(ctx context.Context, i *discordgo.Interaction) (string, error) {
	user := interactionUser(i)
	logger := b.logger.With(zap.String("interaction", TicketMenuID), zap.String("user_id", user.ID))

	values := i.MessageComponentData().Values
	if len(values) != 1 {
		return b.replyPrivate(ctx, i, msgUnknownCategory, observability.OutcomeRejected)
	}
	category, ok := b.categories.Lookup(values[0])
	if !ok {
		logger.Warn("unknown ticket category", zap.String("category", values[0]))
		return b.replyPrivate(ctx, i, msgUnknownCategory, observability.OutcomeRejected)
	}

	ticket, channel, err := b.tickets.OpenTicket(ctx, service.OpenInput{
		GuildID:  i.GuildID,
		Owner:    actorOf(user),
		Category: category,
	})
	if existing, ok := service.IsExistingTicket(err); ok {
		if existing.ChannelID == "" {
			return b.replyPrivate(ctx, i, msgTicketPending, observability.OutcomeRejected)
		}
		return b.replyPrivate(ctx, i, existingTicketText(existing.ChannelID), observability.OutcomeRejected)
	}
	if err != nil {
		_, _ = b.replyPrivate(ctx, i, msgOpenFailed, observability.OutcomeError)
		return observability.OutcomeError, fmt.Errorf("open ticket: %w", err)
	}
	logger = logger.With(zap.String("channel_id", channel.ID), zap.String("ticket_id", ticket.ID))

	if _, err := b.platform.SendMessage(ctx, channel.ID, ticketWelcome(b.discord.SupportRoleID, category)); err != nil {
		return observability.OutcomeError, fmt.Errorf("send ticket welcome to %s: %w", channel.ID, err)
	}

	if err := b.platform.Respond(ctx, i, platform.Reply{Content: createdTicketText(channel.ID), Private: true}); err != nil {
		return observability.OutcomeError, fmt.Errorf("respond to ticket menu: %w", err)
	}
	logger.Info("ticket created", zap.String("category", category.Value))
	return observability.OutcomeOK, nil
}

func (b *Bot) replyPrivate(ctx context.Context, i *discordgo.Interaction, content, outcome string) (string, error) {
	if err := b.platform.Respond(ctx, i, platform.Reply{Content: content, Private: true}); err != nil {
		return observability.OutcomeError, fmt.Errorf("private reply: %w", err)
	}
	return outcome, nil
}
