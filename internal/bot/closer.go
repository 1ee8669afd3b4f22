package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/internal/service"
)

// handleClaim announces the claimant. Claims never change permissions and
// a later claim simply replaces the earlier one.
func (b *Bot) handleClaim(ctx context.Context, i *discordgo.Interaction) (string, error) {
	user := interactionUser(i)
	logger := b.logger.With(zap.String("interaction", ClaimButtonID), zap.String("user_id", user.ID), zap.String("channel_id", i.ChannelID))

	ticket, err := b.tickets.ClaimTicket(ctx, i.ChannelID, actorOf(user))
	if err != nil {
		logger.Error("record ticket claim", zap.Error(err))
	} else if ticket != nil {
		logger = logger.With(zap.String("ticket_id", ticket.ID))
	}

	if err := b.platform.Respond(ctx, i, platform.Reply{Embeds: []*discordgo.MessageEmbed{claimedEmbed(user.ID)}}); err != nil {
		return observability.OutcomeError, fmt.Errorf("announce claim: %w", err)
	}
	logger.Info("ticket claimed")
	return observability.OutcomeOK, nil
}

// handleClose asks the presser for a reason and waits for their next
// message in the channel. A reason closes the ticket; silence cancels.
func (b *Bot) handleClose(ctx context.Context, i *discordgo.Interaction) (string, error) {
	user := interactionUser(i)
	actor := actorOf(user)
	logger := b.logger.With(zap.String("interaction", CloseButtonID), zap.String("user_id", user.ID), zap.String("channel_id", i.ChannelID))

	if err := b.tickets.BeginClose(ctx, i.ChannelID, actor); err != nil {
		if errors.Is(err, service.ErrClosePending) {
			return b.replyPrivate(ctx, i, msgClosePending, observability.OutcomeRejected)
		}
		logger.Error("mark close pending", zap.Error(err))
	}

	if err := b.platform.Respond(ctx, i, platform.Reply{Content: msgCloseReason, Private: true}); err != nil {
		_ = b.tickets.CancelClose(context.WithoutCancel(ctx), i.ChannelID, actor)
		return observability.OutcomeError, fmt.Errorf("prompt for close reason: %w", err)
	}

	msg, ok := b.collector.Collect(ctx, i.ChannelID, user.ID, b.reasonTimeout)
	if !ok {
		// The notice still goes out when shutdown canceled the wait.
		ctx = context.WithoutCancel(ctx)
		if err := b.tickets.CancelClose(ctx, i.ChannelID, actor); err != nil {
			logger.Error("cancel pending close", zap.Error(err))
		}
		if err := b.platform.FollowUp(ctx, i, platform.Reply{Content: msgCloseCanceled, Private: true}); err != nil {
			return observability.OutcomeError, fmt.Errorf("send close cancellation: %w", err)
		}
		logger.Info("ticket close canceled")
		return observability.OutcomeTimeout, nil
	}

	reason := msg.Content
	if _, err := b.platform.SendMessage(ctx, i.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{closedEmbed(reason)},
	}); err != nil {
		// Without the closure embed the ticket stays open.
		if cerr := b.tickets.CancelClose(context.WithoutCancel(ctx), i.ChannelID, actor); cerr != nil {
			logger.Error("cancel pending close", zap.Error(cerr))
		}
		return observability.OutcomeError, fmt.Errorf("send closure embed: %w", err)
	}

	ticket, err := b.tickets.CloseTicket(ctx, i.ChannelID, actor, reason)
	if err != nil {
		logger.Error("record ticket close", zap.Error(err))
	} else if ticket != nil {
		logger = logger.With(zap.String("ticket_id", ticket.ID))
	}
	logger.Info("ticket closed", zap.String("reason", reason))
	return observability.OutcomeOK, nil
}
