package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/platform"
)

// handleSetup confirms privately, then posts the ticket panel. The panel is
// skipped without feedback when the panel channel cannot be resolved.
func (b *Bot) handleSetup(ctx context.Context, i *discordgo.Interaction) (string, error) {
	if err := b.platform.Respond(ctx, i, platform.Reply{
		Embeds:  []*discordgo.MessageEmbed{setupEmbed()},
		Private: true,
	}); err != nil {
		return observability.OutcomeError, fmt.Errorf("respond to setup: %w", err)
	}

	if _, err := b.platform.Channel(ctx, b.discord.PanelChannelID); err != nil {
		b.logger.Debug("panel channel unavailable", zap.String("channel_id", b.discord.PanelChannelID), zap.Error(err))
		return observability.OutcomeRejected, nil
	}

	if _, err := b.platform.SendMessage(ctx, b.discord.PanelChannelID, panelMessage(b.categories.All())); err != nil {
		return observability.OutcomeError, fmt.Errorf("post ticket panel: %w", err)
	}
	b.logger.Info("ticket panel posted",
		zap.String("channel_id", b.discord.PanelChannelID),
		zap.String("user_id", interactionUser(i).ID))
	return observability.OutcomeOK, nil
}
