package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// SetupCommand is the slash command that posts the ticket panel.
const SetupCommand = "setup"

// Commands returns the guild command set.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        SetupCommand,
			Description: "Set up the support ticket system",
		},
	}
}

// RegisterCommands overwrites the guild's commands. A failure is logged and
// returned; startup carries on either way.
func (b *Bot) RegisterCommands(ctx context.Context) error {
	b.logger.Info("refreshing application commands", zap.String("guild_id", b.discord.GuildID))
	if err := b.platform.RegisterCommands(ctx, b.discord.AppID, b.discord.GuildID, Commands()); err != nil {
		b.logger.Error("register application commands", zap.String("guild_id", b.discord.GuildID), zap.Error(err))
		return err
	}
	b.logger.Info("application commands registered", zap.Int("count", len(Commands())))
	return nil
}
