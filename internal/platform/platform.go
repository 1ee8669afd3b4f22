// Package platform declares the chat-platform operations the ticket
// workflow consumes. internal/discord implements them over discordgo;
// platformtest provides a recording fake.
package platform

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Reply is an interaction response. Private replies are only visible to the
// user who triggered the interaction.
type Reply struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Private    bool
}

// ChannelPort manages guild channels.
type ChannelPort interface {
	CreateChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	// ListChannels returns a snapshot of every channel in the guild.
	ListChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	// Channel resolves a channel the bot can see.
	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
}

// MessagePort sends messages and interaction responses.
type MessagePort interface {
	// RegisterCommands replaces the guild's command set.
	RegisterCommands(ctx context.Context, appID, guildID string, commands []*discordgo.ApplicationCommand) error
	Respond(ctx context.Context, interaction *discordgo.Interaction, reply Reply) error
	// FollowUp sends an additional message for an interaction that was
	// already responded to.
	FollowUp(ctx context.Context, interaction *discordgo.Interaction, reply Reply) error
	SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error)
}

// Platform is everything the bot needs from the chat platform.
type Platform interface {
	ChannelPort
	MessagePort
}

// MessageCollector waits for the next message from one author in one
// channel.
type MessageCollector interface {
	Collect(ctx context.Context, channelID, authorID string, timeout time.Duration) (*discordgo.Message, bool)
}
