package bot

import (
	"context"
	"runtime/debug"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/observability"
)

type interactionHandler func(context.Context, *discordgo.Interaction) (string, error)

// InteractionHandler adapts HandleInteraction to a discordgo event handler.
// ctx bounds every handler invocation and is canceled on shutdown.
func (b *Bot) InteractionHandler(ctx context.Context) func(*discordgo.Session, *discordgo.InteractionCreate) {
	return func(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
		b.HandleInteraction(ctx, ic.Interaction)
	}
}

// MessageHandler feeds gateway messages to waiting close-reason collectors.
func (b *Bot) MessageHandler() func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(_ *discordgo.Session, mc *discordgo.MessageCreate) {
		b.HandleMessage(mc.Message)
	}
}

// HandleInteraction routes one interaction to its handler. Unknown
// interactions are ignored. A panic is recovered so it only ends this
// interaction.
func (b *Bot) HandleInteraction(ctx context.Context, i *discordgo.Interaction) {
	kind, handler := b.route(i)
	if handler == nil {
		return
	}
	if !b.admit() {
		b.logger.Debug("interaction ignored during shutdown", zap.String("interaction", kind))
		return
	}
	defer b.inflight.Done()

	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordInteraction(kind, observability.OutcomePanic)
			b.logger.Error("panic recovered",
				zap.String("interaction", kind),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	outcome, err := handler(ctx, i)
	b.metrics.RecordInteraction(kind, outcome)
	if err != nil {
		b.logger.Error("interaction failed",
			zap.String("interaction", kind),
			zap.String("user_id", interactionUser(i).ID),
			zap.String("channel_id", i.ChannelID),
			zap.Error(err))
	}
}

func (b *Bot) route(i *discordgo.Interaction) (string, interactionHandler) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if name := i.ApplicationCommandData().Name; name == SetupCommand {
			return SetupCommand, b.handleSetup
		}
	case discordgo.InteractionMessageComponent:
		switch id := i.MessageComponentData().CustomID; id {
		case TicketMenuID:
			return id, b.handleTicketMenu
		case ClaimButtonID:
			return id, b.handleClaim
		case CloseButtonID:
			return id, b.handleClose
		}
	}
	return "", nil
}

// HandleMessage offers a channel message to pending collectors. Messages
// from bots never count as a close reason.
func (b *Bot) HandleMessage(msg *discordgo.Message) {
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return
	}
	if n := b.collector.Dispatch(msg); n > 0 {
		b.logger.Debug("message collected",
			zap.String("channel_id", msg.ChannelID),
			zap.String("user_id", msg.Author.ID),
			zap.Int("collectors", n))
	}
}
