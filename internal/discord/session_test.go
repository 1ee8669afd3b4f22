package discord

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/platform"
)

func TestReplyFlags(t *testing.T) {
	if got := replyFlags(platform.Reply{Private: true}); got != discordgo.MessageFlagsEphemeral {
		t.Fatalf("private reply should be ephemeral, got %d", got)
	}
	if got := replyFlags(platform.Reply{}); got != 0 {
		t.Fatalf("public reply should carry no flags, got %d", got)
	}
}

func TestNewSessionRequestsIntents(t *testing.T) {
	s, err := NewSession(config.DiscordConfig{Token: "token"}, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if s.session.Identify.Intents != Intents {
		t.Fatalf("unexpected intents %d", s.session.Identify.Intents)
	}
	if s.session.Identify.Intents&discordgo.IntentsMessageContent == 0 {
		t.Fatal("close reasons need message content")
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("unopened session must not report ready")
	}
}

func TestChannelServesFromState(t *testing.T) {
	s, err := NewSession(config.DiscordConfig{Token: "token"}, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	guild := &discordgo.Guild{ID: "g1"}
	if err := s.session.State.GuildAdd(guild); err != nil {
		t.Fatalf("guild add: %v", err)
	}
	if err := s.session.State.ChannelAdd(&discordgo.Channel{ID: "c1", GuildID: "g1", Name: "ticket-alice"}); err != nil {
		t.Fatalf("channel add: %v", err)
	}

	ch, err := s.Channel(context.Background(), "c1")
	if err != nil || ch.Name != "ticket-alice" {
		t.Fatalf("expected cached channel, got %+v %v", ch, err)
	}
}
