// Package bot turns Discord interactions into ticket workflow steps.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/internal/service"
)

// Collector is the message collector fed by gateway MessageCreate events.
type Collector interface {
	platform.MessageCollector
	Dispatch(msg *discordgo.Message) int
}

// Dependencies bundles the bot's collaborators.
type Dependencies struct {
	Discord       config.DiscordConfig
	ReasonTimeout time.Duration
	Platform      platform.Platform
	Collector     Collector
	Tickets       *service.TicketService
	Categories    *domain.CategorySet
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// Bot handles the slash command, panel menu and ticket buttons.
type Bot struct {
	discord       config.DiscordConfig
	reasonTimeout time.Duration
	platform      platform.Platform
	collector     Collector
	tickets       *service.TicketService
	categories    *domain.CategorySet
	metrics       *observability.Metrics
	logger        *zap.Logger

	// inflight counts running handlers; once draining is set no new
	// handler is admitted.
	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// New constructs a Bot.
func New(deps Dependencies) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	categories := deps.Categories
	if categories == nil {
		categories = domain.NewCategorySet(domain.DefaultCategories())
	}
	reasonTimeout := deps.ReasonTimeout
	if reasonTimeout <= 0 {
		reasonTimeout = 60 * time.Second
	}
	return &Bot{
		discord:       deps.Discord,
		reasonTimeout: reasonTimeout,
		platform:      deps.Platform,
		collector:     deps.Collector,
		tickets:       deps.Tickets,
		categories:    categories,
		metrics:       deps.Metrics,
		logger:        logger,
	}
}

func (b *Bot) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.draining {
		return false
	}
	b.inflight.Add(1)
	return true
}

// Wait stops admitting interactions and blocks until the running handlers
// return or ctx is done. Cancel the handler context first so pending close
// waits end with their cancellation notice.
func (b *Bot) Wait(ctx context.Context) error {
	b.mu.Lock()
	b.draining = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// interactionUser returns the invoking user for guild and DM interactions.
func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	if i.User != nil {
		return i.User
	}
	return &discordgo.User{}
}

func actorOf(u *discordgo.User) service.Actor {
	return service.Actor{UserID: u.ID, Username: u.Username}
}
