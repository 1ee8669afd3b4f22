package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-bot/internal/api/http"
	"github.com/spec-kit/ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/bot"
	"github.com/spec-kit/ticket-bot/internal/clock"
	"github.com/spec-kit/ticket-bot/internal/collector"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/discord"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/kafka"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/persistence"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/internal/worker"
)

// shutdownTimeout bounds how long running handlers and queued events may
// hold the gateway open after a signal.
const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, map[string]interface{}{
		"service":  cfg.App.Name,
		"version":  cfg.App.Version,
		"guild_id": cfg.Discord.GuildID,
	})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	categories, err := config.LoadCategories(cfg.Tickets.CategoriesFile)
	if err != nil {
		logger.Fatal("failed to load ticket categories", zap.Error(err))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		ticketRepo  repository.TicketRepository
		historyRepo repository.TicketHistoryRepository
		ownerIndex  repository.OwnerIndex
	)
	if pg.Enabled() {
		ticketRepo = repository.NewTicketRepository(pg.PoolHandle())
		historyRepo = repository.NewTicketHistoryRepository(pg.PoolHandle())
	} else {
		ticketRepo = repository.NewMemoryTicketRepository()
		historyRepo = repository.NewMemoryTicketHistoryRepository()
	}
	if redis.Enabled() {
		ownerIndex = repository.NewRedisOwnerIndex(redis.Client, "")
	} else {
		ownerIndex = repository.NewMemoryOwnerIndex()
	}

	session, err := discord.NewSession(cfg.Discord, cfg.Tickets.RequestTimeout, logger)
	if err != nil {
		logger.Fatal("failed to create discord session", zap.Error(err))
	}

	clk := clock.Real()
	metrics := observability.NewMetrics()
	dispatcher := events.NewAsyncDispatcher(logger, 0)
	dispatcher.Start()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:    ticketRepo,
		HistoryRepo:   historyRepo,
		OwnerIndex:    ownerIndex,
		Channels:      session,
		Dispatcher:    dispatcher,
		Clock:         clk,
		Logger:        logger,
		SupportRoleID: cfg.Discord.SupportRoleID,
		DeleteDelay:   cfg.Tickets.DeleteDelay,
	})

	notificationService := service.NewNotificationService(dispatcher, session, logger, cfg.Discord.LogChannelID)
	var producer *kafka.Producer
	if cfg.Kafka.Enabled() {
		producer = kafka.NewProducer(cfg.Kafka, logger)
		defer producer.Close() //nolint:errcheck
	}
	worker.StartNotificationWorker(dispatcher, notificationService, producer)

	ticketBot := bot.New(bot.Dependencies{
		Discord:       cfg.Discord,
		ReasonTimeout: cfg.Tickets.ReasonTimeout,
		Platform:      session,
		Collector:     collector.NewHub(clk),
		Tickets:       ticketService,
		Categories:    domain.NewCategorySet(categories),
		Metrics:       metrics,
		Logger:        logger,
	})

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		logger.Info("bot is online", zap.String("user", r.User.Username))
	})
	session.AddHandler(ticketBot.InteractionHandler(ctx))
	session.AddHandler(ticketBot.MessageHandler())

	if err := session.Open(); err != nil {
		logger.Fatal("failed to open discord session", zap.Error(err))
	}
	defer session.Close() //nolint:errcheck

	// Registration failures are logged inside and do not stop the bot.
	_ = ticketBot.RegisterCommands(ctx)

	if adopted, err := ticketService.Reconcile(ctx, cfg.Discord.GuildID); err != nil {
		logger.Error("failed to reconcile ticket channels", zap.Error(err))
	} else {
		logger.Info("reconciled ticket channels", zap.Int("adopted", adopted))
	}

	var app *fiber.App
	if cfg.Ops.Enabled() {
		app = newOpsApp(cfg, logger, metrics, ticketService, map[string]handlers.Dependency{
			"postgres": pg,
			"redis":    redis,
			"gateway":  session,
		})
		go func() {
			if err := app.Listen(cfg.Ops.Addr()); err != nil {
				logger.Error("ops api stopped", zap.Error(err))
			}
		}()
	}

	waitForShutdown(logger)
	cancel()

	if app != nil {
		_ = app.Shutdown()
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drainCancel()
	if err := ticketBot.Wait(drainCtx); err != nil {
		logger.Warn("interaction handlers still running at shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(drainCtx); err != nil {
		logger.Warn("ticket events not delivered before shutdown", zap.Error(err))
	}
}

func newOpsApp(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics, tickets *service.TicketService, deps map[string]handlers.Dependency) *fiber.App {
	app := httptransport.NewApp(logger, metrics, cfg.Tickets.RequestTimeout)

	if cfg.Ops.JWTSecret == "" {
		logger.Warn("OPS_JWT_SECRET not set; /tickets will reject every request")
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Metrics:        handlers.NewMetricsHandler(metrics),
		Tickets:        handlers.NewTicketsHandler(tickets, cfg.Discord.GuildID),
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Ops.JWTSecret, 0)),
	})
	return app
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
