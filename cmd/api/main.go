package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-conversation/internal/api/http"
	"github.com/spec-kit/ticket-conversation/internal/api/http/handlers"
	"github.com/spec-kit/ticket-conversation/internal/config"
	"github.com/spec-kit/ticket-conversation/internal/conversation"
	"github.com/spec-kit/ticket-conversation/internal/observability"
	"github.com/spec-kit/ticket-conversation/internal/persistence"
	"github.com/spec-kit/ticket-conversation/internal/storage"
	"github.com/spec-kit/ticket-conversation/internal/store"
	"github.com/spec-kit/ticket-conversation/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	live := store.NewLiveStream(redis.Client, logger)
	gateway := store.NewPostgresGateway(pg.PoolHandle(), live, logger)

	manager := conversation.NewManager(conversation.ManagerDependencies{
		Gateway:  gateway,
		Notifier: conversation.NewLogNotifier(logger),
		Metrics:  metrics,
		Logger:   logger,
		IdleTTL:  cfg.Session.IdleTTL(),
	})
	defer manager.CloseAll()

	worker.StartSessionReaper(ctx, manager, cfg.Session.ReapInterval(), logger)

	resolver := storage.NewPublicBucketResolver(cfg.Storage)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	conversationHandler := handlers.NewConversationHandler(manager, resolver)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:       healthHandler,
		Conversation: conversationHandler,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
