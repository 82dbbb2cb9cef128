package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/collab-service/internal/api/http"
	"github.com/spec-kit/collab-service/internal/api/http/handlers"
	wstransport "github.com/spec-kit/collab-service/internal/api/ws"
	"github.com/spec-kit/collab-service/internal/auth"
	"github.com/spec-kit/collab-service/internal/collab"
	"github.com/spec-kit/collab-service/internal/config"
	"github.com/spec-kit/collab-service/internal/events"
	"github.com/spec-kit/collab-service/internal/observability"
	"github.com/spec-kit/collab-service/internal/persistence"
	"github.com/spec-kit/collab-service/internal/repository"
	"github.com/spec-kit/collab-service/internal/service"
	"github.com/spec-kit/collab-service/internal/worker"
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

	pool := pg.PoolHandle()
	var historyRepo repository.CollabHistoryRepository
	var userRepo repository.UserRepository
	if pool != nil {
		historyRepo = repository.NewCollabHistoryRepository(pool)
		userRepo = repository.NewUserRepository(pool)
	} else {
		historyRepo = repository.NewMemoryHistoryRepository()
		userRepo = repository.NewMemoryUserRepository()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	fanout := collab.NewBroadcaster(cfg.Collab.OutboundQueueSize, logger)
	registry := collab.NewRegistry(fanout, cfg.Collab.IdleGrace(), logger)
	registry.StartSweeper(ctx, cfg.Collab.SweepInterval())

	engine := service.NewCollaborationService(cfg.Collab, service.CollaborationDependencies{
		Registry:    registry,
		Broadcaster: fanout,
		HistoryRepo: historyRepo,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})

	notifications := service.NewNotificationService(dispatcher, redis, logger, cfg.Notification)
	worker.StartNotificationWorker(notifications)

	authService := service.NewAuthService(cfg.Auth, userRepo)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager())

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Collab:         handlers.NewCollaborationHandler(engine, cfg.Collab.HistoryDefaultLimit),
		WS:             wstransport.NewHandler(engine, authService.TokenManager(), logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
