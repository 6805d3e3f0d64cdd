package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/WhiteRose021/fieldx-website-sub000/internal/api/http"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/api/http/handlers"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/auth"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/config"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/docstore"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/events"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/observability"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/persistence"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/repository"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/service"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/stream"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/worker"
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

	changeFeed := docstore.NewChangeFeed(redis.Client, logger)
	defer changeFeed.Close()
	store := docstore.NewPostgresStore(pg.PoolHandle(), changeFeed, logger)

	userRepo := repository.NewUserRepository(pg.PoolHandle())
	ticketRepo := repository.NewTicketRepository(store)

	dispatcher := events.NewInMemoryDispatcher()
	authService := service.NewAuthService(cfg.Auth, userRepo, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Dispatcher: dispatcher,
	})
	alertService := service.NewAlertService(dispatcher, logger, cfg.Alerts)
	worker.StartAlertWorker(alertService)

	if err := authService.EnsureAdmin(ctx); err != nil {
		logger.Fatal("failed to ensure admin account", zap.Error(err))
	}

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(map[string]func(context.Context) error{
		"postgres": pg.PoolHandle().Ping,
		"redis":    redis.Ping,
	})
	usersHandler := handlers.NewUsersHandler(authService)
	ticketsHandler := handlers.NewTicketsHandler(ticketService)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Users:          usersHandler,
		Tickets:        ticketsHandler,
		AuthMiddleware: authMiddleware,
	})

	streamServer := stream.NewServer(cfg.Stream, authService.TokenManager(), ticketRepo, ticketService, logger)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	go func() {
		if err := streamServer.Run(); err != nil {
			logger.Fatal("stream listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = streamServer.Shutdown(shutdownCtx)
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
