package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/account-service/internal/api/http"
	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/persistence"
	"github.com/spec-kit/account-service/internal/policy"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
	"github.com/spec-kit/account-service/internal/validation"
	"github.com/spec-kit/account-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()
	reporter := observability.NewAsyncReporter(logger, metrics, cfg.Reporter.BufferSize)
	defer reporter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger, persistence.SizedFor(cfg.Provisioning.Concurrency))
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	pool := pg.Pool()
	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	domains := repository.NewCachedWhitelist(repository.NewWhitelistRepository(pool), redis.Client, cfg.Redis.WhitelistCacheTTL, logger)
	whitelist := policy.NewWhitelistChecker(domains)
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, redis.Client, logger, cfg.Redis))

	userService := service.NewUserService(service.UserDependencies{
		UserRepo:    userRepo,
		SessionRepo: sessionRepo,
		Whitelist:   whitelist,
		Hasher:      hasher,
		Dispatcher:  dispatcher,
		Reporter:    reporter,
		Logger:      logger,
	})
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:    userRepo,
		SessionRepo: sessionRepo,
		Verifier:    hasher,
		Logger:      logger,
	})
	bulkService := service.NewBulkService(
		validation.NewBulkValidator(),
		service.NewDuplicateDetector(userRepo, cfg.Provisioning),
		service.NewBulkProvisioner(cfg.Provisioning, service.BulkDependencies{
			UserRepo:  userRepo,
			Whitelist: whitelist,
			Hasher:    hasher,
			Logger:    logger,
			Metrics:   metrics,
		}),
		metrics,
	)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo, sessionRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:   logger,
		Metrics:  metrics,
		Reporter: reporter,
		Timeout:  cfg.App.RequestTimeout(),
	})

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Users:          handlers.NewUsersHandler(userService),
		Bulk:           handlers.NewBulkHandler(bulkService),
		AuthMiddleware: authMiddleware,
		Recaptcha:      httptransport.RecaptchaMiddleware(cfg.Recaptcha, logger),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	snapshot := metrics.Snapshot()
	logger.Info("stopped", zap.Any("metrics", snapshot))
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
