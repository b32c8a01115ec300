package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-social-api/internal/config"
	"github.com/noah-isme/gema-social-api/internal/database"
	"github.com/noah-isme/gema-social-api/internal/handler"
	"github.com/noah-isme/gema-social-api/internal/middleware"
	"github.com/noah-isme/gema-social-api/internal/repository"
	"github.com/noah-isme/gema-social-api/internal/router"
	"github.com/noah-isme/gema-social-api/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis disabled; user summaries are not cached and redis facts are not consumed")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	transactor := repository.NewTransactor(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)

	presence := service.NewPresenceRegistry()
	directory := service.NewUserDirectory(userRepo, redisClient, cfg.UserCacheTTL, logger)
	conversationService := service.NewConversationService(transactor, conversationRepo, messageRepo, userRepo, directory, validate, logger)
	deliveryRouter := service.NewDeliveryRouter(presence, conversationService, logger)
	gate := service.NewAuthGate(cfg.JWTSecret, userRepo, presence, cfg.RealtimeAuthTimeout, logger)
	chatService := service.NewChatService(conversationService, directory, presence, deliveryRouter, gate, validate, service.ChatOptions{
		SendBuffer:   cfg.RealtimeSendBuffer,
		PingInterval: cfg.RealtimePingInterval,
	}, logger)
	notificationService := service.NewNotificationService(notificationRepo, directory, deliveryRouter, redisClient, cfg.RealtimeChannel, natsConn, validate, logger)

	rootCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()
	notificationService.Start(rootCtx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSOrigins,
		Development:  cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:         handler.NewChatHandler(chatService, gate, presence, logger),
		ConversationHandler: handler.NewConversationHandler(conversationService, chatService, validate, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, validate, logger, cfg.FactsRateLimit),
		Presence:            presence,
		JWTMiddleware:       middleware.JWTProtected(gate),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Msg("starting server")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
