package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/database"
	"github.com/example/storefront/internal/events"
	"github.com/example/storefront/internal/logging"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/routes"
	"github.com/example/storefront/internal/search"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/storage"
)

const authRequestsPerMinute = 20

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := database.Connect(cfg.DatabaseURL, cfg.IsProduction())

	store, err := storage.New(ctx, storage.Config{
		Driver:    cfg.StorageDriver,
		LocalDir:  cfg.StorageLocalDir,
		PublicURL: cfg.StoragePublicURL,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	}, logger)
	if err != nil {
		logger.Error("image storage setup failed", "error", err)
		os.Exit(1)
	}

	index, err := search.New(search.Config{
		URL:      cfg.ESURL,
		Username: cfg.ESUser,
		Password: cfg.ESPassword,
		Index:    cfg.ESIndex,
	}, logger)
	if err != nil {
		logger.Warn("elasticsearch unavailable, search uses the database", "error", err)
		index = search.Disabled{}
	}

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close failed", "error", err)
		}
	}()

	paypal := services.NewPayPalClient(services.PayPalConfig{
		BaseURL:      cfg.PayPalBaseURL,
		ClientID:     cfg.PayPalClientID,
		ClientSecret: cfg.PayPalClientSecret,
	}, logger)
	if cfg.PayPalClientID == "" || cfg.PayPalClientSecret == "" {
		logger.Warn("paypal credentials not configured, checkout will fail until PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are set")
	}
	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, logger)
	checkout := services.NewCheckoutService(db, paypal, publisher, telegram, cfg.PayPalCurrency, logger)

	go checkout.RunReconciler(ctx, cfg.ReconcileInterval, cfg.ReconcileMaxAttempts)

	app := fiber.New(fiber.Config{
		AppName:      "Storefront API",
		ErrorHandler: middleware.ErrorHandler(cfg),
		BodyLimit:    20 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.ReplaceAll(cfg.CORSOrigins, " ", ""),
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
	}))

	if cfg.StorageDriver != "s3" {
		app.Static("/uploads", cfg.StorageLocalDir)
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "status": "ok"})
	})

	routes.Register(app, routes.Deps{
		DB:        db,
		Config:    cfg,
		Checkout:  checkout,
		Store:     store,
		Index:     index,
		Publisher: publisher,
		AuthLimit: authRequestsPerMinute,
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("fiber shutdown failed", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.AppPort, "env", cfg.AppEnv)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		logger.Error("fiber.Listen error", "error", err)
		os.Exit(1)
	}
	checkout.Wait()
}
