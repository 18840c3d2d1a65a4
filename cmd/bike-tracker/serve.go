package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/bike-tracker/internal/api/http"
	"github.com/i474232898/bike-tracker/internal/config"
	"github.com/i474232898/bike-tracker/internal/feed"
	"github.com/i474232898/bike-tracker/internal/ingest"
	"github.com/i474232898/bike-tracker/internal/scheduler"
	"github.com/i474232898/bike-tracker/internal/store"
	"github.com/i474232898/bike-tracker/internal/tracking"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run feed ingestion and the read API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	// Breaker keeps a dead backend from stalling ingestion and API requests.
	guarded := store.NewGuarded(backend, store.GuardConfig{
		Name:    cfg.StoreBackend,
		Timeout: cfg.StoreBreakerTimeout,
		Logger:  logger.With("component", "store"),
	})

	service := tracking.NewService(guarded, guarded, cfg.HistoryCap, logger)
	if err := service.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap store: %w", err)
	}

	dialer, err := feed.NewDialer(feed.Config{
		URL:         cfg.FeedURL,
		Token:       cfg.FeedToken,
		DialTimeout: cfg.FeedDialTimeout,
	})
	if err != nil {
		return err
	}

	ingestor, err := ingest.New(dialer, guarded, guarded, ingest.Config{
		Channel:    cfg.FeedChannel,
		RetryDelay: cfg.RetryDelay,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	// Supervisor relaunches ingestion after its retry budget is spent.
	sup := scheduler.New(ingestor, cfg.SupervisorInterval, logger)
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sup.Stop()
	logger.Info("ingestion supervisor started", "feed", dialer.Endpoint(), "channel", cfg.FeedChannel, "backend", cfg.StoreBackend)

	app := newApp(service, ingestor)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	return nil
}

func newApp(service *tracking.Service, status httpapi.StatusSource) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "bike-tracker",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"service": "bike-tracker",
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "bike-tracker",
		})
	})

	httpapi.RegisterRoutes(app, service, status)
	return app
}

func openBackend(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client, err := store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return store.NewRedisStore(client, cfg.HistoryCap), nil
	case config.BackendBadger:
		s, err := store.OpenBadger(store.BadgerConfig{
			Path:   cfg.BadgerPath,
			Logger: logger.With("component", "badger"),
		}, cfg.HistoryCap)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return s, nil
	default:
		return store.NewMemoryStore(cfg.HistoryCap), nil
	}
}
