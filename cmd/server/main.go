package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/webberzone/gluelink/internal/api"
	"github.com/webberzone/gluelink/internal/config"
	"github.com/webberzone/gluelink/internal/kit"
	"github.com/webberzone/gluelink/internal/store"
	"github.com/webberzone/gluelink/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// A .env file is optional; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Redis is optional: without it every lookup goes to Postgres.
	var cache *store.Cache
	if cfg.RedisURL != "" {
		cache, err = store.NewCache(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
		logger.Info("connected to Redis")
	}

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL, cache)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Product configuration is a startup snapshot: read-only for the life
	// of the process.
	products, err := pgStore.LoadProducts(ctx)
	if err != nil {
		logger.Error("failed to load product configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("product configuration loaded", "products", len(products))

	kitClient := kit.NewClient(cfg.KitAPIKey, cfg.KitAPISecret, logger)

	processor := webhook.NewProcessor(products, webhook.Defaults{
		FormID:        cfg.KitFormID,
		TagID:         cfg.KitTagID,
		LastNameField: cfg.LastNameField,
		CustomFields:  cfg.CustomFields,
	}, kitClient, pgStore, logger)

	router := api.NewRouter(pgStore, api.NewWebhookHandler(processor, logger), cfg.WebhookEndpointType)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port, "webhook_endpoint", cfg.WebhookEndpointType)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
