// Package main is the HTTP entry point: it wires the wallet engine and
// serves the v1 API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pontos/internal/app"
	"pontos/internal/config"
	"pontos/internal/handlers"
	"pontos/internal/logger"
	"pontos/internal/middleware"
	"pontos/internal/routes"
	"pontos/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	zl := logger.Init(config.IsProduction() || cfg.Env == "production", cfg.LogLevel)
	defer func() { _ = zl.Sync() }()

	if cfg.JWT.Secret == "" {
		zl.Fatal("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.Build(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to build engine", zap.Error(err))
	}
	defer func() {
		if err := engine.Close(); err != nil {
			zl.Warn("failed to close engine resources", zap.Error(err))
		}
	}()

	go engine.WatchSettings(ctx, cfg.SettingsRefresh)

	checks := map[string]handlers.HealthChecker{
		"database": handlers.HealthCheckFunc(engine.PingDB),
	}
	var cacheStats handlers.CacheStats
	var sweeps handlers.SweepEnqueuer
	if engine.Cache != nil {
		checks["redis"] = engine.Cache
		cacheStats = engine.Cache
		enqueuer := worker.NewEnqueuer(cfg.Redis)
		defer enqueuer.Close()
		sweeps = enqueuer
	}

	fiberApp := fiber.New(fiber.Config{
		AppName:      "pontos " + version,
		ErrorHandler: handlers.ErrorHandler(zl),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})
	fiberApp.Use(recover.New())
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: config.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + handlers.IdempotencyHeader,
		AllowMethods: "GET,POST,HEAD",
	}))
	fiberApp.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.SetupRoutes(fiberApp, routes.Handlers{
		Auth:         middleware.NewAuthMiddleware(cfg.JWT.Secret, zl),
		Wallet:       handlers.NewWalletHandler(engine.Wallet),
		Transactions: handlers.NewTransactionHandler(engine.Transactions, engine.Repo),
		Admin:        handlers.NewAdminHandler(handlers.LedgerVerifierFunc(engine.VerifyLedger), sweeps),
		Health:       handlers.NewHealthHandler(version, checks, cacheStats),
	})

	go func() {
		<-ctx.Done()
		zl.Info("shutting down http server")
		if err := fiberApp.ShutdownWithTimeout(15 * time.Second); err != nil {
			zl.Warn("http shutdown failed", zap.Error(err))
		}
	}()

	zl.Info("http server listening", zap.String("port", cfg.Port), zap.String("store", cfg.Store.Driver))
	if err := fiberApp.Listen(":" + cfg.Port); err != nil {
		zl.Error("http server stopped", zap.Error(err))
	}
}
