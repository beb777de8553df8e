// Package main runs the asynq worker: the scheduled liquidation, stale
// pending, ledger verification and settings refresh sweeps.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pontos/internal/app"
	"pontos/internal/config"
	"pontos/internal/logger"
	"pontos/internal/worker"

	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	zl := logger.Init(config.IsProduction() || cfg.Env == "production", cfg.LogLevel)
	defer func() { _ = zl.Sync() }()

	if cfg.Store.Driver == app.DriverMemory {
		zl.Fatal("the worker needs a shared store; memory driver is not supported")
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

	w, err := worker.New(cfg.Redis, cfg.Worker, worker.NewHandlers(engine.Sweep, zl), zl)
	if err != nil {
		zl.Fatal("failed to configure worker", zap.Error(err))
	}
	if err := w.Start(); err != nil {
		zl.Fatal("failed to start worker", zap.Error(err))
	}
	zl.Info("worker started", zap.Int("concurrency", cfg.Worker.Concurrency))

	<-ctx.Done()
	zl.Info("shutting down worker")
	w.Shutdown()
}
