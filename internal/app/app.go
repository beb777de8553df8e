// Package app assembles the wallet engine from configuration. The server,
// the worker and the seed command share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pontos/internal/config"
	"pontos/internal/logger"
	"pontos/internal/models"
	"pontos/internal/repositories"
	"pontos/internal/repositories/cache"
	"pontos/internal/repositories/memory"
	"pontos/internal/services/audit"
	"pontos/internal/services/ledger"
	"pontos/internal/services/risk"
	"pontos/internal/services/sweep"
	"pontos/internal/services/transaction"
	"pontos/internal/services/wallet"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Engine holds the wired services.
type Engine struct {
	Config       *config.Config
	Log          *zap.Logger
	Repo         repositories.Repository
	DB           *gorm.DB
	Redis        *redis.Client
	Cache        *cache.CacheService
	Settings     *config.SettingsStore
	Ledger       *ledger.Service
	Risk         *risk.Evaluator
	Transactions *transaction.Service
	Wallet       wallet.Service
	Sweep        *sweep.Service
	Audit        *audit.Recorder

	closers []func() error
}

// Build opens the store, the cache and the audit sinks and wires the
// services. A redis outage degrades to no balance cache and no redis audit
// sink rather than failing startup.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Engine, error) {
	log = logger.OrNop(log)
	e := &Engine{Config: cfg, Log: log}

	if err := e.openStore(cfg, log); err != nil {
		return nil, err
	}

	var balanceCache repositories.BalanceCache = repositories.NoopBalanceCache{}
	emitters := audit.Multi{audit.NewLogEmitter(log)}

	if cfg.Redis.Host != "" {
		rdb := cache.NewRedisClient(cfg.Redis)
		svc := cache.NewCacheService(rdb, cfg.Redis.CacheTTL)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := svc.HealthCheck(pingCtx)
		cancel()
		if err != nil {
			log.Warn("redis unavailable, running without balance cache", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
			_ = rdb.Close()
		} else {
			e.Redis = rdb
			e.Cache = svc
			balanceCache = svc
			emitters = append(emitters, audit.NewRedisPublisher(rdb, cfg.Worker.AuditRedisChannel))
			e.closers = append(e.closers, svc.Close)
		}
	}

	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		pub := audit.NewKafkaPublisher(audit.NewKafkaWriter(brokers, cfg.Kafka.AuditTopic, log))
		emitters = append(emitters, pub)
		e.closers = append(e.closers, pub.Close)
		log.Info("kafka audit sink enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.Kafka.AuditTopic))
	}

	e.Settings = config.NewSettingsStore(cfg.Engine)
	if err := e.Settings.Reload(ctx, e.Repo); err != nil {
		log.Warn("failed to load system settings, using configured defaults", zap.Error(err))
	}

	e.Audit = audit.NewRecorder(emitters, log)
	e.Ledger = ledger.NewService(log)
	e.Risk = risk.NewEvaluator(e.Settings, log)
	e.Transactions = transaction.NewService(transaction.Config{
		Repo:     e.Repo,
		Ledger:   e.Ledger,
		Settings: e.Settings,
		Cache:    balanceCache,
		Audit:    e.Audit,
		Logger:   log,
	})
	e.Wallet = wallet.NewService(wallet.Config{
		Repo:         e.Repo,
		Ledger:       e.Ledger,
		Risk:         e.Risk,
		Transactions: e.Transactions,
		Settings:     e.Settings,
		Cache:        balanceCache,
		Audit:        e.Audit,
		Metrics:      wallet.NewLogMetricsCollector(log),
		Logger:       log,
	})
	e.Sweep = sweep.NewService(sweep.Config{
		Repo:         e.Repo,
		Ledger:       e.Ledger,
		Transactions: e.Transactions,
		Settings:     e.Settings,
		Audit:        e.Audit,
		Logger:       log,
		BatchSize:    cfg.Worker.SweepBatchSize,
	})
	return e, nil
}

func (e *Engine) openStore(cfg *config.Config, log *zap.Logger) error {
	switch cfg.Store.Driver {
	case DriverMemory:
		log.Warn("using in-memory store, balances are lost on restart")
		e.Repo = memory.NewStore()
	case DriverPostgres, "":
		db, err := repositories.OpenPostgres(cfg.DB, log)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database instance: %w", err)
		}
		e.DB = db
		e.Repo = repositories.NewRepository(db)
		e.closers = append(e.closers, sqlDB.Close)
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

// WatchSettings reloads the SystemSetting overrides every interval until ctx
// is done. A failed reload keeps the settings in force.
func (e *Engine) WatchSettings(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Settings.Reload(ctx, e.Repo); err != nil && ctx.Err() == nil {
				e.Log.Warn("settings reload failed, keeping previous settings", zap.Error(err))
			}
		}
	}
}

// VerifyLedger replays one user's ledger against the materialized balances.
func (e *Engine) VerifyLedger(ctx context.Context, userID string) (*models.Balances, error) {
	return e.Ledger.Verify(ctx, e.Repo, userID)
}

// PingDB checks the database connection. It is a no-op for the memory store.
func (e *Engine) PingDB(ctx context.Context) error {
	if e.DB == nil {
		return nil
	}
	sqlDB, err := e.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases connections in reverse order of acquisition.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
