package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

type Config struct {
	Env      string         `mapstructure:"env"`
	Port     string         `mapstructure:"port"`
	LogLevel string         `mapstructure:"log_level"`
	Store    StoreConfig    `mapstructure:"store"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Engine   EngineSettings `mapstructure:"engine"`

	// SettingsRefresh is how often a running process re-reads the
	// SystemSetting rows. Zero disables the refresh loop.
	SettingsRefresh time.Duration `mapstructure:"settings_refresh"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // postgres | memory
}

type DBConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN builds a key/value postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"` // comma separated, empty disables the sink
	AuditTopic string `mapstructure:"audit_topic"`
}

func (c KafkaConfig) BrokerList() []string {
	if strings.TrimSpace(c.Brokers) == "" {
		return nil
	}
	parts := strings.Split(c.Brokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type WorkerConfig struct {
	Concurrency         int    `mapstructure:"concurrency"`
	LiquidationCron     string `mapstructure:"liquidation_cron"`
	StalePendingCron    string `mapstructure:"stale_pending_cron"`
	LedgerVerifyCron    string `mapstructure:"ledger_verify_cron"`
	SettingsRefreshCron string `mapstructure:"settings_refresh_cron"`
	SweepBatchSize      int    `mapstructure:"sweep_batch_size"`
	AuditRedisChannel   string `mapstructure:"audit_redis_channel"`
}

// Load reads configuration from an optional configs/config.yaml and the
// environment. Nested keys map to env vars with underscores, e.g.
// ENGINE_REFUND_WINDOW or DB_HOST.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("port", "3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("settings_refresh", time.Minute)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "pontos")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.max_open_conns", 100)
	v.SetDefault("db.conn_max_lifetime", time.Hour)
	v.SetDefault("db.conn_max_idle_time", 30*time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 5*time.Minute)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.audit_topic", "admin-log-events")

	v.SetDefault("jwt.secret", "")

	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.liquidation_cron", "@every 1m")
	v.SetDefault("worker.stale_pending_cron", "@every 5m")
	v.SetDefault("worker.ledger_verify_cron", "@every 1h")
	v.SetDefault("worker.settings_refresh_cron", "@every 5m")
	v.SetDefault("worker.sweep_batch_size", 200)
	v.SetDefault("worker.audit_redis_channel", "admin_log_events")

	d := DefaultEngineSettings()
	v.SetDefault("engine.risk_score_ceiling", d.RiskScoreCeiling)
	v.SetDefault("engine.daily_limit_default", int64(d.DailyLimitDefault))
	v.SetDefault("engine.monthly_limit_default", int64(d.MonthlyLimitDefault))
	v.SetDefault("engine.per_tx_limit_default", int64(d.PerTxLimitDefault))
	v.SetDefault("engine.hard_ceiling", int64(d.HardCeiling))
	v.SetDefault("engine.refund_window", d.RefundWindow)
	v.SetDefault("engine.pending_sla", d.PendingSLA)
	v.SetDefault("engine.boleto_liquidation_lag", d.LiquidationLag["BOLETO_DEPOSIT"])
}
