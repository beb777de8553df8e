package wallet

import (
	"time"

	"pontos/internal/models"
	"pontos/internal/money"

	"go.uber.org/zap"
)

// Operation results
const (
	ResultAdmitted = "admitted"
	ResultDenied   = "denied"
	ResultFailed   = "failed"
	ResultReplayed = "replayed"
)

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordOperationDuration(string, time.Duration)                 {}
func (n *NoopMetricsCollector) RecordOperationResult(string, string)                          {}
func (n *NoopMetricsCollector) RecordCacheHit(string)                                         {}
func (n *NoopMetricsCollector) RecordCacheMiss(string)                                        {}
func (n *NoopMetricsCollector) RecordError(string, string)                                    {}
func (n *NoopMetricsCollector) RecordTransactionVolume(models.TransactionType, money.Amount) {}

// LogMetricsCollector writes metrics as debug log lines.
type LogMetricsCollector struct {
	log *zap.Logger
}

func NewLogMetricsCollector(log *zap.Logger) *LogMetricsCollector {
	return &LogMetricsCollector{log: log.Named("metrics")}
}

func (c *LogMetricsCollector) RecordOperationDuration(op string, d time.Duration) {
	c.log.Debug("operation duration", zap.String("operation", op), zap.Duration("duration", d))
}

func (c *LogMetricsCollector) RecordOperationResult(op, result string) {
	c.log.Debug("operation result", zap.String("operation", op), zap.String("result", result))
}

func (c *LogMetricsCollector) RecordCacheHit(key string) {
	c.log.Debug("cache hit", zap.String("key", key))
}

func (c *LogMetricsCollector) RecordCacheMiss(key string) {
	c.log.Debug("cache miss", zap.String("key", key))
}

func (c *LogMetricsCollector) RecordError(op, code string) {
	c.log.Debug("operation error", zap.String("operation", op), zap.String("code", code))
}

func (c *LogMetricsCollector) RecordTransactionVolume(t models.TransactionType, amount money.Amount) {
	c.log.Debug("transaction volume", zap.String("type", string(t)), zap.Int64("amount", amount.Int64()))
}
