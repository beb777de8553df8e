package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"pontos/internal/logger"
	"pontos/internal/services/sweep"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Handlers struct {
	sweep *sweep.Service
	log   *zap.Logger
}

func NewHandlers(s *sweep.Service, log *zap.Logger) *Handlers {
	if s == nil {
		panic("sweep service is required")
	}
	return &Handlers{sweep: s, log: logger.OrNop(log).Named("worker")}
}

// Register mounts every task handler on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskLiquidations, h.HandleLiquidations)
	mux.HandleFunc(TaskStalePending, h.HandleStalePending)
	mux.HandleFunc(TaskLedgerVerify, h.HandleLedgerVerify)
	mux.HandleFunc(TaskSettingsRefresh, h.HandleSettingsRefresh)
}

func (h *Handlers) payload(t *asynq.Task) SweepPayload {
	var p SweepPayload
	if len(t.Payload()) == 0 {
		return p
	}
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.log.Warn("ignoring malformed task payload", zap.String("task", t.Type()), zap.Error(err))
	}
	return p
}

func (h *Handlers) run(t *asynq.Task, fn func() (sweep.Report, error)) error {
	p := h.payload(t)
	report, err := fn()
	if err != nil {
		h.log.Error("task failed", zap.String("task", t.Type()), zap.String("requested_by", p.RequestedBy), zap.Error(err))
		return fmt.Errorf("%s: %w", t.Type(), err)
	}
	h.log.Info("task done",
		zap.String("task", t.Type()),
		zap.String("requested_by", p.RequestedBy),
		zap.Int("scanned", report.Scanned),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed))
	return nil
}

func (h *Handlers) HandleLiquidations(ctx context.Context, t *asynq.Task) error {
	return h.run(t, func() (sweep.Report, error) { return h.sweep.Liquidations(ctx) })
}

func (h *Handlers) HandleStalePending(ctx context.Context, t *asynq.Task) error {
	return h.run(t, func() (sweep.Report, error) { return h.sweep.StalePending(ctx) })
}

func (h *Handlers) HandleLedgerVerify(ctx context.Context, t *asynq.Task) error {
	return h.run(t, func() (sweep.Report, error) { return h.sweep.VerifyLedgers(ctx) })
}

func (h *Handlers) HandleSettingsRefresh(ctx context.Context, t *asynq.Task) error {
	return h.run(t, func() (sweep.Report, error) { return sweep.Report{}, h.sweep.RefreshSettings(ctx) })
}
