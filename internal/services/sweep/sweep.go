// Package sweep holds the periodic reconciliation jobs: settling due boleto
// liquidations, failing transactions stuck in PENDING and replaying ledgers
// against materialized balances.
package sweep

import (
	"context"
	"errors"
	"time"

	"pontos/internal/config"
	apperrors "pontos/internal/errors"
	"pontos/internal/logger"
	"pontos/internal/models"
	"pontos/internal/repositories"
	"pontos/internal/services/audit"
	"pontos/internal/services/ledger"
	"pontos/internal/services/transaction"

	"go.uber.org/zap"
)

// Responsible is the audit identity of sweep transitions.
const Responsible = "system:sweep"

const DefaultBatchSize = 200

type Config struct {
	Repo         repositories.Repository
	Ledger       *ledger.Service
	Transactions *transaction.Service
	Settings     *config.SettingsStore
	Audit        *audit.Recorder
	Logger       *zap.Logger
	BatchSize    int
}

type Service struct {
	repo         repositories.Repository
	ledger       *ledger.Service
	transactions *transaction.Service
	settings     *config.SettingsStore
	audit        *audit.Recorder
	log          *zap.Logger
	batchSize    int
	now          func() time.Time
}

func NewService(cfg Config) *Service {
	if cfg.Repo == nil || cfg.Ledger == nil || cfg.Transactions == nil || cfg.Settings == nil {
		panic("sweep: repo, ledger, transactions and settings are required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	log := logger.OrNop(cfg.Logger).Named("sweep")
	if cfg.Audit == nil {
		cfg.Audit = audit.NewRecorder(nil, log)
	}
	return &Service{
		repo:         cfg.Repo,
		ledger:       cfg.Ledger,
		transactions: cfg.Transactions,
		settings:     cfg.Settings,
		audit:        cfg.Audit,
		log:          log,
		batchSize:    cfg.BatchSize,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Report summarizes one sweep run.
type Report struct {
	Scanned   int `json:"scanned"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Liquidations completes LIQUIDATING transactions whose liquidation date has
// passed. One batch per run.
func (s *Service) Liquidations(ctx context.Context) (Report, error) {
	txs, err := s.repo.ListTransactions(ctx, models.TransactionFilter{
		Statuses:       []models.TransactionStatus{models.TransactionStatusLiquidating},
		LiquidationDue: s.now(),
		Limit:          s.batchSize,
	})
	if err != nil {
		return Report{}, err
	}
	return s.transitionAll(ctx, txs, transaction.EventLiquidationDateReached, ""), nil
}

// StalePending fails PENDING transactions older than the pending SLA,
// releasing any reservation they hold.
func (s *Service) StalePending(ctx context.Context) (Report, error) {
	sla := s.settings.Current().PendingSLA
	if sla <= 0 {
		return Report{}, nil
	}
	txs, err := s.repo.ListTransactions(ctx, models.TransactionFilter{
		Statuses:      []models.TransactionStatus{models.TransactionStatusPending},
		CreatedBefore: s.now().Add(-sla),
		Limit:         s.batchSize,
	})
	if err != nil {
		return Report{}, err
	}
	return s.transitionAll(ctx, txs, transaction.EventRailFailure, "pending SLA exceeded"), nil
}

func (s *Service) transitionAll(ctx context.Context, txs []*models.Transaction, ev transaction.Event, reason string) Report {
	r := Report{Scanned: len(txs)}
	now := s.now()
	for _, tx := range txs {
		if ctx.Err() != nil {
			break
		}
		_, err := s.transactions.Transition(ctx, transaction.TransitionRequest{
			TxID:          tx.TxID,
			Event:         ev,
			ResponsibleID: Responsible,
			Reason:        reason,
			At:            now,
		})
		if err != nil {
			r.Failed++
			s.log.Warn("sweep transition failed",
				zap.String("txid", tx.TxID), zap.String("event", string(ev)), zap.Error(err))
			continue
		}
		r.Succeeded++
	}
	if r.Scanned > 0 {
		s.log.Info("sweep finished", zap.String("event", string(ev)),
			zap.Int("scanned", r.Scanned), zap.Int("succeeded", r.Succeeded), zap.Int("failed", r.Failed))
	}
	return r
}

// VerifyLedgers replays every user's ledger and reports mismatches. A
// mismatch is logged and audited; balances are never rewritten here.
func (s *Service) VerifyLedgers(ctx context.Context) (Report, error) {
	var r Report
	after := ""
	for {
		ids, err := s.repo.ListUserIDs(ctx, after, s.batchSize)
		if err != nil {
			return r, err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return r, err
			}
			r.Scanned++
			if _, err := s.ledger.Verify(ctx, s.repo, id); err != nil {
				r.Failed++
				if !errors.Is(err, apperrors.ErrLedgerMismatch) {
					s.log.Error("ledger verification failed", zap.String("user_id", id), zap.Error(err))
					continue
				}
				s.audit.Record(ctx, audit.Event{
					ResponsibleID: Responsible,
					TargetUserID:  id,
					Action:        audit.ActionLedgerMismatch,
					Details:       map[string]interface{}{"error": err.Error()},
				})
				continue
			}
			r.Succeeded++
		}
		if len(ids) < s.batchSize {
			return r, nil
		}
		after = ids[len(ids)-1]
	}
}

// RefreshSettings reloads the SystemSetting overrides.
func (s *Service) RefreshSettings(ctx context.Context) error {
	if err := s.settings.Reload(ctx, s.repo); err != nil {
		s.log.Warn("settings reload failed, keeping previous settings", zap.Error(err))
		return err
	}
	return nil
}
