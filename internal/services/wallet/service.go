package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pontos/internal/config"
	apperrors "pontos/internal/errors"
	"pontos/internal/logger"
	"pontos/internal/models"
	"pontos/internal/money"
	"pontos/internal/repositories"
	"pontos/internal/services/audit"
	"pontos/internal/services/ledger"
	"pontos/internal/services/risk"
	"pontos/internal/services/transaction"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SettingsProvider interface {
	Current() config.EngineSettings
}

type Config struct {
	Repo         repositories.Repository
	Ledger       *ledger.Service
	Risk         *risk.Evaluator
	Transactions *transaction.Service
	Settings     SettingsProvider
	Cache        repositories.BalanceCache
	Audit        *audit.Recorder
	Metrics      MetricsCollector
	Logger       *zap.Logger
}

type service struct {
	repo         repositories.Repository
	ledger       *ledger.Service
	risk         *risk.Evaluator
	transactions *transaction.Service
	settings     SettingsProvider
	cache        repositories.BalanceCache
	audit        *audit.Recorder
	metrics      MetricsCollector
	log          *zap.Logger
	now          func() time.Time
}

// NewService creates a new wallet service
func NewService(cfg Config) Service {
	if cfg.Repo == nil {
		panic("repo is required")
	}
	if cfg.Ledger == nil {
		panic("ledger service is required")
	}
	if cfg.Risk == nil {
		panic("risk evaluator is required")
	}
	if cfg.Transactions == nil {
		panic("transaction service is required")
	}
	if cfg.Settings == nil {
		panic("settings provider is required")
	}

	log := logger.OrNop(cfg.Logger).Named("wallet")
	if cfg.Cache == nil {
		cfg.Cache = repositories.NoopBalanceCache{}
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NewRecorder(nil, log)
	}
	// Metrics is optional, create no-op collector if nil
	if cfg.Metrics == nil {
		cfg.Metrics = &NoopMetricsCollector{}
	}

	return &service{
		repo:         cfg.Repo,
		ledger:       cfg.Ledger,
		risk:         cfg.Risk,
		transactions: cfg.Transactions,
		settings:     cfg.Settings,
		cache:        cfg.Cache,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// operation describes one single-leg facade call.
type operation struct {
	action      string
	txType      models.TransactionType
	txid        string
	responsible string
	userID      string
	gross       money.Amount
	spread      money.Amount
	merchantRef string

	admit    bool
	riskOpts []risk.Option
	// settle applies admit_success in the same unit.
	settle bool
}

func (op *operation) normalize() error {
	if op.userID == "" {
		return fmt.Errorf("%w: user id is required", apperrors.ErrInvalidRequest)
	}
	if !op.gross.IsPositive() {
		return fmt.Errorf("%w: amount %s must be positive", apperrors.ErrInvalidAmount, op.gross)
	}
	if op.spread.IsNegative() || op.spread > op.gross {
		return fmt.Errorf("%w: spread %s outside [0, %s]", apperrors.ErrInvalidAmount, op.spread, op.gross)
	}
	if op.txid == "" {
		op.txid = uuid.NewString()
	}
	if op.responsible == "" {
		op.responsible = op.userID
	}
	return nil
}

func (s *service) execute(ctx context.Context, op operation) (*models.Transaction, error) {
	start := s.now()
	defer func() { s.metrics.RecordOperationDuration(op.action, s.now().Sub(start)) }()

	if err := op.normalize(); err != nil {
		s.metrics.RecordError(op.action, apperrors.Code(err))
		return nil, err
	}

	if existing, err := s.lookup(ctx, op.txid); err != nil {
		return nil, err
	} else if existing != nil {
		return s.replay(op, existing)
	}

	var tx *models.Transaction
	var denied bool
	err := s.repo.ExecuteInTransaction(ctx, func(repo repositories.Repository) error {
		now := s.now()
		user, err := repo.GetUser(ctx, op.userID)
		if err != nil {
			return err
		}
		if op.admit {
			decision, err := s.risk.Admit(ctx, repo, user, op.gross, op.txType, now, op.riskOpts...)
			if err != nil {
				return err
			}
			if !decision.Admitted {
				denied = true
				return decision.Err()
			}
		}

		tx, err = s.newTransaction(op, now)
		if err != nil {
			return err
		}
		if !tx.Credits() {
			resID, err := s.ledger.Reserve(ctx, repo, op.userID, tx.ID, op.gross)
			if err != nil {
				return err
			}
			tx.ReservationID = resID
		}
		if err := repo.CreateTransaction(ctx, tx); err != nil {
			return err
		}
		if op.settle {
			if _, err := s.transactions.Apply(ctx, repo, tx, transaction.EventAdmitSuccess, now, ""); err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(err, repositories.ErrDuplicateTxID) {
		// Lost an insert race on the same TxID.
		existing, lookupErr := s.lookup(ctx, op.txid)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			return s.replay(op, existing)
		}
	}
	if err != nil {
		result := ResultFailed
		if denied {
			result = ResultDenied
		}
		s.finish(ctx, op, nil, result, err)
		return nil, err
	}

	s.invalidate(ctx, op.userID)
	s.finish(ctx, op, tx, ResultAdmitted, nil)
	return tx, nil
}

func (s *service) newTransaction(op operation, now time.Time) (*models.Transaction, error) {
	net, err := op.gross.Sub(op.spread)
	if err != nil {
		return nil, err
	}
	tx := &models.Transaction{
		ID:          uuid.NewString(),
		TxID:        op.txid,
		UserID:      op.userID,
		Type:        op.txType,
		Status:      models.TransactionStatusPending,
		Direction:   op.txType.Direction(),
		GrossAmount: op.gross,
		Spread:      op.spread,
		NetAmount:   net,
		Currency:    models.DefaultCurrency,
		MerchantRef: op.merchantRef,
		CreatedAt:   now,
	}
	if tx.Credits() {
		tx.Amount = net
	} else if tx.Amount, err = op.gross.Neg(); err != nil {
		return nil, err
	}
	if lag := s.settings.Current().LagFor(op.txType); lag > 0 {
		due := now.Add(lag)
		tx.LiquidationDate = &due
	}
	return tx, nil
}

// lookup returns the transaction stored under txid, or nil.
func (s *service) lookup(ctx context.Context, txid string) (*models.Transaction, error) {
	tx, err := s.repo.GetTransactionByTxID(ctx, txid)
	if errors.Is(err, apperrors.ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// replay returns the stored result of a repeated call, or ErrTxIDConflict
// when the TxID was used for something else.
func (s *service) replay(op operation, existing *models.Transaction) (*models.Transaction, error) {
	if existing.UserID != op.userID || existing.Type != op.txType || existing.GrossAmount != op.gross {
		s.metrics.RecordError(op.action, apperrors.ErrTxIDConflict.Code)
		return nil, fmt.Errorf("%w: %s belongs to a %s of %s for user %s",
			apperrors.ErrTxIDConflict, op.txid, existing.Type, existing.GrossAmount, existing.UserID)
	}
	s.metrics.RecordOperationResult(op.action, ResultReplayed)
	return existing, nil
}

func (s *service) invalidate(ctx context.Context, userIDs ...string) {
	if err := s.cache.InvalidateBalances(ctx, userIDs...); err != nil {
		s.log.Warn("failed to invalidate balance cache", zap.Strings("user_ids", userIDs), zap.Error(err))
	}
}

// finish records metrics and the audit event of a call that reached the
// repository.
func (s *service) finish(ctx context.Context, op operation, tx *models.Transaction, result string, err error) {
	s.metrics.RecordOperationResult(op.action, result)
	details := map[string]interface{}{
		"txid":   op.txid,
		"type":   op.txType,
		"gross":  op.gross.String(),
		"result": result,
	}
	if op.spread.IsPositive() {
		details["spread"] = op.spread.String()
	}
	if op.merchantRef != "" {
		details["merchantRef"] = op.merchantRef
	}

	if err != nil {
		code := apperrors.Code(err)
		details["error"] = code
		s.metrics.RecordError(op.action, code)
		if result == ResultFailed && code == "" {
			s.log.Error("wallet operation failed", zap.String("action", op.action), zap.String("txid", op.txid), zap.Error(err))
		}
	} else {
		details["status"] = tx.Status
		details["transactionId"] = tx.ID
		s.metrics.RecordTransactionVolume(op.txType, op.gross)
	}

	s.audit.Record(ctx, audit.Event{
		ResponsibleID: op.responsible,
		TargetUserID:  op.userID,
		Action:        op.action,
		Details:       details,
	})
}

// Balance returns the user's balances, served from the cache when possible.
func (s *service) Balance(ctx context.Context, userID string) (*models.Balances, error) {
	if b, found, err := s.cache.GetBalances(ctx, userID); err != nil {
		s.log.Warn("balance cache read failed", zap.String("user_id", userID), zap.Error(err))
	} else if found {
		s.metrics.RecordCacheHit(userID)
		return b, nil
	}
	s.metrics.RecordCacheMiss(userID)

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	b := &models.Balances{UserID: user.ID, Points: user.PointsBalance, Blocked: user.BlockedBalance}
	if err := s.cache.SetBalances(ctx, b); err != nil {
		s.log.Warn("balance cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return b, nil
}
