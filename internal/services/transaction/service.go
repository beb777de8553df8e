// Package transaction drives transactions through their lifecycle and
// applies the balance effects of each transition through the ledger.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pontos/internal/config"
	apperrors "pontos/internal/errors"
	"pontos/internal/logger"
	"pontos/internal/models"
	"pontos/internal/repositories"
	"pontos/internal/services/audit"
	"pontos/internal/services/ledger"

	"go.uber.org/zap"
)

// SystemResponsible is the audit identity of transitions started by the
// engine itself.
const SystemResponsible = "system"

type SettingsProvider interface {
	Current() config.EngineSettings
}

type Config struct {
	Repo     repositories.Repository
	Ledger   *ledger.Service
	Settings SettingsProvider
	Cache    repositories.BalanceCache
	Audit    *audit.Recorder
	Logger   *zap.Logger
}

type Service struct {
	repo     repositories.Repository
	ledger   *ledger.Service
	settings SettingsProvider
	cache    repositories.BalanceCache
	audit    *audit.Recorder
	log      *zap.Logger
	now      func() time.Time
}

func NewService(cfg Config) *Service {
	if cfg.Repo == nil {
		panic("repository is required")
	}
	if cfg.Ledger == nil {
		panic("ledger service is required")
	}
	if cfg.Settings == nil {
		panic("settings provider is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = repositories.NoopBalanceCache{}
	}
	log := logger.OrNop(cfg.Logger).Named("transaction")
	if cfg.Audit == nil {
		cfg.Audit = audit.NewRecorder(nil, log)
	}
	return &Service{
		repo:     cfg.Repo,
		ledger:   cfg.Ledger,
		settings: cfg.Settings,
		cache:    cfg.Cache,
		audit:    cfg.Audit,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Outcome describes what Apply did.
type Outcome struct {
	Transaction *models.Transaction
	From        models.TransactionStatus
	// Replayed is set when the event had already been applied.
	Replayed bool
	// Affected lists the users whose balances changed.
	Affected []string
}

func (s *Service) policy() Policy {
	return Policy{RefundWindow: s.settings.Current().RefundWindow}
}

// Apply runs ev against tx on a transaction-scoped repository: it computes
// the next status, applies the ledger effect of entering it and persists the
// status with a compare-and-set on the status tx was read with.
func (s *Service) Apply(ctx context.Context, repo repositories.Repository, tx *models.Transaction, ev Event, now time.Time, reason string) (*Outcome, error) {
	from := tx.Status
	to, err := Next(tx, ev, now, s.policy())
	if err != nil {
		s.log.Warn("rejected transition",
			zap.String("txid", tx.TxID),
			zap.String("from", string(from)),
			zap.String("event", string(ev)),
			zap.Error(err))
		return nil, err
	}

	out := &Outcome{Transaction: tx, From: from}
	if to == from {
		out.Replayed = true
		return out, nil
	}

	if err := s.enter(ctx, repo, tx, to, now); err != nil {
		return nil, err
	}
	setStatus(tx, to, ev, now, reason)
	if err := repo.UpdateTransactionStatus(ctx, tx, from); err != nil {
		return nil, err
	}
	if to != models.TransactionStatusLiquidating {
		out.Affected = append(out.Affected, tx.UserID)
	}

	if to == models.TransactionStatusRefunded && tx.CounterpartID != "" {
		other, err := s.refundCounterpart(ctx, repo, tx, now, reason)
		if err != nil {
			return nil, err
		}
		out.Affected = append(out.Affected, other.UserID)
	}
	return out, nil
}

func setStatus(tx *models.Transaction, to models.TransactionStatus, ev Event, now time.Time, reason string) {
	tx.Status = to
	switch to {
	case models.TransactionStatusCompleted:
		at := now
		tx.CompletedAt = &at
	case models.TransactionStatusFailed, models.TransactionStatusCancelled:
		if reason == "" {
			reason = string(ev)
		}
		tx.FailureReason = reason
	}
}

func (s *Service) enter(ctx context.Context, repo repositories.Repository, tx *models.Transaction, to models.TransactionStatus, now time.Time) error {
	switch to {
	case models.TransactionStatusCompleted:
		if tx.Credits() {
			_, err := s.ledger.ApplyCredit(ctx, repo, tx.UserID, tx.ID, tx.NetAmount)
			return err
		}
		if tx.ReservationID == "" {
			return fmt.Errorf("%w: transaction %s has no reservation", apperrors.ErrReservationNotFound, tx.TxID)
		}
		_, err := s.ledger.Commit(ctx, repo, tx.ReservationID)
		return err

	case models.TransactionStatusFailed, models.TransactionStatusCancelled:
		if tx.Credits() || tx.ReservationID == "" {
			return nil
		}
		_, err := s.ledger.Release(ctx, repo, tx.ReservationID)
		return err

	case models.TransactionStatusRefunded:
		return s.reverse(ctx, repo, tx)
	}
	return nil
}

// reverse undoes a completed transaction's settled ledger delta.
func (s *Service) reverse(ctx context.Context, repo repositories.Repository, tx *models.Transaction) error {
	if tx.Credits() {
		_, err := s.ledger.ApplyDebit(ctx, repo, tx.UserID, tx.ID, tx.NetAmount, ledger.ReversalOf(tx.ID))
		return err
	}
	_, err := s.ledger.ApplyCredit(ctx, repo, tx.UserID, tx.ID, tx.GrossAmount, ledger.ReversalOf(tx.ID))
	return err
}

// refundCounterpart refunds the other leg of a transfer in the same unit.
func (s *Service) refundCounterpart(ctx context.Context, repo repositories.Repository, tx *models.Transaction, now time.Time, reason string) (*models.Transaction, error) {
	other, err := repo.GetTransaction(ctx, tx.CounterpartID)
	if err != nil {
		return nil, err
	}
	if other.Status != models.TransactionStatusCompleted {
		return nil, fmt.Errorf("%w: counterpart %s is %s", apperrors.ErrInvalidTransition, other.TxID, other.Status)
	}
	if err := s.reverse(ctx, repo, other); err != nil {
		return nil, err
	}
	setStatus(other, models.TransactionStatusRefunded, EventRefundRequest, now, reason)
	if err := repo.UpdateTransactionStatus(ctx, other, models.TransactionStatusCompleted); err != nil {
		return nil, err
	}
	return other, nil
}

type TransitionRequest struct {
	TxID          string
	Event         Event
	ResponsibleID string
	Reason        string
	// At is the time the event is evaluated at; zero means now.
	At time.Time
}

// Transition applies an external event (rail callback, cancel, refund,
// sweep) to the transaction identified by its TxID.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*models.Transaction, error) {
	if !req.Event.Valid() {
		return nil, fmt.Errorf("%w: unknown event %q", apperrors.ErrInvalidRequest, req.Event)
	}
	if req.ResponsibleID == "" {
		req.ResponsibleID = SystemResponsible
	}
	at := req.At
	if at.IsZero() {
		at = s.now()
	}

	var out *Outcome
	var err error
	// A lost compare-and-set or a hold settled by a concurrent callback is
	// retried once: the re-read sees the winner's status and the event
	// becomes a replay or an invalid transition.
	for attempt := 0; attempt < 2; attempt++ {
		err = s.repo.ExecuteInTransaction(ctx, func(repo repositories.Repository) error {
			tx, err := repo.GetTransactionByTxID(ctx, req.TxID)
			if err != nil {
				return err
			}
			out, err = s.Apply(ctx, repo, tx, req.Event, at, req.Reason)
			return err
		})
		if !errors.Is(err, repositories.ErrStaleTransaction) && !errors.Is(err, apperrors.ErrReservationSettled) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	tx := out.Transaction
	if out.Replayed {
		s.log.Debug("event already applied", zap.String("txid", tx.TxID), zap.String("event", string(req.Event)))
		return tx, nil
	}

	s.invalidate(ctx, out.Affected...)
	s.audit.Record(ctx, audit.Event{
		ResponsibleID: req.ResponsibleID,
		TargetUserID:  tx.UserID,
		Action:        audit.ActionTransition,
		Details: map[string]interface{}{
			"txid":  tx.TxID,
			"type":  tx.Type,
			"event": req.Event,
			"from":  out.From,
			"to":    tx.Status,
		},
	})
	s.log.Info("transaction transitioned",
		zap.String("txid", tx.TxID),
		zap.String("from", string(out.From)),
		zap.String("to", string(tx.Status)))
	return tx, nil
}

func (s *Service) invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	if err := s.cache.InvalidateBalances(ctx, userIDs...); err != nil {
		s.log.Warn("failed to invalidate balance cache", zap.Strings("user_ids", userIDs), zap.Error(err))
	}
}
