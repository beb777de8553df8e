// Package ledger owns every write to a user's balances. Each mutation is a
// conditional balance update plus an append-only LedgerEntry, both executed
// on the caller's transaction-scoped repository.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "pontos/internal/errors"
	"pontos/internal/logger"
	"pontos/internal/models"
	"pontos/internal/money"
	"pontos/internal/repositories"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type Service struct {
	log *zap.Logger
	now func() time.Time
}

func NewService(log *zap.Logger) *Service {
	return &Service{
		log: logger.OrNop(log).Named("ledger"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// EntryOption decorates an entry before it is appended.
type EntryOption func(*models.LedgerEntry)

// ReversalOf marks the entry as the refund of transactionID.
func ReversalOf(transactionID string) EntryOption {
	return func(e *models.LedgerEntry) { e.ReversalOf = transactionID }
}

func (s *Service) newEntry(b *models.Balances, transactionID string, kind models.LedgerEntryKind, points, blocked money.Amount, opts []EntryOption) *models.LedgerEntry {
	e := &models.LedgerEntry{
		ID:            ulid.Make().String(),
		UserID:        b.UserID,
		Seq:           b.Seq,
		TransactionID: transactionID,
		Kind:          kind,
		PointsDelta:   points,
		BlockedDelta:  blocked,
		CreatedAt:     s.now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func requirePositive(amount money.Amount) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", apperrors.ErrInvalidAmount, amount)
	}
	return nil
}

// Reserve moves amount from the user's points to blocked and returns the id
// of the HOLD entry, which is the reservation id.
func (s *Service) Reserve(ctx context.Context, repo repositories.Repository, userID, transactionID string, amount money.Amount) (string, error) {
	if err := requirePositive(amount); err != nil {
		return "", err
	}
	neg, err := amount.Neg()
	if err != nil {
		return "", err
	}
	b, err := repo.AdjustBalances(ctx, userID, neg, amount)
	if err != nil {
		return "", err
	}
	hold := s.newEntry(b, transactionID, models.EntryHold, neg, amount, nil)
	if err := repo.AppendEntry(ctx, hold); err != nil {
		return "", err
	}
	s.log.Debug("reserved", zap.String("user_id", userID), zap.String("reservation_id", hold.ID), zap.Int64("amount", amount.Int64()))
	return hold.ID, nil
}

// Commit consumes a reservation: the blocked amount leaves the user.
func (s *Service) Commit(ctx context.Context, repo repositories.Repository, reservationID string) (*models.LedgerEntry, error) {
	return s.settle(ctx, repo, reservationID, models.EntryCommit)
}

// Release returns a reservation's blocked amount to the user's points.
func (s *Service) Release(ctx context.Context, repo repositories.Repository, reservationID string) (*models.LedgerEntry, error) {
	return s.settle(ctx, repo, reservationID, models.EntryRelease)
}

func (s *Service) settle(ctx context.Context, repo repositories.Repository, reservationID string, kind models.LedgerEntryKind) (*models.LedgerEntry, error) {
	hold, err := repo.GetEntry(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if hold.Kind != models.EntryHold {
		return nil, fmt.Errorf("%w: entry %s is a %s", apperrors.ErrReservationNotFound, reservationID, hold.Kind)
	}

	amount := hold.BlockedDelta
	unblock, err := amount.Neg()
	if err != nil {
		return nil, err
	}
	points := money.Zero
	if kind == models.EntryRelease {
		points = amount
	}

	if err := s.ensureUnsettled(ctx, repo, hold.ID); err != nil {
		return nil, err
	}
	b, err := repo.AdjustBalances(ctx, hold.UserID, points, unblock)
	if err != nil {
		// A concurrent settlement may have committed while this one waited
		// on the user row.
		if errors.Is(err, apperrors.ErrInsufficientBalance) {
			if serr := s.ensureUnsettled(ctx, repo, hold.ID); serr != nil {
				return nil, serr
			}
		}
		return nil, err
	}

	entry := s.newEntry(b, hold.TransactionID, kind, points, unblock, nil)
	entry.SettlesID = &hold.ID
	// The unique SettlesID still rejects a racing settlement.
	if err := repo.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}
	s.log.Debug("settled reservation", zap.String("reservation_id", reservationID), zap.String("kind", string(kind)))
	return entry, nil
}

func (s *Service) ensureUnsettled(ctx context.Context, repo repositories.Repository, holdID string) error {
	settlement, found, err := repo.FindSettlement(ctx, holdID)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: %s by %s entry %s", apperrors.ErrReservationSettled, holdID, settlement.Kind, settlement.ID)
	}
	return nil
}

// ApplyCredit adds amount to the user's points.
func (s *Service) ApplyCredit(ctx context.Context, repo repositories.Repository, userID, transactionID string, amount money.Amount, opts ...EntryOption) (*models.LedgerEntry, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	b, err := repo.AdjustBalances(ctx, userID, amount, money.Zero)
	if err != nil {
		return nil, err
	}
	entry := s.newEntry(b, transactionID, models.EntryCredit, amount, money.Zero, opts)
	if err := repo.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ApplyDebit removes amount from the user's points, failing with
// ErrInsufficientBalance when the points are not there.
func (s *Service) ApplyDebit(ctx context.Context, repo repositories.Repository, userID, transactionID string, amount money.Amount, opts ...EntryOption) (*models.LedgerEntry, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	neg, err := amount.Neg()
	if err != nil {
		return nil, err
	}
	b, err := repo.AdjustBalances(ctx, userID, neg, money.Zero)
	if err != nil {
		return nil, err
	}
	entry := s.newEntry(b, transactionID, models.EntryDebit, neg, money.Zero, opts)
	if err := repo.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Replay folds the user's entries from zero in sequence order. Every prefix
// must leave both balances non-negative.
func (s *Service) Replay(ctx context.Context, repo repositories.Repository, userID string) (*models.Balances, error) {
	entries, err := repo.ListEntries(ctx, userID)
	if err != nil {
		return nil, err
	}

	b := &models.Balances{UserID: userID}
	for _, e := range entries {
		if b.Points, err = b.Points.Add(e.PointsDelta); err != nil {
			return nil, err
		}
		if b.Blocked, err = b.Blocked.Add(e.BlockedDelta); err != nil {
			return nil, err
		}
		if b.Points.IsNegative() || b.Blocked.IsNegative() {
			return nil, fmt.Errorf("%w: entry %s leaves user %s at %s/%s",
				apperrors.ErrLedgerMismatch, e.ID, userID, b.Points, b.Blocked)
		}
	}
	return b, nil
}

// Verify checks the materialized balances against a replay of the ledger.
func (s *Service) Verify(ctx context.Context, repo repositories.Repository, userID string) (*models.Balances, error) {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	replayed, err := s.Replay(ctx, repo, userID)
	if err != nil {
		return nil, err
	}
	if replayed.Points != user.PointsBalance || replayed.Blocked != user.BlockedBalance {
		s.log.Error("ledger mismatch",
			zap.String("user_id", userID),
			zap.Int64("ledger_points", replayed.Points.Int64()),
			zap.Int64("ledger_blocked", replayed.Blocked.Int64()),
			zap.Int64("points_balance", user.PointsBalance.Int64()),
			zap.Int64("blocked_balance", user.BlockedBalance.Int64()))
		return replayed, fmt.Errorf("%w: user %s stores %s/%s, ledger gives %s/%s",
			apperrors.ErrLedgerMismatch, userID,
			user.PointsBalance, user.BlockedBalance, replayed.Points, replayed.Blocked)
	}
	return replayed, nil
}
