package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "pontos/internal/errors"
	"pontos/internal/models"
	"pontos/internal/money"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const uniqueViolation = "23505"

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ExecuteInTransaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &repository{db: tx}
		return fn(txRepo)
	})
}

func (r *repository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *repository) ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id > ?", afterID).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return ids, nil
}

func (r *repository) AdjustBalances(ctx context.Context, userID string, pointsDelta, blockedDelta money.Amount) (*models.Balances, error) {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND points_balance + ? >= 0 AND blocked_balance + ? >= 0", userID, pointsDelta, blockedDelta).
		Updates(map[string]interface{}{
			"points_balance":  gorm.Expr("points_balance + ?", pointsDelta),
			"blocked_balance": gorm.Expr("blocked_balance + ?", blockedDelta),
			"ledger_seq":      gorm.Expr("ledger_seq + 1"),
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to adjust balances: %w", result.Error)
	}

	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: user %s has %s available, %s blocked",
			apperrors.ErrInsufficientBalance, userID, user.PointsBalance, user.BlockedBalance)
	}
	return &models.Balances{UserID: user.ID, Points: user.PointsBalance, Blocked: user.BlockedBalance, Seq: user.LedgerSeq}, nil
}

func (r *repository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateTxID, tx.TxID)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *repository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return r.findTransaction(ctx, "id = ?", id)
}

func (r *repository) GetTransactionByTxID(ctx context.Context, txid string) (*models.Transaction, error) {
	return r.findTransaction(ctx, "txid = ?", txid)
}

func (r *repository) findTransaction(ctx context.Context, query string, arg string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).Where(query, arg).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrTransactionNotFound, arg)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *repository) UpdateTransactionStatus(ctx context.Context, tx *models.Transaction, from models.TransactionStatus) error {
	tx.UpdatedAt = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", tx.ID, from).
		Updates(map[string]interface{}{
			"status":         tx.Status,
			"completed_at":   tx.CompletedAt,
			"failure_reason": tx.FailureReason,
			"updated_at":     tx.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update transaction status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s is no longer %s", ErrStaleTransaction, tx.TxID, from)
	}
	return nil
}

func (r *repository) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	q := applyFilter(r.db.WithContext(ctx).Model(&models.Transaction{}), filter).Order("created_at, id")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (r *repository) SumGrossAmount(ctx context.Context, filter models.TransactionFilter) (money.Amount, error) {
	var total int64
	err := applyFilter(r.db.WithContext(ctx).Model(&models.Transaction{}), filter).
		Select("COALESCE(SUM(gross_amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return money.Amount(total), nil
}

func applyFilter(q *gorm.DB, f models.TransactionFilter) *gorm.DB {
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Direction != "" {
		q = q.Where("direction = ?", f.Direction)
	}
	if len(f.Types) > 0 {
		q = q.Where("type IN ?", f.Types)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if !f.CreatedFrom.IsZero() {
		q = q.Where("created_at >= ?", f.CreatedFrom.UTC())
	}
	if !f.CreatedBefore.IsZero() {
		q = q.Where("created_at < ?", f.CreatedBefore.UTC())
	}
	if !f.LiquidationDue.IsZero() {
		q = q.Where("liquidation_date IS NOT NULL AND liquidation_date <= ?", f.LiquidationDue.UTC())
	}
	return q
}

func (r *repository) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if isUniqueViolation(err) && entry.SettlesID != nil {
			return fmt.Errorf("%w: %s", apperrors.ErrReservationSettled, *entry.SettlesID)
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (r *repository) GetEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrReservationNotFound, id)
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return &entry, nil
}

func (r *repository) FindSettlement(ctx context.Context, holdID string) (*models.LedgerEntry, bool, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("settles_id = ?", holdID).Limit(1).Find(&entries).Error; err != nil {
		return nil, false, fmt.Errorf("failed to find settlement: %w", err)
	}
	if len(entries) == 0 {
		return nil, false, nil
	}
	return &entries[0], true, nil
}

func (r *repository) ListEntries(ctx context.Context, userID string) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("seq, id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

func (r *repository) ListSettings(ctx context.Context, category string) ([]models.SystemSetting, error) {
	var rows []models.SystemSetting
	q := r.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}})
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list system settings: %w", err)
	}
	return rows, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
