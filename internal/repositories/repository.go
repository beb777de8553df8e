package repositories

import (
	"context"
	"errors"

	"pontos/internal/models"
	"pontos/internal/money"
)

var (
	ErrDuplicateTxID      = errors.New("transaction with this txid already exists")
	ErrStaleTransaction   = errors.New("transaction status changed concurrently")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// Repository is the durable store behind the wallet engine. Implementations
// must make AdjustBalances a single conditional update and must run
// everything inside ExecuteInTransaction in one commit.
type Repository interface {
	// ExecuteInTransaction runs fn against a repository bound to a single
	// database transaction. Returning an error rolls everything back.
	ExecuteInTransaction(ctx context.Context, fn func(Repository) error) error

	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error)
	// AdjustBalances atomically adds the deltas to the user's balances,
	// advances the user's ledger sequence and fails with
	// ErrInsufficientBalance when either result would be negative. The
	// returned Balances carry the new sequence.
	AdjustBalances(ctx context.Context, userID string, pointsDelta, blockedDelta money.Amount) (*models.Balances, error)

	// Transactions
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	GetTransactionByTxID(ctx context.Context, txid string) (*models.Transaction, error)
	// UpdateTransactionStatus persists tx's status fields only if the stored
	// status still equals from.
	UpdateTransactionStatus(ctx context.Context, tx *models.Transaction, from models.TransactionStatus) error
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error)
	SumGrossAmount(ctx context.Context, filter models.TransactionFilter) (money.Amount, error)

	// Ledger
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) error
	GetEntry(ctx context.Context, id string) (*models.LedgerEntry, error)
	// FindSettlement returns the COMMIT or RELEASE entry of a hold.
	FindSettlement(ctx context.Context, holdID string) (*models.LedgerEntry, bool, error)
	// ListEntries returns the user's entries in sequence order.
	ListEntries(ctx context.Context, userID string) ([]*models.LedgerEntry, error)

	// Settings
	ListSettings(ctx context.Context, category string) ([]models.SystemSetting, error)
}
