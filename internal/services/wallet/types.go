package wallet

import (
	"context"
	"time"

	"pontos/internal/models"
	"pontos/internal/money"
)

// Service is the wallet facade.
type Service interface {
	Deposit(ctx context.Context, req DepositRequest) (*models.Transaction, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (*models.Transaction, error)
	MerchantPayment(ctx context.Context, req MerchantPaymentRequest) (*models.Transaction, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Cashback(ctx context.Context, req CashbackRequest) (*models.Transaction, error)
	Fee(ctx context.Context, req FeeRequest) (*models.Transaction, error)
	Balance(ctx context.Context, userID string) (*models.Balances, error)
}

type Rail string

const (
	RailPix    Rail = "PIX"
	RailBoleto Rail = "BOLETO"
)

// Every request carries the caller's idempotency key (TxID, generated when
// empty) and the identity recorded in the audit event (ResponsibleID,
// defaulting to the target user).

type DepositRequest struct {
	TxID          string
	ResponsibleID string
	UserID        string
	Gross         money.Amount
	Spread        money.Amount
	Rail          Rail
}

type WithdrawRequest struct {
	TxID          string
	ResponsibleID string
	UserID        string
	Amount        money.Amount
}

type MerchantPaymentRequest struct {
	TxID          string
	ResponsibleID string
	UserID        string
	Amount        money.Amount
	MerchantRef   string
}

type TransferRequest struct {
	TxID          string
	ResponsibleID string
	FromUserID    string
	ToUserID      string
	Amount        money.Amount
}

type CashbackRequest struct {
	TxID          string
	ResponsibleID string
	UserID        string
	Amount        money.Amount
}

type FeeRequest struct {
	TxID          string
	ResponsibleID string
	UserID        string
	Amount        money.Amount
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Out *models.Transaction `json:"out"`
	In  *models.Transaction `json:"in"`
}

// MetricsCollector defines the interface for collecting wallet metrics
type MetricsCollector interface {
	// Operation metrics
	RecordOperationDuration(operation string, duration time.Duration)
	RecordOperationResult(operation, result string)

	// Cache metrics
	RecordCacheHit(key string)
	RecordCacheMiss(key string)

	// Error metrics
	RecordError(operation, code string)

	// Transaction metrics
	RecordTransactionVolume(txType models.TransactionType, amount money.Amount)
}
