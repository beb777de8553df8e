package models

import (
	"time"

	"pontos/internal/money"
)

type TransactionType string

const (
	TransactionTypePixDeposit      TransactionType = "PIX_DEPOSIT"
	TransactionTypePixWithdraw     TransactionType = "PIX_WITHDRAW"
	TransactionTypeBoletoDeposit   TransactionType = "BOLETO_DEPOSIT"
	TransactionTypeMerchantPayment TransactionType = "MERCHANT_PAYMENT"
	TransactionTypeCashback        TransactionType = "CASHBACK"
	TransactionTypeTransfer        TransactionType = "TRANSFER"
	TransactionTypeFee             TransactionType = "FEE"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypePixDeposit, TransactionTypePixWithdraw, TransactionTypeBoletoDeposit,
		TransactionTypeMerchantPayment, TransactionTypeCashback, TransactionTypeTransfer, TransactionTypeFee:
		return true
	}
	return false
}

// Deposit reports whether t is funded by a payment rail. Only deposits may
// wait for a liquidation date.
func (t TransactionType) Deposit() bool {
	return t == TransactionTypePixDeposit || t == TransactionTypeBoletoDeposit
}

// Direction returns the balance direction of a type. Transfers have one leg
// of each direction, so the leg's own Direction field is authoritative.
func (t TransactionType) Direction() Direction {
	switch t {
	case TransactionTypePixDeposit, TransactionTypeBoletoDeposit, TransactionTypeCashback:
		return DirectionIn
	default:
		return DirectionOut
	}
}

type TransactionStatus string

const (
	TransactionStatusPending     TransactionStatus = "PENDING"
	TransactionStatusLiquidating TransactionStatus = "LIQUIDATING"
	TransactionStatusCompleted   TransactionStatus = "COMPLETED"
	TransactionStatusFailed      TransactionStatus = "FAILED"
	TransactionStatusCancelled   TransactionStatus = "CANCELLED"
	TransactionStatusRefunded    TransactionStatus = "REFUNDED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusLiquidating, TransactionStatusCompleted,
		TransactionStatusFailed, TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave the status, with
// the exception of COMPLETED -> REFUNDED.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionStatusFailed, TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	}
	return false
}

// InFlight statuses count towards risk windows.
var InFlightStatuses = []TransactionStatus{
	TransactionStatusCompleted,
	TransactionStatusPending,
	TransactionStatusLiquidating,
}

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

const DefaultCurrency = "PTS"

// Transaction belongs to exactly one user. Amount is the signed ledger delta
// the transaction settles: +NetAmount for IN, -GrossAmount for OUT.
type Transaction struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	TxID            string            `gorm:"column:txid;uniqueIndex;not null" json:"txid"`
	UserID          string            `gorm:"index;not null" json:"userId"`
	Type            TransactionType   `gorm:"not null;index" json:"type"`
	Status          TransactionStatus `gorm:"not null;index;default:'PENDING'" json:"status"`
	Direction       Direction         `gorm:"not null" json:"direction"`
	GrossAmount     money.Amount      `gorm:"not null" json:"grossAmount"`
	Spread          money.Amount      `gorm:"not null;default:0" json:"spread"`
	NetAmount       money.Amount      `gorm:"not null" json:"netAmount"`
	Amount          money.Amount      `gorm:"not null" json:"amount"`
	Currency        string            `gorm:"not null;default:'PTS'" json:"currency"`
	ReservationID   string            `json:"reservationId,omitempty"`
	CounterpartID   string            `json:"counterpartId,omitempty"`
	MerchantRef     string            `json:"merchantRef,omitempty"`
	LiquidationDate *time.Time        `gorm:"index" json:"liquidationDate,omitempty"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	FailureReason   string            `json:"failureReason,omitempty"`
	CreatedAt       time.Time         `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Credits reports whether the transaction adds to the owner's balance.
func (t *Transaction) Credits() bool {
	return t.Direction == DirectionIn
}

// TransactionFilter selects transactions for sweeps and window sums.
type TransactionFilter struct {
	UserID        string
	Direction     Direction
	Types         []TransactionType
	Statuses      []TransactionStatus
	CreatedFrom   time.Time
	CreatedBefore time.Time
	// LiquidationDue selects LIQUIDATING rows whose date is at or before it.
	LiquidationDue time.Time
	Limit          int
}
