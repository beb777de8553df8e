package models

import (
	"time"

	"pontos/internal/money"
)

type LedgerEntryKind string

const (
	EntryHold    LedgerEntryKind = "HOLD"
	EntryCommit  LedgerEntryKind = "COMMIT"
	EntryRelease LedgerEntryKind = "RELEASE"
	EntryCredit  LedgerEntryKind = "CREDIT"
	EntryDebit   LedgerEntryKind = "DEBIT"
)

// LedgerEntry is an immutable ledger row. Seq is taken from the user row in
// the same update that moved the balances, so a user's entries in Seq order
// are in commit order. Replaying them from zero reproduces the balances.
type LedgerEntry struct {
	ID            string          `gorm:"primaryKey;size:26" json:"id"`
	UserID        string          `gorm:"not null;index:idx_ledger_entries_user_seq,priority:1" json:"userId"`
	Seq           int64           `gorm:"not null;default:0;index:idx_ledger_entries_user_seq,priority:2" json:"seq"`
	TransactionID string          `gorm:"index;not null" json:"transactionId"`
	Kind          LedgerEntryKind `gorm:"not null" json:"kind"`
	PointsDelta   money.Amount    `gorm:"not null" json:"pointsDelta"`
	BlockedDelta  money.Amount    `gorm:"not null" json:"blockedDelta"`
	SettlesID     *string         `gorm:"uniqueIndex" json:"settlesId,omitempty"`
	ReversalOf    string          `json:"reversalOf,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}
