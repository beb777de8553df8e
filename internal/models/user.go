package models

import (
	"time"

	"pontos/internal/money"
)

type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleFinance     UserRole = "FINANCE"
	RoleCompliance  UserRole = "COMPLIANCE"
	RoleSupport     UserRole = "SUPPORT"
	RoleOperational UserRole = "OPERATIONAL"
	RolePartner     UserRole = "PARTNER"
	RoleCustomer    UserRole = "CUSTOMER"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleFinance, RoleCompliance, RoleSupport, RoleOperational, RolePartner, RoleCustomer:
		return true
	}
	return false
}

// IsOperator reports whether the role may act on other users' wallets.
func (r UserRole) IsOperator() bool {
	switch r {
	case RoleAdmin, RoleFinance, RoleCompliance, RoleSupport, RoleOperational:
		return true
	}
	return false
}

type UserStatus string

const (
	UserStatusActive     UserStatus = "ACTIVE"
	UserStatusBlocked    UserStatus = "BLOCKED"
	UserStatusPending    UserStatus = "PENDING"
	UserStatusAnalysis   UserStatus = "ANALYSIS"
	UserStatusTerminated UserStatus = "TERMINATED"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusBlocked, UserStatusPending, UserStatusAnalysis, UserStatusTerminated:
		return true
	}
	return false
}

type KYCStatus string

const (
	KYCNotStarted KYCStatus = "NOT_STARTED"
	KYCPending    KYCStatus = "PENDING"
	KYCVerified   KYCStatus = "VERIFIED"
	KYCRejected   KYCStatus = "REJECTED"
)

func (s KYCStatus) Valid() bool {
	switch s {
	case KYCNotStarted, KYCPending, KYCVerified, KYCRejected:
		return true
	}
	return false
}

// User is the wallet owner. PointsBalance and BlockedBalance are a cached
// materialization of the user's ledger entries and are written only by the
// ledger service.
type User struct {
	ID               string       `gorm:"primaryKey;size:36" json:"id"`
	Name             string       `json:"name"`
	Email            string       `gorm:"index" json:"email"`
	Role             UserRole     `gorm:"not null;default:'CUSTOMER'" json:"role"`
	Status           UserStatus   `gorm:"not null;default:'ACTIVE'" json:"status"`
	KYCStatus        KYCStatus    `gorm:"column:kyc_status;not null;default:'NOT_STARTED'" json:"kycStatus"`
	RiskScore        int          `gorm:"not null;default:0" json:"riskScore"`
	DailyLimit       money.Amount `gorm:"not null;default:0" json:"dailyLimit"`
	MonthlyLimit     money.Amount `gorm:"not null;default:0" json:"monthlyLimit"`
	PerTxLimit       money.Amount `gorm:"not null;default:0" json:"perTxLimit"`
	PointsBalance    money.Amount `gorm:"not null;default:0" json:"pointsBalance"`
	BlockedBalance   money.Amount `gorm:"not null;default:0" json:"blockedBalance"`
	LedgerSeq        int64        `gorm:"not null;default:0" json:"-"`
	TwoFactorEnabled bool         `gorm:"default:false" json:"twoFactorEnabled"`
	Timezone         string       `json:"timezone,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Location returns the user's configured timezone, UTC if unset or unknown.
func (u *User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Balances is a snapshot of a user's two balance fields.
type Balances struct {
	UserID  string       `json:"userId"`
	Points  money.Amount `json:"pointsBalance"`
	Blocked money.Amount `json:"blockedBalance"`

	// Seq is the user's ledger sequence after the update that produced
	// these balances.
	Seq int64 `json:"-"`
}
