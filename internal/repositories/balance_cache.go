package repositories

import (
	"context"

	"pontos/internal/models"
)

// BalanceCache caches materialized balances for reads. Writers invalidate
// after commit; the database stays authoritative.
type BalanceCache interface {
	GetBalances(ctx context.Context, userID string) (*models.Balances, bool, error)
	SetBalances(ctx context.Context, b *models.Balances) error
	InvalidateBalances(ctx context.Context, userIDs ...string) error
}

// NoopBalanceCache never hits.
type NoopBalanceCache struct{}

func (NoopBalanceCache) GetBalances(context.Context, string) (*models.Balances, bool, error) {
	return nil, false, nil
}

func (NoopBalanceCache) SetBalances(context.Context, *models.Balances) error { return nil }

func (NoopBalanceCache) InvalidateBalances(context.Context, ...string) error { return nil }
