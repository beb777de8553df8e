package ledger

import (
	"context"
	"testing"

	apperrors "pontos/internal/errors"
	"pontos/internal/models"
	"pontos/internal/money"
	"pontos/internal/repositories"
	"pontos/internal/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, points money.Amount) (*Service, *memory.Store, string) {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(nil)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "u1", Status: models.UserStatusActive}))
	if points > 0 {
		_, err := svc.ApplyCredit(ctx, store, "u1", "seed", points)
		require.NoError(t, err)
	}
	return svc, store, "u1"
}

func balances(t *testing.T, store *memory.Store, userID string) (money.Amount, money.Amount) {
	t.Helper()
	u, err := store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.PointsBalance, u.BlockedBalance
}

func TestReserveCommit(t *testing.T) {
	svc, store, uid := setup(t, 1000)
	ctx := context.Background()

	resID, err := svc.Reserve(ctx, store, uid, "tx1", 400)
	require.NoError(t, err)
	points, blocked := balances(t, store, uid)
	assert.Equal(t, money.Amount(600), points)
	assert.Equal(t, money.Amount(400), blocked)

	entry, err := svc.Commit(ctx, store, resID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryCommit, entry.Kind)
	require.NotNil(t, entry.SettlesID)
	assert.Equal(t, resID, *entry.SettlesID)

	points, blocked = balances(t, store, uid)
	assert.Equal(t, money.Amount(600), points)
	assert.Equal(t, money.Zero, blocked)
}

func TestReserveRelease(t *testing.T) {
	svc, store, uid := setup(t, 1000)
	ctx := context.Background()

	resID, err := svc.Reserve(ctx, store, uid, "tx1", 1000)
	require.NoError(t, err)
	_, err = svc.Release(ctx, store, resID)
	require.NoError(t, err)

	points, blocked := balances(t, store, uid)
	assert.Equal(t, money.Amount(1000), points)
	assert.Equal(t, money.Zero, blocked)
}

func TestReservationSettlesOnce(t *testing.T) {
	svc, store, uid := setup(t, 500)
	ctx := context.Background()

	resID, err := svc.Reserve(ctx, store, uid, "tx1", 200)
	require.NoError(t, err)
	_, err = svc.Commit(ctx, store, resID)
	require.NoError(t, err)

	_, err = svc.Release(ctx, store, resID)
	assert.ErrorIs(t, err, apperrors.ErrReservationSettled)
	_, err = svc.Commit(ctx, store, resID)
	assert.ErrorIs(t, err, apperrors.ErrReservationSettled)

	points, blocked := balances(t, store, uid)
	assert.Equal(t, money.Amount(300), points)
	assert.Equal(t, money.Zero, blocked)
}

func TestSettleUnknownReservation(t *testing.T) {
	svc, store, _ := setup(t, 500)
	_, err := svc.Commit(context.Background(), store, "missing")
	assert.ErrorIs(t, err, apperrors.ErrReservationNotFound)
}

func TestSettleRejectsNonHold(t *testing.T) {
	svc, store, uid := setup(t, 0)
	credit, err := svc.ApplyCredit(context.Background(), store, uid, "tx1", 10)
	require.NoError(t, err)
	_, err = svc.Commit(context.Background(), store, credit.ID)
	assert.ErrorIs(t, err, apperrors.ErrReservationNotFound)
}

func TestReserveInsufficientBalance(t *testing.T) {
	svc, store, uid := setup(t, 100)

	_, err := svc.Reserve(context.Background(), store, uid, "tx1", 150)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

	points, blocked := balances(t, store, uid)
	assert.Equal(t, money.Amount(100), points)
	assert.Equal(t, money.Zero, blocked)
	entries, err := store.ListEntries(context.Background(), uid)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestApplyDebit(t *testing.T) {
	svc, store, uid := setup(t, 100)
	ctx := context.Background()

	_, err := svc.ApplyDebit(ctx, store, uid, "tx1", 101)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

	entry, err := svc.ApplyDebit(ctx, store, uid, "tx1", 40, ReversalOf("orig"))
	require.NoError(t, err)
	assert.Equal(t, "orig", entry.ReversalOf)
	points, _ := balances(t, store, uid)
	assert.Equal(t, money.Amount(60), points)
}

func TestNonPositiveAmounts(t *testing.T) {
	svc, store, uid := setup(t, 100)
	ctx := context.Background()

	for _, amount := range []money.Amount{0, -5} {
		_, err := svc.Reserve(ctx, store, uid, "tx", amount)
		assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
		_, err = svc.ApplyCredit(ctx, store, uid, "tx", amount)
		assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
		_, err = svc.ApplyDebit(ctx, store, uid, "tx", amount)
		assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
	}
}

func TestCreditOverflow(t *testing.T) {
	svc, store, uid := setup(t, money.Max)
	_, err := svc.ApplyCredit(context.Background(), store, uid, "tx", 1)
	assert.ErrorIs(t, err, apperrors.ErrOverflow)
}

func TestReplayMatchesMaterializedBalances(t *testing.T) {
	svc, store, uid := setup(t, 10000)
	ctx := context.Background()

	err := store.ExecuteInTransaction(ctx, func(repo repositories.Repository) error {
		r1, err := svc.Reserve(ctx, repo, uid, "a", 2500)
		if err != nil {
			return err
		}
		r2, err := svc.Reserve(ctx, repo, uid, "b", 1000)
		if err != nil {
			return err
		}
		if _, err := svc.Commit(ctx, repo, r1); err != nil {
			return err
		}
		if _, err := svc.Release(ctx, repo, r2); err != nil {
			return err
		}
		if _, err := svc.Reserve(ctx, repo, uid, "c", 300); err != nil {
			return err
		}
		_, err = svc.ApplyDebit(ctx, repo, uid, "d", 200)
		return err
	})
	require.NoError(t, err)

	replayed, err := svc.Verify(ctx, store, uid)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(7000), replayed.Points)
	assert.Equal(t, money.Amount(300), replayed.Blocked)
}

func TestVerifyDetectsMismatch(t *testing.T) {
	svc, store, uid := setup(t, 500)
	store.SetBalances(uid, 499, 0)

	_, err := svc.Verify(context.Background(), store, uid)
	assert.ErrorIs(t, err, apperrors.ErrLedgerMismatch)
}

func TestFailedUnitLeavesNoTrace(t *testing.T) {
	svc, store, uid := setup(t, 500)
	ctx := context.Background()

	err := store.ExecuteInTransaction(ctx, func(repo repositories.Repository) error {
		if _, err := svc.Reserve(ctx, repo, uid, "a", 300); err != nil {
			return err
		}
		_, err := svc.Reserve(ctx, repo, uid, "b", 300)
		return err
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

	points, blocked := balances(t, store, uid)
	assert.Equal(t, money.Amount(500), points)
	assert.Equal(t, money.Zero, blocked)
	_, err = svc.Verify(ctx, store, uid)
	assert.NoError(t, err)
}

func TestEntriesCarryUserSequence(t *testing.T) {
	svc, store, uid := setup(t, 1000)
	ctx := context.Background()

	resID, err := svc.Reserve(ctx, store, uid, "tx1", 400)
	require.NoError(t, err)
	_, err = svc.Release(ctx, store, resID)
	require.NoError(t, err)

	entries, err := store.ListEntries(ctx, uid)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq, e.Kind)
	}
}

// Entries written by different processes can have ids out of commit order.
// The replay follows the sequence, not the id.
func TestReplayFollowsSequenceNotID(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(nil)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "u1", Status: models.UserStatusActive}))

	holdA := "01HZ00000000000000000000B0"
	rows := []*models.LedgerEntry{
		{ID: "01HZ00000000000000000000A0", Seq: 1, Kind: models.EntryCredit, PointsDelta: 100},
		{ID: holdA, Seq: 2, Kind: models.EntryHold, PointsDelta: -100, BlockedDelta: 100},
		{ID: "01HZ00000000000000000000Z0", Seq: 3, Kind: models.EntryRelease, PointsDelta: 100, BlockedDelta: -100, SettlesID: &holdA},
		{ID: "01HZ00000000000000000000M0", Seq: 4, Kind: models.EntryHold, PointsDelta: -100, BlockedDelta: 100},
	}
	for _, e := range rows {
		e.UserID, e.TransactionID = "u1", "tx"
		require.NoError(t, store.AppendEntry(ctx, e))
	}
	store.SetBalances("u1", 0, 100)

	b, err := svc.Verify(ctx, store, "u1")
	require.NoError(t, err)
	assert.Equal(t, money.Zero, b.Points)
	assert.Equal(t, money.Amount(100), b.Blocked)
}
