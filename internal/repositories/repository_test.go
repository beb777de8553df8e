package repositories

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "pontos/internal/errors"
	"pontos/internal/logger"
	"pontos/internal/models"
	"pontos/internal/money"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openTestDB opens a migrated sqlite database in a temp dir. One connection
// keeps writers serialized the way row locks do on postgres.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "pontos.db")), &gorm.Config{
		Logger:         logger.NewGormLogger(nil),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func newUser(id string) *models.User {
	return &models.User{ID: id, Status: models.UserStatusActive, KYCStatus: models.KYCVerified}
}

func newTx(userID, txid string, t models.TransactionType, gross money.Amount) *models.Transaction {
	return &models.Transaction{
		ID:          uuid.NewString(),
		TxID:        txid,
		UserID:      userID,
		Type:        t,
		Status:      models.TransactionStatusPending,
		Direction:   t.Direction(),
		GrossAmount: gross,
		NetAmount:   gross,
		Currency:    models.DefaultCurrency,
	}
}

func TestRepository_Users(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, repo.CreateUser(ctx, newUser(id)))
	}

	u, err := repo.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, models.KYCVerified, u.KYCStatus)

	_, err = repo.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

	ids, err := repo.ListUserIDs(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)
	ids, err = repo.ListUserIDs(ctx, "u2", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, ids)
}

func TestRepository_AdjustBalancesIsConditional(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, newUser("u1")))

	b, err := repo.AdjustBalances(ctx, "u1", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(100), b.Points)
	assert.Equal(t, int64(1), b.Seq)

	b, err = repo.AdjustBalances(ctx, "u1", -60, 60)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(40), b.Points)
	assert.Equal(t, money.Amount(60), b.Blocked)
	assert.Equal(t, int64(2), b.Seq)

	_, err = repo.AdjustBalances(ctx, "u1", -150, 0)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
	_, err = repo.AdjustBalances(ctx, "u1", 0, -61)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

	u, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(40), u.PointsBalance)
	assert.Equal(t, money.Amount(60), u.BlockedBalance)
	assert.Equal(t, int64(2), u.LedgerSeq, "failed updates do not advance the sequence")

	_, err = repo.AdjustBalances(ctx, "missing", 1, 0)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestRepository_Transactions(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, newUser("u1")))

	tx := newTx("u1", "ext-1", models.TransactionTypePixWithdraw, 500)
	require.NoError(t, repo.CreateTransaction(ctx, tx))

	dup := newTx("u1", "ext-1", models.TransactionTypePixWithdraw, 500)
	err := repo.CreateTransaction(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateTxID)

	got, err := repo.GetTransactionByTxID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	_, err = repo.GetTransaction(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrTransactionNotFound)

	now := time.Now().UTC()
	got.Status = models.TransactionStatusCompleted
	got.CompletedAt = &now
	require.NoError(t, repo.UpdateTransactionStatus(ctx, got, models.TransactionStatusPending))

	// A second writer that read PENDING loses the compare-and-set.
	stale := *tx
	stale.Status = models.TransactionStatusFailed
	err = repo.UpdateTransactionStatus(ctx, &stale, models.TransactionStatusPending)
	assert.ErrorIs(t, err, ErrStaleTransaction)

	got, err = repo.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestRepository_FilterAndSum(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, newUser("u1")))
	require.NoError(t, repo.CreateUser(ctx, newUser("u2")))

	rows := []*models.Transaction{
		newTx("u1", "a", models.TransactionTypePixDeposit, 100),
		newTx("u1", "b", models.TransactionTypeBoletoDeposit, 200),
		newTx("u1", "c", models.TransactionTypePixWithdraw, 400),
		newTx("u2", "d", models.TransactionTypePixDeposit, 800),
	}
	rows[1].Status = models.TransactionStatusFailed
	for _, tx := range rows {
		require.NoError(t, repo.CreateTransaction(ctx, tx))
	}

	sum, err := repo.SumGrossAmount(ctx, models.TransactionFilter{
		UserID:   "u1",
		Types:    []models.TransactionType{models.TransactionTypePixDeposit, models.TransactionTypeBoletoDeposit},
		Statuses: []models.TransactionStatus{models.TransactionStatusPending, models.TransactionStatusCompleted},
	})
	require.NoError(t, err)
	assert.Equal(t, money.Amount(100), sum)

	sum, err = repo.SumGrossAmount(ctx, models.TransactionFilter{UserID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, money.Zero, sum)

	list, err := repo.ListTransactions(ctx, models.TransactionFilter{Direction: models.DirectionIn, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = repo.ListTransactions(ctx, models.TransactionFilter{Statuses: []models.TransactionStatus{models.TransactionStatusPending}, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRepository_LedgerEntries(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()

	hold := &models.LedgerEntry{ID: "01A", UserID: "u1", TransactionID: "t1", Kind: models.EntryHold, PointsDelta: -50, BlockedDelta: 50}
	require.NoError(t, repo.AppendEntry(ctx, hold))
	settles := hold.ID
	commit := &models.LedgerEntry{ID: "01B", UserID: "u1", TransactionID: "t1", Kind: models.EntryCommit, BlockedDelta: -50, SettlesID: &settles}
	require.NoError(t, repo.AppendEntry(ctx, commit))

	again := &models.LedgerEntry{ID: "01C", UserID: "u1", TransactionID: "t1", Kind: models.EntryRelease, PointsDelta: 50, BlockedDelta: -50, SettlesID: &settles}
	assert.ErrorIs(t, repo.AppendEntry(ctx, again), apperrors.ErrReservationSettled)

	settlement, found, err := repo.FindSettlement(ctx, "01A")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "01B", settlement.ID)
	_, found, err = repo.FindSettlement(ctx, "01B")
	require.NoError(t, err)
	assert.False(t, found)

	got, err := repo.GetEntry(ctx, "01A")
	require.NoError(t, err)
	assert.Equal(t, models.EntryHold, got.Kind)
	_, err = repo.GetEntry(ctx, "zzz")
	assert.ErrorIs(t, err, apperrors.ErrReservationNotFound)

	entries, err := repo.ListEntries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "01A", entries[0].ID)
	assert.Equal(t, "01B", entries[1].ID)
}

func TestRepository_ListEntriesInSequenceOrder(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()

	// ids sort the other way round
	require.NoError(t, repo.AppendEntry(ctx, &models.LedgerEntry{ID: "01Z", UserID: "u1", TransactionID: "t1", Kind: models.EntryCredit, PointsDelta: 10, Seq: 1}))
	require.NoError(t, repo.AppendEntry(ctx, &models.LedgerEntry{ID: "01A", UserID: "u1", TransactionID: "t2", Kind: models.EntryDebit, PointsDelta: -10, Seq: 2}))

	entries, err := repo.ListEntries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "01Z", entries[0].ID)
	assert.Equal(t, "01A", entries[1].ID)
}

func TestRepository_ExecuteInTransactionRollsBack(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, newUser("u1")))

	boom := errors.New("boom")
	err := repo.ExecuteInTransaction(ctx, func(r Repository) error {
		if _, err := r.AdjustBalances(ctx, "u1", 500, 0); err != nil {
			return err
		}
		if err := r.CreateUser(ctx, newUser("u2")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	u, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, money.Zero, u.PointsBalance)
	_, err = repo.GetUser(ctx, "u2")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestRepository_ListSettings(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&[]models.SystemSetting{
		{Key: "refund.window", Value: "72h", Category: "wallet"},
		{Key: "limits.daily_default", Value: "1000", Category: "wallet"},
		{Key: "banner.text", Value: "hi", Category: "ui"},
	}).Error)

	rows, err := repo.ListSettings(ctx, "wallet")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "limits.daily_default", rows[0].Key)

	rows, err = repo.ListSettings(ctx, "")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
