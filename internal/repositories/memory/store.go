// Package memory is an in-process Repository used by tests and by
// STORE_DRIVER=memory. A repository transaction holds the store mutex for its
// whole duration and works on a copy of the state that replaces the live
// state only when fn succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "pontos/internal/errors"
	"pontos/internal/models"
	"pontos/internal/money"
	"pontos/internal/repositories"
)

type state struct {
	users    map[string]models.User
	txs      map[string]models.Transaction
	txByTxID map[string]string
	entries  map[string]models.LedgerEntry
	byUser   map[string][]string
	settled  map[string]string
	settings []models.SystemSetting
}

func newState() *state {
	return &state{
		users:    map[string]models.User{},
		txs:      map[string]models.Transaction{},
		txByTxID: map[string]string{},
		entries:  map[string]models.LedgerEntry{},
		byUser:   map[string][]string{},
		settled:  map[string]string{},
	}
}

func (s *state) clone() *state {
	c := &state{
		users:    make(map[string]models.User, len(s.users)),
		txs:      make(map[string]models.Transaction, len(s.txs)),
		txByTxID: make(map[string]string, len(s.txByTxID)),
		entries:  make(map[string]models.LedgerEntry, len(s.entries)),
		byUser:   make(map[string][]string, len(s.byUser)),
		settled:  make(map[string]string, len(s.settled)),
		settings: append([]models.SystemSetting(nil), s.settings...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.txs {
		c.txs[k] = v
	}
	for k, v := range s.txByTxID {
		c.txByTxID[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.byUser {
		c.byUser[k] = append([]string(nil), v...)
	}
	for k, v := range s.settled {
		c.settled[k] = v
	}
	return c
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// PutSetting adds or replaces a system setting row.
func (s *Store) PutSetting(setting models.SystemSetting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.state.settings {
		if row.Key == setting.Key {
			s.state.settings[i] = setting
			return
		}
	}
	s.state.settings = append(s.state.settings, setting)
}

// SetBalances overwrites a user's materialized balances without a ledger
// entry. It exists to simulate corruption in reconciliation tests.
func (s *Store) SetBalances(userID string, points, blocked money.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.state.users[userID]; ok {
		u.PointsBalance, u.BlockedBalance = points, blocked
		s.state.users[userID] = u
	}
}

func (s *Store) ExecuteInTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(&txRepo{st: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *Store) locked() (*txRepo, func()) {
	s.mu.Lock()
	return &txRepo{st: s.state}, s.mu.Unlock
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	r, unlock := s.locked()
	defer unlock()
	return r.CreateUser(ctx, user)
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.GetUser(ctx, id)
}

func (s *Store) ListUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.ListUserIDs(ctx, afterID, limit)
}

func (s *Store) AdjustBalances(ctx context.Context, userID string, pointsDelta, blockedDelta money.Amount) (*models.Balances, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.AdjustBalances(ctx, userID, pointsDelta, blockedDelta)
}

func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	r, unlock := s.locked()
	defer unlock()
	return r.CreateTransaction(ctx, tx)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.GetTransaction(ctx, id)
}

func (s *Store) GetTransactionByTxID(ctx context.Context, txid string) (*models.Transaction, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.GetTransactionByTxID(ctx, txid)
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, tx *models.Transaction, from models.TransactionStatus) error {
	r, unlock := s.locked()
	defer unlock()
	return r.UpdateTransactionStatus(ctx, tx, from)
}

func (s *Store) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.ListTransactions(ctx, filter)
}

func (s *Store) SumGrossAmount(ctx context.Context, filter models.TransactionFilter) (money.Amount, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.SumGrossAmount(ctx, filter)
}

func (s *Store) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	r, unlock := s.locked()
	defer unlock()
	return r.AppendEntry(ctx, entry)
}

func (s *Store) GetEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.GetEntry(ctx, id)
}

func (s *Store) FindSettlement(ctx context.Context, holdID string) (*models.LedgerEntry, bool, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.FindSettlement(ctx, holdID)
}

func (s *Store) ListEntries(ctx context.Context, userID string) ([]*models.LedgerEntry, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.ListEntries(ctx, userID)
}

func (s *Store) ListSettings(ctx context.Context, category string) ([]models.SystemSetting, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.ListSettings(ctx, category)
}

// txRepo operates on a state the caller already holds the lock for.
type txRepo struct {
	st *state
}

// ExecuteInTransaction joins the surrounding transaction.
func (r *txRepo) ExecuteInTransaction(_ context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

func (r *txRepo) CreateUser(_ context.Context, user *models.User) error {
	if _, ok := r.st.users[user.ID]; ok {
		return fmt.Errorf("failed to create user: duplicate id %s", user.ID)
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.st.users[user.ID] = *user
	return nil
}

func (r *txRepo) GetUser(_ context.Context, id string) (*models.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUserNotFound, id)
	}
	return &u, nil
}

func (r *txRepo) ListUserIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	ids := make([]string, 0, len(r.st.users))
	for id := range r.st.users {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *txRepo) AdjustBalances(_ context.Context, userID string, pointsDelta, blockedDelta money.Amount) (*models.Balances, error) {
	u, ok := r.st.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUserNotFound, userID)
	}
	points, err := u.PointsBalance.Add(pointsDelta)
	if err != nil {
		return nil, err
	}
	blocked, err := u.BlockedBalance.Add(blockedDelta)
	if err != nil {
		return nil, err
	}
	if points.IsNegative() || blocked.IsNegative() {
		return nil, fmt.Errorf("%w: user %s has %s available, %s blocked",
			apperrors.ErrInsufficientBalance, userID, u.PointsBalance, u.BlockedBalance)
	}
	u.PointsBalance, u.BlockedBalance = points, blocked
	u.LedgerSeq++
	u.UpdatedAt = time.Now().UTC()
	r.st.users[userID] = u
	return &models.Balances{UserID: userID, Points: points, Blocked: blocked, Seq: u.LedgerSeq}, nil
}

func (r *txRepo) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	if _, ok := r.st.txByTxID[tx.TxID]; ok {
		return fmt.Errorf("%w: %s", repositories.ErrDuplicateTxID, tx.TxID)
	}
	if _, ok := r.st.txs[tx.ID]; ok {
		return fmt.Errorf("failed to create transaction: duplicate id %s", tx.ID)
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	r.st.txs[tx.ID] = *tx
	r.st.txByTxID[tx.TxID] = tx.ID
	return nil
}

func (r *txRepo) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	tx, ok := r.st.txs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTransactionNotFound, id)
	}
	return &tx, nil
}

func (r *txRepo) GetTransactionByTxID(ctx context.Context, txid string) (*models.Transaction, error) {
	id, ok := r.st.txByTxID[txid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTransactionNotFound, txid)
	}
	return r.GetTransaction(ctx, id)
}

func (r *txRepo) UpdateTransactionStatus(_ context.Context, tx *models.Transaction, from models.TransactionStatus) error {
	stored, ok := r.st.txs[tx.ID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrTransactionNotFound, tx.ID)
	}
	if stored.Status != from {
		return fmt.Errorf("%w: %s is no longer %s", repositories.ErrStaleTransaction, tx.TxID, from)
	}
	tx.UpdatedAt = time.Now().UTC()
	stored.Status = tx.Status
	stored.CompletedAt = tx.CompletedAt
	stored.FailureReason = tx.FailureReason
	stored.UpdatedAt = tx.UpdatedAt
	r.st.txs[tx.ID] = stored
	return nil
}

func matches(tx *models.Transaction, f models.TransactionFilter) bool {
	if f.UserID != "" && tx.UserID != f.UserID {
		return false
	}
	if f.Direction != "" && tx.Direction != f.Direction {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, tx.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, tx.Status) {
		return false
	}
	if !f.CreatedFrom.IsZero() && tx.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !tx.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	if !f.LiquidationDue.IsZero() && (tx.LiquidationDate == nil || tx.LiquidationDate.After(f.LiquidationDue)) {
		return false
	}
	return true
}

func containsType(types []models.TransactionType, t models.TransactionType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsStatus(statuses []models.TransactionStatus, s models.TransactionStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func (r *txRepo) ListTransactions(_ context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for _, tx := range r.st.txs {
		tx := tx
		if matches(&tx, filter) {
			out = append(out, &tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *txRepo) SumGrossAmount(ctx context.Context, filter models.TransactionFilter) (money.Amount, error) {
	filter.Limit = 0
	txs, err := r.ListTransactions(ctx, filter)
	if err != nil {
		return 0, err
	}
	total := money.Zero
	for _, tx := range txs {
		if total, err = total.Add(tx.GrossAmount); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func (r *txRepo) AppendEntry(_ context.Context, entry *models.LedgerEntry) error {
	if _, ok := r.st.entries[entry.ID]; ok {
		return fmt.Errorf("failed to append ledger entry: duplicate id %s", entry.ID)
	}
	if entry.SettlesID != nil {
		if _, ok := r.st.settled[*entry.SettlesID]; ok {
			return fmt.Errorf("%w: %s", apperrors.ErrReservationSettled, *entry.SettlesID)
		}
		r.st.settled[*entry.SettlesID] = entry.ID
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.st.entries[entry.ID] = *entry
	r.st.byUser[entry.UserID] = append(r.st.byUser[entry.UserID], entry.ID)
	return nil
}

func (r *txRepo) GetEntry(_ context.Context, id string) (*models.LedgerEntry, error) {
	e, ok := r.st.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrReservationNotFound, id)
	}
	return &e, nil
}

func (r *txRepo) FindSettlement(_ context.Context, holdID string) (*models.LedgerEntry, bool, error) {
	id, ok := r.st.settled[holdID]
	if !ok {
		return nil, false, nil
	}
	e := r.st.entries[id]
	return &e, true, nil
}

func (r *txRepo) ListEntries(_ context.Context, userID string) ([]*models.LedgerEntry, error) {
	ids := r.st.byUser[userID]
	out := make([]*models.LedgerEntry, 0, len(ids))
	for _, id := range ids {
		e := r.st.entries[id]
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq == out[j].Seq {
			return out[i].ID < out[j].ID
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (r *txRepo) ListSettings(_ context.Context, category string) ([]models.SystemSetting, error) {
	var out []models.SystemSetting
	for _, s := range r.st.settings {
		if category == "" || s.Category == category {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

var (
	_ repositories.Repository = (*Store)(nil)
	_ repositories.Repository = (*txRepo)(nil)
)
