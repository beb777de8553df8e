package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "pontos/internal/errors"
	"pontos/internal/handlers"
	"pontos/internal/middleware"
	"pontos/internal/models"
	"pontos/internal/routes"
	"pontos/internal/services/transaction"
	"pontos/internal/services/wallet"
	"pontos/internal/utils"
	"pontos/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type MockWallet struct {
	mock.Mock
}

func txArg(args mock.Arguments) *models.Transaction {
	tx, _ := args.Get(0).(*models.Transaction)
	return tx
}

func (m *MockWallet) Deposit(ctx context.Context, req wallet.DepositRequest) (*models.Transaction, error) {
	args := m.Called(ctx, req)
	return txArg(args), args.Error(1)
}

func (m *MockWallet) Withdraw(ctx context.Context, req wallet.WithdrawRequest) (*models.Transaction, error) {
	args := m.Called(ctx, req)
	return txArg(args), args.Error(1)
}

func (m *MockWallet) MerchantPayment(ctx context.Context, req wallet.MerchantPaymentRequest) (*models.Transaction, error) {
	args := m.Called(ctx, req)
	return txArg(args), args.Error(1)
}

func (m *MockWallet) Transfer(ctx context.Context, req wallet.TransferRequest) (*wallet.TransferResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*wallet.TransferResult)
	return res, args.Error(1)
}

func (m *MockWallet) Cashback(ctx context.Context, req wallet.CashbackRequest) (*models.Transaction, error) {
	args := m.Called(ctx, req)
	return txArg(args), args.Error(1)
}

func (m *MockWallet) Fee(ctx context.Context, req wallet.FeeRequest) (*models.Transaction, error) {
	args := m.Called(ctx, req)
	return txArg(args), args.Error(1)
}

func (m *MockWallet) Balance(ctx context.Context, userID string) (*models.Balances, error) {
	args := m.Called(ctx, userID)
	b, _ := args.Get(0).(*models.Balances)
	return b, args.Error(1)
}

type MockTransactions struct {
	mock.Mock
}

func (m *MockTransactions) Transition(ctx context.Context, req transaction.TransitionRequest) (*models.Transaction, error) {
	args := m.Called(ctx, req)
	return txArg(args), args.Error(1)
}

func (m *MockTransactions) GetTransactionByTxID(ctx context.Context, txid string) (*models.Transaction, error) {
	args := m.Called(ctx, txid)
	return txArg(args), args.Error(1)
}

type fakeEnqueuer struct {
	tasks []string
}

func (f *fakeEnqueuer) Enqueue(taskType, requestedBy string) (string, error) {
	f.tasks = append(f.tasks, taskType+"@"+requestedBy)
	return "task-1", nil
}

type testApp struct {
	app    *fiber.App
	wallet *MockWallet
	txs    *MockTransactions
	sweeps *fakeEnqueuer
}

func newTestApp(t *testing.T, verify handlers.LedgerVerifierFunc) *testApp {
	t.Helper()
	ta := &testApp{
		wallet: new(MockWallet),
		txs:    new(MockTransactions),
		sweeps: &fakeEnqueuer{},
	}
	if verify == nil {
		verify = func(_ context.Context, userID string) (*models.Balances, error) {
			return &models.Balances{UserID: userID}, nil
		}
	}
	ta.app = fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(nil)})
	routes.SetupRoutes(ta.app, routes.Handlers{
		Auth:         middleware.NewAuthMiddleware(testSecret, nil),
		Wallet:       handlers.NewWalletHandler(ta.wallet),
		Transactions: handlers.NewTransactionHandler(ta.txs, ta.txs),
		Admin:        handlers.NewAdminHandler(verify, ta.sweeps),
		Health:       handlers.NewHealthHandler("test", nil, nil),
	})
	return ta
}

func token(t *testing.T, userID string, role models.UserRole) string {
	t.Helper()
	tok, err := utils.IssueToken(testSecret, models.UserClaims{UserID: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (ta *testApp) do(t *testing.T, method, path, tok string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestAuth(t *testing.T) {
	ta := newTestApp(t, nil)

	status, body := ta.do(t, http.MethodGet, "/api/v1/wallet/u1/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	status, _ = ta.do(t, http.MethodGet, "/api/v1/wallet/u1/balance", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	other, err := utils.IssueToken("other-secret", models.UserClaims{UserID: "u1", Role: models.RoleCustomer}, time.Hour)
	require.NoError(t, err)
	status, _ = ta.do(t, http.MethodGet, "/api/v1/wallet/u1/balance", other, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	expired, err := utils.IssueToken(testSecret, models.UserClaims{UserID: "u1", Role: models.RoleCustomer}, -time.Minute)
	require.NoError(t, err)
	status, _ = ta.do(t, http.MethodGet, "/api/v1/wallet/u1/balance", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHealth(t *testing.T) {
	ta := newTestApp(t, nil)
	status, body := ta.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestDeposit_UsesCallerIdentity(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.wallet.On("Deposit", mock.Anything, wallet.DepositRequest{
		TxID:          "ext-1",
		ResponsibleID: "u1",
		UserID:        "u1",
		Gross:         10000,
		Spread:        200,
		Rail:          wallet.RailPix,
	}).Return(&models.Transaction{TxID: "ext-1", UserID: "u1", Status: models.TransactionStatusPending}, nil)

	status, body := ta.do(t, http.MethodPost, "/api/v1/wallet/deposits", token(t, "u1", models.RoleCustomer), map[string]interface{}{
		"txid":   "ext-1",
		"gross":  10000,
		"spread": 200,
		"rail":   "PIX",
	})
	require.Equal(t, http.StatusCreated, status, body)
	tx := body["transaction"].(map[string]interface{})
	assert.Equal(t, "PENDING", tx["status"])
	ta.wallet.AssertExpectations(t)
}

func TestDeposit_MajorUnitStrings(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.wallet.On("Deposit", mock.Anything, mock.MatchedBy(func(r wallet.DepositRequest) bool {
		return r.Gross == 10000 && r.Spread == 200
	})).Return(&models.Transaction{TxID: "ext-2", UserID: "u1", Status: models.TransactionStatusCompleted}, nil)

	status, _ := ta.do(t, http.MethodPost, "/api/v1/wallet/deposits", token(t, "u1", models.RoleCustomer), map[string]interface{}{
		"txid": "ext-2", "gross": "100.00", "spread": "2", "rail": "PIX",
	})
	assert.Equal(t, http.StatusCreated, status)

	status, body := ta.do(t, http.MethodPost, "/api/v1/wallet/deposits", token(t, "u1", models.RoleCustomer), map[string]interface{}{
		"txid": "ext-3", "gross": "100.001", "rail": "PIX",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_REQUEST", body["code"])
	ta.wallet.AssertNumberOfCalls(t, "Deposit", 1)
}

func TestWithdraw_IdempotencyHeader(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.wallet.On("Withdraw", mock.Anything, mock.MatchedBy(func(r wallet.WithdrawRequest) bool {
		return r.TxID == "hdr-1" && r.UserID == "u1" && r.Amount == 500
	})).Return(&models.Transaction{TxID: "hdr-1"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdrawals", bytes.NewReader([]byte(`{"amount":500}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, "u1", models.RoleCustomer))
	req.Header.Set(handlers.IdempotencyHeader, "hdr-1")
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	ta.wallet.AssertExpectations(t)
}

func TestCustomerCannotActOnOtherWallet(t *testing.T) {
	ta := newTestApp(t, nil)
	tok := token(t, "u1", models.RoleCustomer)

	status, _ := ta.do(t, http.MethodPost, "/api/v1/wallet/withdrawals", tok, map[string]interface{}{"userId": "u2", "amount": 100})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ta.do(t, http.MethodGet, "/api/v1/wallet/u2/balance", tok, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ta.do(t, http.MethodPost, "/api/v1/wallet/cashback", tok, map[string]interface{}{"userId": "u1", "amount": 100})
	assert.Equal(t, http.StatusForbidden, status)

	ta.wallet.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything)
	ta.wallet.AssertNotCalled(t, "Cashback", mock.Anything, mock.Anything)
}

func TestOperatorActsOnBehalfOfUser(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.wallet.On("Cashback", mock.Anything, mock.MatchedBy(func(r wallet.CashbackRequest) bool {
		return r.UserID == "u2" && r.ResponsibleID == "op1" && r.Amount == 300
	})).Return(&models.Transaction{TxID: "cb-1", UserID: "u2"}, nil)
	ta.wallet.On("Balance", mock.Anything, "u2").Return(&models.Balances{UserID: "u2", Points: 9800}, nil)

	tok := token(t, "op1", models.RoleFinance)
	status, _ := ta.do(t, http.MethodPost, "/api/v1/wallet/cashback", tok, map[string]interface{}{"userId": "u2", "amount": 300})
	assert.Equal(t, http.StatusCreated, status)

	status, body := ta.do(t, http.MethodGet, "/api/v1/wallet/u2/balance", tok, nil)
	require.Equal(t, http.StatusOK, status)
	display := body["display"].(map[string]interface{})
	assert.Equal(t, "98.00", display["pointsBalance"])
	ta.wallet.AssertExpectations(t)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantReason string
	}{
		{
			name:       "admission denied",
			err:        &apperrors.AdmissionDenied{Reason: apperrors.ErrDailyLimitExceeded},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "ADMISSION_DENIED",
			wantReason: "DAILY_LIMIT_EXCEEDED",
		},
		{
			name:       "insufficient balance",
			err:        fmt.Errorf("%w: need 150, have 100", apperrors.ErrInsufficientBalance),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INSUFFICIENT_BALANCE",
		},
		{
			name:       "user not found",
			err:        apperrors.ErrUserNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "USER_NOT_FOUND",
		},
		{
			name:       "invalid amount",
			err:        apperrors.ErrInvalidAmount,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_AMOUNT",
		},
		{
			name:       "txid conflict",
			err:        apperrors.ErrTxIDConflict,
			wantStatus: http.StatusConflict,
			wantCode:   "TXID_CONFLICT",
		},
		{
			name:       "infrastructure",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, nil)
			ta.wallet.On("MerchantPayment", mock.Anything, mock.Anything).Return(nil, tt.err)

			status, body := ta.do(t, http.MethodPost, "/api/v1/wallet/merchant-payments", token(t, "u1", models.RoleCustomer),
				map[string]interface{}{"amount": 150, "merchantRef": "m-1"})
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body["code"])
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, body["reason"])
			}
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body["error"])
			}
		})
	}
}

func TestTransfer_RequiresReceiver(t *testing.T) {
	ta := newTestApp(t, nil)
	status, _ := ta.do(t, http.MethodPost, "/api/v1/wallet/transfers", token(t, "u1", models.RoleCustomer), map[string]interface{}{"amount": 100})
	assert.Equal(t, http.StatusBadRequest, status)

	ta.wallet.On("Transfer", mock.Anything, mock.MatchedBy(func(r wallet.TransferRequest) bool {
		return r.FromUserID == "u1" && r.ToUserID == "u2"
	})).Return(&wallet.TransferResult{Out: &models.Transaction{TxID: "t1"}, In: &models.Transaction{TxID: "t1:in"}}, nil)
	status, body := ta.do(t, http.MethodPost, "/api/v1/wallet/transfers", token(t, "u1", models.RoleCustomer), map[string]interface{}{"toUserId": "u2", "amount": 100})
	require.Equal(t, http.StatusCreated, status)
	assert.Contains(t, body, "out")
	assert.Contains(t, body, "in")
}

func TestRailEvent(t *testing.T) {
	ta := newTestApp(t, nil)
	partner := token(t, "rail-pix", models.RolePartner)

	ta.txs.On("Transition", mock.Anything, transaction.TransitionRequest{
		TxID:          "ext-1",
		Event:         transaction.EventAdmitSuccess,
		ResponsibleID: "rail-pix",
	}).Return(&models.Transaction{TxID: "ext-1", Status: models.TransactionStatusCompleted}, nil)

	status, body := ta.do(t, http.MethodPost, "/api/v1/transactions/ext-1/events", partner, map[string]interface{}{"event": "admit_success"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "COMPLETED", body["transaction"].(map[string]interface{})["status"])

	status, _ = ta.do(t, http.MethodPost, "/api/v1/transactions/ext-1/events", partner, map[string]interface{}{"event": "refund_request"})
	assert.Equal(t, http.StatusBadRequest, status)

	customer := token(t, "u1", models.RoleCustomer)
	status, _ = ta.do(t, http.MethodPost, "/api/v1/transactions/ext-1/events", customer, map[string]interface{}{"event": "admit_success"})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestRailEvent_InvalidTransition(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.txs.On("Transition", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: rail_failure on COMPLETED transaction ext-1", apperrors.ErrInvalidTransition))

	status, body := ta.do(t, http.MethodPost, "/api/v1/transactions/ext-1/events", token(t, "rail", models.RolePartner),
		map[string]interface{}{"event": "rail_failure"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
}

func TestRefund_WindowClosed(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.txs.On("Transition", mock.Anything, mock.MatchedBy(func(r transaction.TransitionRequest) bool {
		return r.Event == transaction.EventRefundRequest && r.Reason == "customer complaint"
	})).Return(nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidTransition, apperrors.ErrRefundWindowClosed))

	status, body := ta.do(t, http.MethodPost, "/api/v1/transactions/ext-1/refund", token(t, "op1", models.RoleSupport),
		map[string]interface{}{"reason": "customer complaint"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
	assert.Equal(t, "REFUND_WINDOW_CLOSED", body["reason"])
}

func TestCancel_OwnTransactionOnly(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.txs.On("GetTransactionByTxID", mock.Anything, "ext-1").Return(&models.Transaction{TxID: "ext-1", UserID: "u2"}, nil)
	ta.txs.On("GetTransactionByTxID", mock.Anything, "missing").Return(nil, apperrors.ErrTransactionNotFound)

	status, _ := ta.do(t, http.MethodPost, "/api/v1/transactions/ext-1/cancel", token(t, "u1", models.RoleCustomer), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body := ta.do(t, http.MethodPost, "/api/v1/transactions/missing/cancel", token(t, "u1", models.RoleCustomer), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "TRANSACTION_NOT_FOUND", body["code"])

	ta.txs.On("Transition", mock.Anything, mock.MatchedBy(func(r transaction.TransitionRequest) bool {
		return r.TxID == "ext-1" && r.Event == transaction.EventCancel
	})).Return(&models.Transaction{TxID: "ext-1", Status: models.TransactionStatusCancelled}, nil)
	status, _ = ta.do(t, http.MethodPost, "/api/v1/transactions/ext-1/cancel", token(t, "u2", models.RoleCustomer), nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestCancelRefund_MalformedBody(t *testing.T) {
	ta := newTestApp(t, nil)
	tok := token(t, "op1", models.RoleFinance)

	for _, path := range []string{"/api/v1/transactions/ext-1/cancel", "/api/v1/transactions/ext-1/refund"} {
		status, body := ta.do(t, http.MethodPost, path, tok, []byte(`{"reason":`))
		assert.Equal(t, http.StatusBadRequest, status, path)
		assert.Equal(t, "INVALID_REQUEST", body["code"], path)
	}
	ta.txs.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything)

	ta.txs.On("Transition", mock.Anything, mock.MatchedBy(func(r transaction.TransitionRequest) bool {
		return r.Event == transaction.EventRefundRequest && r.Reason == ""
	})).Return(&models.Transaction{TxID: "ext-1", Status: models.TransactionStatusRefunded}, nil)
	status, _ := ta.do(t, http.MethodPost, "/api/v1/transactions/ext-1/refund", tok, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestVerifyLedger(t *testing.T) {
	ta := newTestApp(t, func(_ context.Context, userID string) (*models.Balances, error) {
		if userID == "bad" {
			return nil, fmt.Errorf("%w: points 100 != replay 90", apperrors.ErrLedgerMismatch)
		}
		return &models.Balances{UserID: userID, Points: 90}, nil
	})
	tok := token(t, "op1", models.RoleCompliance)

	status, body := ta.do(t, http.MethodGet, "/api/v1/admin/users/good/ledger/verify", tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["consistent"])

	status, body = ta.do(t, http.MethodGet, "/api/v1/admin/users/bad/ledger/verify", tok, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "LEDGER_MISMATCH", body["code"])

	status, _ = ta.do(t, http.MethodGet, "/api/v1/admin/users/good/ledger/verify", token(t, "u1", models.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestEnqueueSweep(t *testing.T) {
	ta := newTestApp(t, nil)
	admin := token(t, "root", models.RoleAdmin)

	status, body := ta.do(t, http.MethodPost, "/api/v1/admin/sweeps/"+worker.TaskLiquidations, admin, nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "task-1", body["id"])
	assert.Equal(t, []string{worker.TaskLiquidations + "@root"}, ta.sweeps.tasks)

	status, _ = ta.do(t, http.MethodPost, "/api/v1/admin/sweeps/unknown", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ta.do(t, http.MethodPost, "/api/v1/admin/sweeps/"+worker.TaskLiquidations, token(t, "op1", models.RoleFinance), nil)
	assert.Equal(t, http.StatusForbidden, status)
}
