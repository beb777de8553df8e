package wallet

import (
	"context"
	"errors"
	"fmt"

	apperrors "pontos/internal/errors"
	"pontos/internal/models"
	"pontos/internal/repositories"
	"pontos/internal/services/audit"
	"pontos/internal/services/risk"
	"pontos/internal/services/transaction"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Deposit credits gross-spread. PIX deposits complete immediately; boleto
// deposits wait in LIQUIDATING until their liquidation date.
func (s *service) Deposit(ctx context.Context, req DepositRequest) (*models.Transaction, error) {
	var txType models.TransactionType
	switch req.Rail {
	case RailPix:
		txType = models.TransactionTypePixDeposit
	case RailBoleto:
		txType = models.TransactionTypeBoletoDeposit
	default:
		return nil, fmt.Errorf("%w: unsupported deposit rail %q", apperrors.ErrInvalidRequest, req.Rail)
	}
	return s.execute(ctx, operation{
		action:      audit.ActionDeposit,
		txType:      txType,
		txid:        req.TxID,
		responsible: req.ResponsibleID,
		userID:      req.UserID,
		gross:       req.Gross,
		spread:      req.Spread,
		admit:       true,
		settle:      true,
	})
}

// Withdraw reserves the amount and leaves the transaction PENDING until the
// PIX rail reports success or failure.
func (s *service) Withdraw(ctx context.Context, req WithdrawRequest) (*models.Transaction, error) {
	return s.execute(ctx, operation{
		action:      audit.ActionWithdraw,
		txType:      models.TransactionTypePixWithdraw,
		txid:        req.TxID,
		responsible: req.ResponsibleID,
		userID:      req.UserID,
		gross:       req.Amount,
		admit:       true,
	})
}

// MerchantPayment behaves like Withdraw.
func (s *service) MerchantPayment(ctx context.Context, req MerchantPaymentRequest) (*models.Transaction, error) {
	return s.execute(ctx, operation{
		action:      audit.ActionMerchantPayment,
		txType:      models.TransactionTypeMerchantPayment,
		txid:        req.TxID,
		responsible: req.ResponsibleID,
		userID:      req.UserID,
		gross:       req.Amount,
		merchantRef: req.MerchantRef,
		admit:       true,
	})
}

// Cashback credits the user without admission.
func (s *service) Cashback(ctx context.Context, req CashbackRequest) (*models.Transaction, error) {
	return s.execute(ctx, operation{
		action:      audit.ActionCashback,
		txType:      models.TransactionTypeCashback,
		txid:        req.TxID,
		responsible: req.ResponsibleID,
		userID:      req.UserID,
		gross:       req.Amount,
		settle:      true,
	})
}

// Fee is admitted without the per-transaction limit and settles at once.
func (s *service) Fee(ctx context.Context, req FeeRequest) (*models.Transaction, error) {
	return s.execute(ctx, operation{
		action:      audit.ActionFee,
		txType:      models.TransactionTypeFee,
		txid:        req.TxID,
		responsible: req.ResponsibleID,
		userID:      req.UserID,
		gross:       req.Amount,
		admit:       true,
		riskOpts:    []risk.Option{risk.SkipPerTransactionLimit()},
		settle:      true,
	})
}

// InLegSuffix is appended to a transfer's TxID to form its IN leg's TxID.
const InLegSuffix = ":in"

// Transfer moves points between two users. Both legs are written and
// completed in one repository transaction.
func (s *service) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	op := operation{
		action:      audit.ActionTransfer,
		txType:      models.TransactionTypeTransfer,
		txid:        req.TxID,
		responsible: req.ResponsibleID,
		userID:      req.FromUserID,
		gross:       req.Amount,
	}
	start := s.now()
	defer func() { s.metrics.RecordOperationDuration(op.action, s.now().Sub(start)) }()

	if err := op.normalize(); err != nil {
		return nil, err
	}
	if req.ToUserID == "" || req.ToUserID == req.FromUserID {
		return nil, fmt.Errorf("%w: sender and receiver must be distinct users", apperrors.ErrInvalidTransfer)
	}

	if res, err := s.lookupTransfer(ctx, op, req.ToUserID); res != nil || err != nil {
		return res, err
	}

	var res *TransferResult
	var denied bool
	err := s.repo.ExecuteInTransaction(ctx, func(repo repositories.Repository) error {
		now := s.now()
		sender, err := repo.GetUser(ctx, req.FromUserID)
		if err != nil {
			return err
		}
		receiver, err := repo.GetUser(ctx, req.ToUserID)
		if err != nil {
			return err
		}
		if receiver.Status == models.UserStatusBlocked || receiver.Status == models.UserStatusTerminated {
			return fmt.Errorf("%w: receiver %s is %s", apperrors.ErrInvalidTransfer, receiver.ID, receiver.Status)
		}

		decision, err := s.risk.Admit(ctx, repo, sender, op.gross, op.txType, now)
		if err != nil {
			return err
		}
		if !decision.Admitted {
			denied = true
			return decision.Err()
		}

		out, err := s.newTransaction(op, now)
		if err != nil {
			return err
		}
		in := *out
		in.ID = uuid.NewString()
		in.TxID = op.txid + InLegSuffix
		in.UserID = receiver.ID
		in.Direction = models.DirectionIn
		in.Amount = op.gross
		in.CounterpartID = out.ID
		out.CounterpartID = in.ID

		if out.ReservationID, err = s.ledger.Reserve(ctx, repo, sender.ID, out.ID, op.gross); err != nil {
			return err
		}
		for _, leg := range []*models.Transaction{out, &in} {
			if err := repo.CreateTransaction(ctx, leg); err != nil {
				return err
			}
			if _, err := s.transactions.Apply(ctx, repo, leg, transaction.EventAdmitSuccess, now, ""); err != nil {
				return err
			}
		}
		res = &TransferResult{Out: out, In: &in}
		return nil
	})

	if errors.Is(err, repositories.ErrDuplicateTxID) {
		if res, lookupErr := s.lookupTransfer(ctx, op, req.ToUserID); res != nil || lookupErr != nil {
			return res, lookupErr
		}
	}
	if err != nil {
		result := ResultFailed
		if denied {
			result = ResultDenied
		}
		s.finish(ctx, op, nil, result, err)
		return nil, err
	}

	s.invalidate(ctx, req.FromUserID, req.ToUserID)
	s.finish(ctx, op, res.Out, ResultAdmitted, nil)
	s.log.Info("transfer completed",
		zap.String("txid", op.txid),
		zap.String("from", req.FromUserID),
		zap.String("to", req.ToUserID),
		zap.Int64("amount", op.gross.Int64()))
	return res, nil
}

func (s *service) lookupTransfer(ctx context.Context, op operation, toUserID string) (*TransferResult, error) {
	existing, err := s.lookup(ctx, op.txid)
	if err != nil || existing == nil {
		return nil, err
	}
	out, err := s.replay(op, existing)
	if err != nil {
		return nil, err
	}
	if out.Direction != models.DirectionOut || out.CounterpartID == "" {
		return nil, fmt.Errorf("%w: %s is not the outgoing leg of a transfer", apperrors.ErrTxIDConflict, op.txid)
	}
	in, err := s.repo.GetTransaction(ctx, out.CounterpartID)
	if err != nil {
		return nil, err
	}
	if in.UserID != toUserID {
		return nil, fmt.Errorf("%w: %s was sent to user %s", apperrors.ErrTxIDConflict, op.txid, in.UserID)
	}
	return &TransferResult{Out: out, In: in}, nil
}
