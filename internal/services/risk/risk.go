// Package risk decides whether a user may start a balance-affecting
// operation. It only reads.
package risk

import (
	"context"
	"fmt"
	"time"

	"pontos/internal/config"
	apperrors "pontos/internal/errors"
	"pontos/internal/logger"
	"pontos/internal/models"
	"pontos/internal/money"

	"go.uber.org/zap"
)

// Reader sums a user's transactions for the window checks.
type Reader interface {
	SumGrossAmount(ctx context.Context, filter models.TransactionFilter) (money.Amount, error)
}

// SettingsProvider supplies the limits currently in force.
type SettingsProvider interface {
	Current() config.EngineSettings
}

// Decision is the outcome of an admission check. Reason is nil when admitted.
type Decision struct {
	Admitted bool
	Reason   *apperrors.DomainError
	DaySum   money.Amount
	MonthSum money.Amount
}

// Err returns nil when admitted, otherwise an *errors.AdmissionDenied.
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	return &apperrors.AdmissionDenied{Reason: d.Reason}
}

type options struct {
	skipPerTx bool
}

type Option func(*options)

// SkipPerTransactionLimit disables the per-transaction check. Used for fees.
func SkipPerTransactionLimit() Option {
	return func(o *options) { o.skipPerTx = true }
}

type Evaluator struct {
	settings SettingsProvider
	log      *zap.Logger
}

func NewEvaluator(settings SettingsProvider, log *zap.Logger) *Evaluator {
	if settings == nil {
		panic("settings provider is required")
	}
	return &Evaluator{settings: settings, log: logger.OrNop(log).Named("risk")}
}

// countedTypes are the user initiated types whose amounts fill the windows of
// a direction. Cashback and incoming transfer legs never count.
func countedTypes(d models.Direction) []models.TransactionType {
	if d == models.DirectionIn {
		return []models.TransactionType{
			models.TransactionTypePixDeposit,
			models.TransactionTypeBoletoDeposit,
		}
	}
	return []models.TransactionType{
		models.TransactionTypePixWithdraw,
		models.TransactionTypeMerchantPayment,
		models.TransactionTypeTransfer,
		models.TransactionTypeFee,
	}
}

// effectiveLimit applies the platform default and hard ceiling to a user
// limit. Zero means unlimited.
func effectiveLimit(user, platformDefault, hardCeiling money.Amount) money.Amount {
	limit := user
	if limit <= 0 {
		limit = platformDefault
	}
	if hardCeiling > 0 && (limit <= 0 || limit > hardCeiling) {
		limit = hardCeiling
	}
	return limit
}

func exceeds(total, limit money.Amount) bool {
	return limit > 0 && total > limit
}

// Admit evaluates the checks in order and returns the first failing one:
// daily limit, monthly limit, per transaction limit, risk score, account
// status. Windows are calendar day and month in the user's timezone.
func (e *Evaluator) Admit(ctx context.Context, reader Reader, user *models.User, amount money.Amount, txType models.TransactionType, now time.Time, opts ...Option) (Decision, error) {
	if !amount.IsPositive() {
		return Decision{}, fmt.Errorf("%w: %s must be positive", apperrors.ErrInvalidAmount, amount)
	}
	if !txType.Valid() {
		return Decision{}, fmt.Errorf("%w: unknown transaction type %q", apperrors.ErrInvalidRequest, txType)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	s := e.settings.Current()

	local := now.In(user.Location())
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, local.Location())

	filter := models.TransactionFilter{
		UserID:    user.ID,
		Direction: txType.Direction(),
		Types:     countedTypes(txType.Direction()),
		Statuses:  models.InFlightStatuses,
	}

	filter.CreatedFrom = dayStart
	daySum, err := reader.SumGrossAmount(ctx, filter)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to sum daily window: %w", err)
	}
	filter.CreatedFrom = monthStart
	monthSum, err := reader.SumGrossAmount(ctx, filter)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to sum monthly window: %w", err)
	}

	decision := Decision{DaySum: daySum, MonthSum: monthSum}

	dayTotal, err := daySum.Add(amount)
	if err != nil {
		return Decision{}, err
	}
	monthTotal, err := monthSum.Add(amount)
	if err != nil {
		return Decision{}, err
	}

	switch {
	case exceeds(dayTotal, effectiveLimit(user.DailyLimit, s.DailyLimitDefault, s.HardCeiling)):
		decision.Reason = apperrors.ErrDailyLimitExceeded
	case exceeds(monthTotal, effectiveLimit(user.MonthlyLimit, s.MonthlyLimitDefault, s.HardCeiling)):
		decision.Reason = apperrors.ErrMonthlyLimitExceeded
	case !o.skipPerTx && exceeds(amount, effectiveLimit(user.PerTxLimit, s.PerTxLimitDefault, s.HardCeiling)):
		decision.Reason = apperrors.ErrPerTransactionLimitExceeded
	case user.RiskScore > s.RiskScoreCeiling && user.KYCStatus != models.KYCVerified:
		decision.Reason = apperrors.ErrRiskScoreTooHigh
	case user.Status != models.UserStatusActive:
		decision.Reason = apperrors.ErrAccountNotActive
	default:
		decision.Admitted = true
		return decision, nil
	}

	e.log.Info("admission denied",
		zap.String("user_id", user.ID),
		zap.String("type", string(txType)),
		zap.Int64("amount", amount.Int64()),
		zap.String("reason", decision.Reason.Code))
	return decision, nil
}
