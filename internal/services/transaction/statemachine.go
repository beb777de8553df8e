package transaction

import (
	"fmt"
	"time"

	apperrors "pontos/internal/errors"
	"pontos/internal/models"
)

type Event string

const (
	EventAdmitSuccess           Event = "admit_success"
	EventLiquidationDateReached Event = "liquidation_date_reached"
	EventRailFailure            Event = "rail_failure"
	EventCancel                 Event = "user_or_admin_cancel"
	EventRefundRequest          Event = "refund_request"
)

func (e Event) Valid() bool {
	switch e {
	case EventAdmitSuccess, EventLiquidationDateReached, EventRailFailure, EventCancel, EventRefundRequest:
		return true
	}
	return false
}

// Policy carries the settings the transition rules depend on.
type Policy struct {
	RefundWindow time.Duration
}

func invalid(tx *models.Transaction, ev Event) error {
	return fmt.Errorf("%w: %s on %s transaction %s", apperrors.ErrInvalidTransition, ev, tx.Status, tx.TxID)
}

// Next returns the status tx moves to on ev. A result equal to tx.Status
// means the event was already applied and must have no effect.
func Next(tx *models.Transaction, ev Event, now time.Time, p Policy) (models.TransactionStatus, error) {
	from := tx.Status

	switch ev {
	case EventAdmitSuccess:
		switch from {
		case models.TransactionStatusPending:
			if tx.Type.Deposit() && tx.LiquidationDate != nil && tx.LiquidationDate.After(now) {
				return models.TransactionStatusLiquidating, nil
			}
			return models.TransactionStatusCompleted, nil
		case models.TransactionStatusLiquidating, models.TransactionStatusCompleted:
			return from, nil
		}

	case EventLiquidationDateReached:
		switch from {
		case models.TransactionStatusLiquidating:
			if tx.LiquidationDate != nil && now.Before(*tx.LiquidationDate) {
				return "", fmt.Errorf("%w: %s liquidates at %s", apperrors.ErrInvalidTransition,
					tx.TxID, tx.LiquidationDate.UTC().Format(time.RFC3339))
			}
			return models.TransactionStatusCompleted, nil
		case models.TransactionStatusCompleted:
			if tx.LiquidationDate != nil {
				return from, nil
			}
		}

	case EventRailFailure:
		switch from {
		case models.TransactionStatusPending, models.TransactionStatusLiquidating:
			return models.TransactionStatusFailed, nil
		case models.TransactionStatusFailed:
			return from, nil
		}

	case EventCancel:
		switch from {
		case models.TransactionStatusPending:
			return models.TransactionStatusCancelled, nil
		case models.TransactionStatusCancelled:
			return from, nil
		}

	case EventRefundRequest:
		switch from {
		case models.TransactionStatusCompleted:
			completed := tx.CreatedAt
			if tx.CompletedAt != nil {
				completed = *tx.CompletedAt
			}
			if now.Sub(completed) > p.RefundWindow {
				return "", fmt.Errorf("%w: %w: %s completed at %s", apperrors.ErrInvalidTransition,
					apperrors.ErrRefundWindowClosed, tx.TxID, completed.UTC().Format(time.RFC3339))
			}
			return models.TransactionStatusRefunded, nil
		case models.TransactionStatusRefunded:
			return from, nil
		}

	default:
		return "", fmt.Errorf("%w: unknown event %q", apperrors.ErrInvalidRequest, ev)
	}

	return "", invalid(tx, ev)
}
