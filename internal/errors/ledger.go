package errors

var (
	ErrInvalidTransition = &DomainError{
		Code:    "INVALID_TRANSITION",
		Message: "invalid transaction transition",
	}
	ErrTransactionNotFound = &DomainError{
		Code:    "TRANSACTION_NOT_FOUND",
		Message: "transaction not found",
	}
	ErrReservationNotFound = &DomainError{
		Code:    "RESERVATION_NOT_FOUND",
		Message: "reservation not found",
	}
	ErrReservationSettled = &DomainError{
		Code:    "RESERVATION_SETTLED",
		Message: "reservation already settled",
	}
	ErrLedgerMismatch = &DomainError{
		Code:    "LEDGER_MISMATCH",
		Message: "materialized balance does not match ledger",
	}
)

// ErrRefundWindowClosed is always returned wrapped together with ErrInvalidTransition.
var ErrRefundWindowClosed = &DomainError{
	Code:    "REFUND_WINDOW_CLOSED",
	Message: "refund window closed",
}
