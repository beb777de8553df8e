package errors

var (
	ErrInsufficientBalance = &DomainError{
		Code:    "INSUFFICIENT_BALANCE",
		Message: "insufficient points balance",
	}
	ErrInvalidAmount = &DomainError{
		Code:    "INVALID_AMOUNT",
		Message: "invalid amount",
	}
	ErrOverflow = &DomainError{
		Code:    "OVERFLOW",
		Message: "amount overflow",
	}
	ErrUserNotFound = &DomainError{
		Code:    "USER_NOT_FOUND",
		Message: "user not found",
	}
	ErrInvalidTransfer = &DomainError{
		Code:    "INVALID_TRANSFER",
		Message: "invalid transfer",
	}
	ErrTxIDConflict = &DomainError{
		Code:    "TXID_CONFLICT",
		Message: "txid already used by a different operation",
	}
)

var ErrInvalidRequest = &DomainError{
	Code:    "INVALID_REQUEST",
	Message: "invalid request",
}
