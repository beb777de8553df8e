package errors

var (
	ErrAdmissionDenied = &DomainError{
		Code:    "ADMISSION_DENIED",
		Message: "admission denied",
	}
	ErrDailyLimitExceeded = &DomainError{
		Code:    "DAILY_LIMIT_EXCEEDED",
		Message: "daily limit exceeded",
	}
	ErrMonthlyLimitExceeded = &DomainError{
		Code:    "MONTHLY_LIMIT_EXCEEDED",
		Message: "monthly limit exceeded",
	}
	ErrPerTransactionLimitExceeded = &DomainError{
		Code:    "PER_TRANSACTION_LIMIT_EXCEEDED",
		Message: "per transaction limit exceeded",
	}
	ErrRiskScoreTooHigh = &DomainError{
		Code:    "RISK_SCORE_TOO_HIGH",
		Message: "risk score too high",
	}
	ErrAccountNotActive = &DomainError{
		Code:    "ACCOUNT_NOT_ACTIVE",
		Message: "account is not active",
	}
)
