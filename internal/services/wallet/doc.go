/*
Package wallet is the entry point for every balance-affecting operation.

Each call follows the same flow:

	idempotency lookup by TxID
	risk admission (except cashback)
	one repository transaction: create the PENDING transaction, reserve
	    funds for debit types, apply admit_success when the result is known
	cache invalidation
	audit event

Usage:

	svc := wallet.NewService(wallet.Config{
	    Repo:         repo,
	    Ledger:       ledgerSvc,
	    Risk:         evaluator,
	    Transactions: txSvc,
	    Settings:     settingsStore,
	})

	tx, err := svc.Deposit(ctx, wallet.DepositRequest{
	    TxID:   "e2e-123",
	    UserID: userID,
	    Gross:  10000,
	    Spread: 200,
	    Rail:   wallet.RailPix,
	})

Errors are the coded errors of pontos/internal/errors. A denied admission
returns an *errors.AdmissionDenied that matches both ErrAdmissionDenied and
the specific reason.
*/
package wallet
