// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInsufficientFunds is returned when an account balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned for non-positive amounts or amounts with
	// more precision than the ledger stores.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTransactionKind is returned when a credit is requested with a
	// kind that does not increase a balance.
	ErrInvalidTransactionKind = errors.New("invalid transaction kind")

	// ErrServiceUnavailable is returned when a dependency such as the queue
	// broker cannot accept work. Any charge for the work has been refunded.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrLedgerMismatch is returned by reconciliation when the stored balance
	// differs from the sum of completed transactions.
	ErrLedgerMismatch = errors.New("ledger balance does not match transaction log")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)
