package domain

import "errors"

// Reconciliation errors.
var (
	// ErrInvalidAmount is returned when a raw amount is not an integer string
	// or the decimals exponent is outside [0, 255].
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrMissingOwner is returned when a token balance entry has no owner.
	ErrMissingOwner = errors.New("token balance is missing owner")

	// ErrMissingBalances is returned when a fetched transaction lacks its
	// pre- or post-token-balance collection. It aborts the whole run.
	ErrMissingBalances = errors.New("transaction is missing token balances")
)
