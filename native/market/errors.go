package market

import "errors"

// Error taxonomy surfaced by the market engine. Every operation returns one
// of these sentinels (possibly wrapped with context) so callers can match
// with errors.Is. The engine never retries and never commits partially: on
// any error all records and holdings are exactly as they were before the
// call.
var (
	// ErrValidation covers malformed requests: non-positive price or
	// quantity, duplicate records, out-of-range creator shares.
	ErrValidation = errors.New("market: validation failed")
	// ErrUnauthorized is returned when the authenticated caller does not
	// own the record it is trying to mutate.
	ErrUnauthorized = errors.New("market: unauthorized caller")
	// ErrNotFound is returned when the referenced listing or bid does not
	// exist.
	ErrNotFound = errors.New("market: record not found")
	// ErrArithmeticOverflow is returned when a fee or royalty intermediate
	// cannot be represented safely. The engine fails closed rather than
	// wrapping.
	ErrArithmeticOverflow = errors.New("market: arithmetic overflow")
	// ErrCustodyTransfer wraps a failure reported by the custody ledger.
	ErrCustodyTransfer = errors.New("market: custody transfer failed")
)

// Failures reported by custody ledger implementations. The engine wraps
// them in ErrCustodyTransfer before surfacing.
var (
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	ErrAccountNotFound   = errors.New("custody: account not found")
)
