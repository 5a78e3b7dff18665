package market

import "math/big"

// CustodyLedger is the external service that holds and atomically moves
// value or asset units between holding accounts. The engine uses it
// uniformly for both kinds of move; which units an account holds is encoded
// in how its address was derived.
type CustodyLedger interface {
	// Transfer moves amount units from one holding account to another.
	// Implementations report ErrInsufficientFunds or ErrAccountNotFound.
	Transfer(from, to [20]byte, amount *big.Int) error
	// Atomic executes fn against a transactional view of the ledger.
	// Either every transfer issued inside fn commits, or none do; no
	// intermediate state is observable outside the call.
	Atomic(fn func(CustodyLedger) error) error
}

// Creator is one royalty recipient entry supplied by the metadata registry.
// Only verified entries participate in royalty computation.
type Creator struct {
	Address      [20]byte
	SharePercent uint8
	Verified     bool
}

// MetadataRegistry resolves the ordered creator list of an asset. Order is
// preserved into payout order.
type MetadataRegistry interface {
	Creators(asset [32]byte) ([]Creator, error)
}
