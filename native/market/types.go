package market

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Listing is an open fixed-price offer to sell units of an asset. The
// offered units sit in a per-(seller,asset) vault for the listing's entire
// lifetime; Quantity never exceeds the vault holding. Price is immutable
// after creation. A listing is destroyed when its quantity reaches zero or
// on explicit cancellation, so record existence doubles as the "active"
// state.
type Listing struct {
	Seller    [20]byte
	Asset     [32]byte
	Price     *big.Int
	Quantity  uint64
	CreatedAt int64
	Expiry    int64
}

// ID returns the deterministic identifier of the listing.
func (l *Listing) ID() [32]byte {
	return ListingID(l.Seller, l.Asset)
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// Bid is an open offer to buy one unit of an asset at a stated price. The
// bid escrow holds exactly Price value units for the bid's entire lifetime.
type Bid struct {
	Bidder    [20]byte
	Asset     [32]byte
	Price     *big.Int
	CreatedAt int64
	Expiry    int64
}

// ID returns the deterministic identifier of the bid.
func (b *Bid) ID() [32]byte {
	return BidID(b.Bidder, b.Asset)
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Price != nil {
		clone.Price = new(big.Int).Set(b.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeListing validates a listing definition and returns a cloned
// instance with a non-nil price. The original value is not mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: nil listing", ErrValidation)
	}
	clone := l.Clone()
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: listing price must be positive", ErrValidation)
	}
	return clone, nil
}

// SanitizeBid validates a bid definition and returns a cloned instance.
func SanitizeBid(b *Bid) (*Bid, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil bid", ErrValidation)
	}
	clone := b.Clone()
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: bid price must be positive", ErrValidation)
	}
	return clone, nil
}

// Record and holding-account derivation. Identifiers are keccak256 over a
// domain tag plus the composite (owner, asset) key, so every owner has at
// most one listing and one bid per asset and lookups never thread a global
// table through the engine. Holding addresses truncate the same digest to
// 20 bytes.

func ListingID(seller [20]byte, asset [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("market/listing"), seller[:], asset[:])
}

func BidID(bidder [20]byte, asset [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("market/bid"), bidder[:], asset[:])
}

// ListingVaultAddress is the holding account that keeps the escrowed asset
// units of a listing.
func ListingVaultAddress(seller [20]byte, asset [32]byte) [20]byte {
	return truncateAddress(ethcrypto.Keccak256([]byte("market/vault"), seller[:], asset[:]))
}

// BidEscrowAddress is the holding account that keeps the escrowed funds of
// a bid.
func BidEscrowAddress(bidder [20]byte, asset [32]byte) [20]byte {
	return truncateAddress(ethcrypto.Keccak256([]byte("market/escrow"), bidder[:], asset[:]))
}

// AssetHoldingAddress is the holding account for an identity's units of one
// asset.
func AssetHoldingAddress(owner [20]byte, asset [32]byte) [20]byte {
	return truncateAddress(ethcrypto.Keccak256([]byte("market/holding"), owner[:], asset[:]))
}

// ReservePoolAddress is the holding account that keeps record storage
// reserves between creation and destruction.
func ReservePoolAddress() [20]byte {
	return truncateAddress(ethcrypto.Keccak256([]byte("market/reserve")))
}

func truncateAddress(digest []byte) [20]byte {
	var addr [20]byte
	copy(addr[:], digest[len(digest)-20:])
	return addr
}
