// Package marketstate persists market records in a key-value database,
// keyed by record identifier under typed prefixes.
package marketstate

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"nftmarket/native/market"
	"nftmarket/storage"
)

var (
	listingPrefix = []byte("market/listing/")
	bidPrefix     = []byte("market/bid/")
)

// Store keeps listings and bids in a key-value store. It satisfies the
// market engine's state requirements. Wire it over the custody ledger's
// StateDB view so record mutations commit atomically with the transfers of
// the same operation.
type Store struct {
	db storage.KV
}

// NewStore constructs a store over the supplied key-value view.
func NewStore(db storage.KV) *Store {
	return &Store{db: db}
}

// RLP lacks signed integers, so timestamps cross the codec as uint64.

type storedListing struct {
	Seller    [20]byte
	Asset     [32]byte
	Price     *big.Int
	Quantity  uint64
	CreatedAt uint64
	Expiry    uint64
}

type storedBid struct {
	Bidder    [20]byte
	Asset     [32]byte
	Price     *big.Int
	CreatedAt uint64
	Expiry    uint64
}

func listingKey(id [32]byte) []byte {
	return append(append([]byte(nil), listingPrefix...), id[:]...)
}

func bidKey(id [32]byte) []byte {
	return append(append([]byte(nil), bidPrefix...), id[:]...)
}

// ListingPut stores a listing under its deterministic identifier.
func (s *Store) ListingPut(l *market.Listing) error {
	if l == nil {
		return fmt.Errorf("marketstate: nil listing")
	}
	record := storedListing{
		Seller:    l.Seller,
		Asset:     l.Asset,
		Price:     l.Price,
		Quantity:  l.Quantity,
		CreatedAt: uint64(l.CreatedAt),
		Expiry:    uint64(l.Expiry),
	}
	encoded, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return fmt.Errorf("marketstate: encode listing: %w", err)
	}
	id := l.ID()
	return s.db.Put(listingKey(id), encoded)
}

// ListingGet loads a listing by identifier. The second return reports
// whether the record exists.
func (s *Store) ListingGet(id [32]byte) (*market.Listing, bool) {
	raw, err := s.db.Get(listingKey(id))
	if err != nil {
		return nil, false
	}
	var record storedListing
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, false
	}
	return &market.Listing{
		Seller:    record.Seller,
		Asset:     record.Asset,
		Price:     record.Price,
		Quantity:  record.Quantity,
		CreatedAt: int64(record.CreatedAt),
		Expiry:    int64(record.Expiry),
	}, true
}

// ListingDelete removes a listing record. Deleting a missing record is not
// an error.
func (s *Store) ListingDelete(id [32]byte) error {
	return s.db.Delete(listingKey(id))
}

// BidPut stores a bid under its deterministic identifier.
func (s *Store) BidPut(b *market.Bid) error {
	if b == nil {
		return fmt.Errorf("marketstate: nil bid")
	}
	record := storedBid{
		Bidder:    b.Bidder,
		Asset:     b.Asset,
		Price:     b.Price,
		CreatedAt: uint64(b.CreatedAt),
		Expiry:    uint64(b.Expiry),
	}
	encoded, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return fmt.Errorf("marketstate: encode bid: %w", err)
	}
	id := b.ID()
	return s.db.Put(bidKey(id), encoded)
}

// BidGet loads a bid by identifier.
func (s *Store) BidGet(id [32]byte) (*market.Bid, bool) {
	raw, err := s.db.Get(bidKey(id))
	if err != nil {
		return nil, false
	}
	var record storedBid
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, false
	}
	return &market.Bid{
		Bidder:    record.Bidder,
		Asset:     record.Asset,
		Price:     record.Price,
		CreatedAt: int64(record.CreatedAt),
		Expiry:    int64(record.Expiry),
	}, true
}

// BidDelete removes a bid record.
func (s *Store) BidDelete(id [32]byte) error {
	return s.db.Delete(bidKey(id))
}
