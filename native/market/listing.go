package market

import (
	"fmt"
	"math/big"
)

// CreateListing escrows quantity asset units in the listing vault and
// persists the listing record. No record is created if the custody move is
// rejected.
func (e *Engine) CreateListing(seller [20]byte, asset [32]byte, price *big.Int, quantity uint64, expiry int64) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: listing price must be positive", ErrValidation)
	}
	if quantity == 0 {
		return nil, fmt.Errorf("%w: listing quantity must be positive", ErrValidation)
	}
	id := ListingID(seller, asset)
	if _, exists := e.state.ListingGet(id); exists {
		return nil, fmt.Errorf("%w: listing already exists", ErrValidation)
	}
	listing := &Listing{
		Seller:    seller,
		Asset:     asset,
		Price:     new(big.Int).Set(price),
		Quantity:  quantity,
		CreatedAt: e.now(),
		Expiry:    expiry,
	}
	err := e.ledger.Atomic(func(ledger CustodyLedger) error {
		units := new(big.Int).SetUint64(quantity)
		if err := ledger.Transfer(AssetHoldingAddress(seller, asset), ListingVaultAddress(seller, asset), units); err != nil {
			return wrapTransfer("listing escrow", err)
		}
		if err := e.chargeReserve(ledger, seller); err != nil {
			return err
		}
		return e.state.ListingPut(listing)
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewListingCreatedEvent(listing))
	return listing.Clone(), nil
}

// CancelListing returns the full remaining quantity from the vault to the
// seller and destroys the record, releasing its reserve back to the seller.
// Only the listing owner may cancel. All-or-nothing: a failed transfer
// aborts the cancellation with the record untouched.
func (e *Engine) CancelListing(caller [20]byte, id [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	listing, ok := e.state.ListingGet(id)
	if !ok {
		return fmt.Errorf("%w: listing %x", ErrNotFound, id)
	}
	if caller != listing.Seller {
		return fmt.Errorf("%w: caller is not the listing seller", ErrUnauthorized)
	}
	err := e.ledger.Atomic(func(ledger CustodyLedger) error {
		if listing.Quantity > 0 {
			units := new(big.Int).SetUint64(listing.Quantity)
			if err := ledger.Transfer(ListingVaultAddress(listing.Seller, listing.Asset), AssetHoldingAddress(listing.Seller, listing.Asset), units); err != nil {
				return wrapTransfer("listing refund", err)
			}
		}
		if err := e.releaseReserve(ledger, listing.Seller); err != nil {
			return err
		}
		return e.state.ListingDelete(id)
	})
	if err != nil {
		return err
	}
	e.emit(NewListingCancelledEvent(listing))
	return nil
}

// ExecuteSale settles one unit of the listing to the buyer at the listed
// price. The buyer's value holding funds the full settlement tuple; exactly
// one asset unit leaves the vault. The listing quantity decrements by one,
// and a listing that reaches zero is destroyed with its reserve released to
// the seller. The call is not idempotent: each invocation consumes a unit,
// so retry protection belongs upstream. The second-highest bid is trusted
// as supplied; nothing here verifies it against outstanding bids.
func (e *Engine) ExecuteSale(buyer [20]byte, id [32]byte, secondHighestBid *big.Int, secondBidder [20]byte) (*SettlementResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	listing, ok := e.state.ListingGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: listing %x", ErrNotFound, id)
	}
	if listing.Quantity == 0 {
		return nil, fmt.Errorf("%w: listing has no remaining quantity", ErrValidation)
	}
	creators, err := e.creators(listing.Asset)
	if err != nil {
		return nil, err
	}
	result, err := ComputeSettlement(listing.Price, secondHighestBid, creators)
	if err != nil {
		return nil, err
	}
	if result.RebateFee.Sign() > 0 && secondBidder == ([20]byte{}) {
		return nil, fmt.Errorf("%w: rebate recipient required", ErrValidation)
	}
	err = e.ledger.Atomic(func(ledger CustodyLedger) error {
		if err := executeTransfers(ledger, buyer, listing.Seller, result, e.feeCollector, secondBidder); err != nil {
			return err
		}
		one := big.NewInt(1)
		if err := ledger.Transfer(ListingVaultAddress(listing.Seller, listing.Asset), AssetHoldingAddress(buyer, listing.Asset), one); err != nil {
			return wrapTransfer("asset delivery", err)
		}
		if listing.Quantity == 1 {
			if err := e.releaseReserve(ledger, listing.Seller); err != nil {
				return err
			}
			return e.state.ListingDelete(id)
		}
		listing.Quantity--
		return e.state.ListingPut(listing)
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewSaleExecutedEvent(listing, buyer))
	return result, nil
}
