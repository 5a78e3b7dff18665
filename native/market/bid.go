package market

import (
	"fmt"
	"math/big"
)

// PlaceBid escrows the full bid price from the bidder and persists the bid
// record. The escrow holds exactly price units for the bid's entire
// lifetime.
func (e *Engine) PlaceBid(bidder [20]byte, asset [32]byte, price *big.Int, expiry int64) (*Bid, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: bid price must be positive", ErrValidation)
	}
	id := BidID(bidder, asset)
	if _, exists := e.state.BidGet(id); exists {
		return nil, fmt.Errorf("%w: bid already exists", ErrValidation)
	}
	bid := &Bid{
		Bidder:    bidder,
		Asset:     asset,
		Price:     new(big.Int).Set(price),
		CreatedAt: e.now(),
		Expiry:    expiry,
	}
	err := e.ledger.Atomic(func(ledger CustodyLedger) error {
		if err := ledger.Transfer(bidder, BidEscrowAddress(bidder, asset), bid.Price); err != nil {
			return wrapTransfer("bid escrow", err)
		}
		if err := e.chargeReserve(ledger, bidder); err != nil {
			return err
		}
		return e.state.BidPut(bid)
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewBidPlacedEvent(bid))
	return bid.Clone(), nil
}

// CancelBid returns the full escrowed price to the bidder and destroys the
// record, releasing its reserve back to the bidder. Only the bid owner may
// cancel.
func (e *Engine) CancelBid(caller [20]byte, id [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	bid, ok := e.state.BidGet(id)
	if !ok {
		return fmt.Errorf("%w: bid %x", ErrNotFound, id)
	}
	if caller != bid.Bidder {
		return fmt.Errorf("%w: caller is not the bid owner", ErrUnauthorized)
	}
	err := e.ledger.Atomic(func(ledger CustodyLedger) error {
		if err := ledger.Transfer(BidEscrowAddress(bid.Bidder, bid.Asset), bid.Bidder, bid.Price); err != nil {
			return wrapTransfer("bid refund", err)
		}
		if err := e.releaseReserve(ledger, bid.Bidder); err != nil {
			return err
		}
		return e.state.BidDelete(id)
	})
	if err != nil {
		return err
	}
	e.emit(NewBidCancelledEvent(bid))
	return nil
}

// AcceptBid settles the bid at its escrowed price. The bid escrow funds the
// full settlement tuple, one asset unit moves from the seller to the
// bidder, and the record is destroyed. The seller must hold the asset unit;
// the asset transfer fails the whole acceptance otherwise. The destroyed
// record's reserve is released to the seller, matching the party that paid
// for the acceptance to complete.
func (e *Engine) AcceptBid(seller [20]byte, id [32]byte, secondHighestBid *big.Int, secondBidder [20]byte) (*SettlementResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	bid, ok := e.state.BidGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: bid %x", ErrNotFound, id)
	}
	creators, err := e.creators(bid.Asset)
	if err != nil {
		return nil, err
	}
	result, err := ComputeSettlement(bid.Price, secondHighestBid, creators)
	if err != nil {
		return nil, err
	}
	if result.RebateFee.Sign() > 0 && secondBidder == ([20]byte{}) {
		return nil, fmt.Errorf("%w: rebate recipient required", ErrValidation)
	}
	escrow := BidEscrowAddress(bid.Bidder, bid.Asset)
	err = e.ledger.Atomic(func(ledger CustodyLedger) error {
		if err := executeTransfers(ledger, escrow, seller, result, e.feeCollector, secondBidder); err != nil {
			return err
		}
		one := big.NewInt(1)
		if err := ledger.Transfer(AssetHoldingAddress(seller, bid.Asset), AssetHoldingAddress(bid.Bidder, bid.Asset), one); err != nil {
			return wrapTransfer("asset delivery", err)
		}
		if err := e.releaseReserve(ledger, seller); err != nil {
			return err
		}
		return e.state.BidDelete(id)
	})
	if err != nil {
		return nil, err
	}
	e.emit(NewBidAcceptedEvent(bid, seller))
	return result, nil
}
