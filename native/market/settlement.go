package market

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Fee constants, expressed in basis points against a 10000 denominator.
// The platform keeps 2.5% of the royalty-adjusted price; of that fee, 90%
// is the nominal marketplace share and 10% the nominal rebate offered to
// the second-highest outbid party.
const (
	feeDenominator       uint64 = 10_000
	platformFeeBps       uint64 = 250
	marketplaceFeeShare  uint64 = 9_000
	secondBidderFeeShare uint64 = 1_000
)

// CreatorPayment is a single royalty payout owed to a verified creator.
type CreatorPayment struct {
	Address [20]byte
	Amount  *big.Int
}

// SettlementResult is the ephemeral payment tuple computed for one sale or
// bid acceptance. CreatorPayments preserves registry order. The sum of all
// four components always equals the gross price exactly. Results are never
// persisted; each settlement recomputes them.
type SettlementResult struct {
	CreatorPayments []CreatorPayment
	MarketplaceFee  *big.Int
	RebateFee       *big.Int
	SellerPayment   *big.Int
}

// Amounts are 64-bit wide on the wire; every multiply-before-divide step
// widens to 256 bits first and checks the range before narrowing back.
func widen(v *big.Int, what string) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must be non-negative", ErrValidation, what)
	}
	wide, overflow := uint256.FromBig(v)
	if overflow || !wide.IsUint64() {
		return nil, fmt.Errorf("%w: %s exceeds 64 bits", ErrArithmeticOverflow, what)
	}
	return wide, nil
}

func mulDiv(v *uint256.Int, mul, div uint64) (*uint256.Int, error) {
	product := new(uint256.Int)
	if _, overflow := product.MulOverflow(v, uint256.NewInt(mul)); overflow {
		return nil, ErrArithmeticOverflow
	}
	return product.Div(product, uint256.NewInt(div)), nil
}

func narrow(v *uint256.Int) (*big.Int, error) {
	if !v.IsUint64() {
		return nil, ErrArithmeticOverflow
	}
	return new(big.Int).SetUint64(v.Uint64()), nil
}

// ComputeRoyalties derives the per-creator royalty payments for a gross
// price. Creators are visited in registry order; unverified entries are
// skipped. Each fee is floor(price * sharePercent / 100). The returned
// remainder is price minus the sum of all fees.
func ComputeRoyalties(price *big.Int, creators []Creator) ([]CreatorPayment, *big.Int, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	widePrice, err := widen(price, "price")
	if err != nil {
		return nil, nil, err
	}
	remainder := widePrice.Clone()
	payments := make([]CreatorPayment, 0, len(creators))
	for _, creator := range creators {
		if !creator.Verified {
			continue
		}
		if creator.SharePercent > 100 {
			return nil, nil, fmt.Errorf("%w: creator share %d out of range", ErrValidation, creator.SharePercent)
		}
		fee, err := mulDiv(widePrice, uint64(creator.SharePercent), 100)
		if err != nil {
			return nil, nil, err
		}
		if remainder.Cmp(fee) < 0 {
			return nil, nil, fmt.Errorf("%w: creator shares exceed price", ErrArithmeticOverflow)
		}
		remainder.Sub(remainder, fee)
		amount, err := narrow(fee)
		if err != nil {
			return nil, nil, err
		}
		payments = append(payments, CreatorPayment{Address: creator.Address, Amount: amount})
	}
	rest, err := narrow(remainder)
	if err != nil {
		return nil, nil, err
	}
	return payments, rest, nil
}

// ComputePlatformSplit splits the royalty-adjusted remainder between the
// marketplace, the second-highest outbid party, and the seller. The rebate
// is capped at the value the outbid party actually forfeited; any shortfall
// folds back into the marketplace fee, so marketplaceFee + rebateFee always
// equals the total platform fee exactly.
func ComputePlatformSplit(remainder, secondHighestBid *big.Int) (marketplaceFee, rebateFee, sellerPayment *big.Int, err error) {
	wideRemainder, err := widen(remainder, "remainder")
	if err != nil {
		return nil, nil, nil, err
	}
	wideSecond, err := widen(secondHighestBid, "second-highest bid")
	if err != nil {
		return nil, nil, nil, err
	}
	totalFee, err := mulDiv(wideRemainder, platformFeeBps, feeDenominator)
	if err != nil {
		return nil, nil, nil, err
	}
	nominalRebate, err := mulDiv(totalFee, secondBidderFeeShare, feeDenominator)
	if err != nil {
		return nil, nil, nil, err
	}
	rebate := nominalRebate
	if wideSecond.Cmp(nominalRebate) < 0 {
		rebate = wideSecond
	}
	rebateFee, err = narrow(rebate)
	if err != nil {
		return nil, nil, nil, err
	}
	marketplaceFee, err = narrow(new(uint256.Int).Sub(totalFee, rebate))
	if err != nil {
		return nil, nil, nil, err
	}
	sellerPayment, err = narrow(new(uint256.Int).Sub(wideRemainder, totalFee))
	if err != nil {
		return nil, nil, nil, err
	}
	return marketplaceFee, rebateFee, sellerPayment, nil
}

// ComputeSettlement derives the full payment tuple for a gross price. The
// components always sum to the price exactly, with zero leftover and zero
// double-counting.
func ComputeSettlement(price, secondHighestBid *big.Int, creators []Creator) (*SettlementResult, error) {
	payments, remainder, err := ComputeRoyalties(price, creators)
	if err != nil {
		return nil, err
	}
	marketplaceFee, rebateFee, sellerPayment, err := ComputePlatformSplit(remainder, secondHighestBid)
	if err != nil {
		return nil, err
	}
	return &SettlementResult{
		CreatorPayments: payments,
		MarketplaceFee:  marketplaceFee,
		RebateFee:       rebateFee,
		SellerPayment:   sellerPayment,
	}, nil
}

// Total returns the gross amount covered by the settlement.
func (r *SettlementResult) Total() *big.Int {
	total := big.NewInt(0)
	if r == nil {
		return total
	}
	for _, payment := range r.CreatorPayments {
		if payment.Amount != nil {
			total.Add(total, payment.Amount)
		}
	}
	if r.MarketplaceFee != nil {
		total.Add(total, r.MarketplaceFee)
	}
	if r.RebateFee != nil {
		total.Add(total, r.RebateFee)
	}
	if r.SellerPayment != nil {
		total.Add(total, r.SellerPayment)
	}
	return total
}

// executeTransfers issues the settlement payments from a single funding
// source in fixed order: seller, then each creator in list order, then
// marketplace, then rebate recipient. Zero-amount entries are skipped. The
// caller runs this inside the ledger's atomic scope so a single failure
// aborts the whole settlement.
func executeTransfers(ledger CustodyLedger, source, seller [20]byte, result *SettlementResult, feeCollector, secondBidder [20]byte) error {
	if result.SellerPayment.Sign() > 0 {
		if err := ledger.Transfer(source, seller, result.SellerPayment); err != nil {
			return fmt.Errorf("%w: seller payment: %w", ErrCustodyTransfer, err)
		}
	}
	for _, payment := range result.CreatorPayments {
		if payment.Amount.Sign() == 0 {
			continue
		}
		if err := ledger.Transfer(source, payment.Address, payment.Amount); err != nil {
			return fmt.Errorf("%w: creator royalty: %w", ErrCustodyTransfer, err)
		}
	}
	if result.MarketplaceFee.Sign() > 0 {
		if err := ledger.Transfer(source, feeCollector, result.MarketplaceFee); err != nil {
			return fmt.Errorf("%w: marketplace fee: %w", ErrCustodyTransfer, err)
		}
	}
	if result.RebateFee.Sign() > 0 {
		if err := ledger.Transfer(source, secondBidder, result.RebateFee); err != nil {
			return fmt.Errorf("%w: outbid rebate: %w", ErrCustodyTransfer, err)
		}
	}
	return nil
}
