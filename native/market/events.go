package market

import (
	"encoding/hex"
	"strconv"

	"nftmarket/core/types"
)

const (
	EventTypeListingCreated   = "market.listing.created"
	EventTypeListingCancelled = "market.listing.cancelled"
	EventTypeSaleExecuted     = "market.sale.executed"
	EventTypeBidPlaced        = "market.bid.placed"
	EventTypeBidCancelled     = "market.bid.cancelled"
	EventTypeBidAccepted      = "market.bid.accepted"
)

// NewListingCreatedEvent returns the canonical event payload for a newly
// created listing.
func NewListingCreatedEvent(l *Listing) *types.Event {
	attrs := listingAttrs(l)
	if l != nil {
		attrs["price"] = l.Price.String()
		attrs["quantity"] = strconv.FormatUint(l.Quantity, 10)
		attrs["expiry"] = strconv.FormatInt(l.Expiry, 10)
	}
	return &types.Event{Type: EventTypeListingCreated, Attributes: attrs}
}

// NewListingCancelledEvent returns the canonical event payload for a listing
// cancellation.
func NewListingCancelledEvent(l *Listing) *types.Event {
	return &types.Event{Type: EventTypeListingCancelled, Attributes: listingAttrs(l)}
}

// NewSaleExecutedEvent returns the canonical event payload emitted when one
// listed unit settles to a buyer.
func NewSaleExecutedEvent(l *Listing, buyer [20]byte) *types.Event {
	attrs := listingAttrs(l)
	attrs["buyer"] = hex.EncodeToString(buyer[:])
	if l != nil {
		attrs["price"] = l.Price.String()
	}
	return &types.Event{Type: EventTypeSaleExecuted, Attributes: attrs}
}

// NewBidPlacedEvent returns the canonical event payload for a newly placed
// bid.
func NewBidPlacedEvent(b *Bid) *types.Event {
	attrs := bidAttrs(b)
	if b != nil {
		attrs["price"] = b.Price.String()
		attrs["expiry"] = strconv.FormatInt(b.Expiry, 10)
	}
	return &types.Event{Type: EventTypeBidPlaced, Attributes: attrs}
}

// NewBidCancelledEvent returns the canonical event payload for a bid
// cancellation.
func NewBidCancelledEvent(b *Bid) *types.Event {
	return &types.Event{Type: EventTypeBidCancelled, Attributes: bidAttrs(b)}
}

// NewBidAcceptedEvent returns the canonical event payload emitted when a
// bid settles against the accepting seller.
func NewBidAcceptedEvent(b *Bid, seller [20]byte) *types.Event {
	attrs := bidAttrs(b)
	attrs["seller"] = hex.EncodeToString(seller[:])
	if b != nil {
		attrs["price"] = b.Price.String()
	}
	return &types.Event{Type: EventTypeBidAccepted, Attributes: attrs}
}

func listingAttrs(l *Listing) map[string]string {
	attrs := make(map[string]string)
	if l == nil {
		return attrs
	}
	id := l.ID()
	attrs["listingId"] = hex.EncodeToString(id[:])
	attrs["seller"] = hex.EncodeToString(l.Seller[:])
	attrs["asset"] = hex.EncodeToString(l.Asset[:])
	return attrs
}

func bidAttrs(b *Bid) map[string]string {
	attrs := make(map[string]string)
	if b == nil {
		return attrs
	}
	id := b.ID()
	attrs["bidId"] = hex.EncodeToString(id[:])
	attrs["bidder"] = hex.EncodeToString(b.Bidder[:])
	attrs["asset"] = hex.EncodeToString(b.Asset[:])
	return attrs
}
