package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"editionmarket/core/events"
	"editionmarket/core/types"
)

const (
	// EventTypeWorkMinted is emitted when a creator mints a new work.
	EventTypeWorkMinted = "market.work.minted"
	// EventTypeCreatorApproved is emitted when an address joins the
	// approved-creator set.
	EventTypeCreatorApproved = "market.creator.approved"
	// EventTypeEditionSold is emitted on every completed fixed-price sale.
	EventTypeEditionSold = "market.edition.sold"
	// EventTypeEditionListed is emitted when an edition is relisted
	// second-hand.
	EventTypeEditionListed = "market.edition.listed"
	// EventTypeBidPlaced is emitted when a bid becomes the active bid.
	EventTypeBidPlaced = "market.bid.placed"
	// EventTypeBidSuperseded is emitted when a higher bid displaces the
	// active bid and its funds move to the refund ledger.
	EventTypeBidSuperseded = "market.bid.superseded"
	// EventTypeBidRefunded is emitted when a bidder claims funds back.
	EventTypeBidRefunded = "market.bid.refunded"
	// EventTypeAuctionClaimed is emitted when the standing bidder finalises
	// an ended auction.
	EventTypeAuctionClaimed = "market.auction.claimed"
	// EventTypeOfferRequested is emitted when negotiated bidding opens.
	EventTypeOfferRequested = "market.offer.requested"
	// EventTypeOfferAccepted is emitted when the seller settles at the top
	// bid.
	EventTypeOfferAccepted = "market.offer.accepted"
	// EventTypeEditionTransferred is emitted on a peer-to-peer move.
	EventTypeEditionTransferred = "market.edition.transferred"
	// EventTypeEditionBurned is emitted when a holder destroys a unit.
	EventTypeEditionBurned = "market.edition.burned"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// WorkMintedEvent returns the payload announcing a freshly minted work.
func WorkMintedEvent(work *Work, orderID uint64) *types.Event {
	return &types.Event{
		Type: EventTypeWorkMinted,
		Attributes: map[string]string{
			"workId":   formatUint(work.ID),
			"orderId":  formatUint(orderID),
			"creator":  hexAddr(work.Creator),
			"editions": formatUint(work.EditionCount),
			"saleMode": work.SaleMode.String(),
			"price":    bigString(work.Price),
		},
	}
}

// CreatorApprovedEvent returns the payload for an approval grant.
func CreatorApprovedEvent(creator [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeCreatorApproved,
		Attributes: map[string]string{
			"creator": hexAddr(creator),
		},
	}
}

// EditionSoldEvent returns the payload for a completed sale.
func EditionSoldEvent(workID, index uint64, buyer [20]byte, paid *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeEditionSold,
		Attributes: map[string]string{
			"workId":  formatUint(workID),
			"edition": formatUint(index),
			"buyer":   hexAddr(buyer),
			"paid":    bigString(paid),
		},
	}
}

// EditionListedEvent returns the payload for a second-hand relisting.
func EditionListedEvent(workID, index, orderID uint64, price *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeEditionListed,
		Attributes: map[string]string{
			"workId":  formatUint(workID),
			"edition": formatUint(index),
			"orderId": formatUint(orderID),
			"price":   bigString(price),
		},
	}
}

// BidPlacedEvent returns the payload for a newly active bid.
func BidPlacedEvent(workID, index uint64, bidder [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBidPlaced,
		Attributes: map[string]string{
			"workId":  formatUint(workID),
			"edition": formatUint(index),
			"bidder":  hexAddr(bidder),
			"amount":  bigString(amount),
		},
	}
}

// BidSupersededEvent returns the payload for a displaced bid.
func BidSupersededEvent(workID, index uint64, bidder [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBidSuperseded,
		Attributes: map[string]string{
			"workId":  formatUint(workID),
			"edition": formatUint(index),
			"bidder":  hexAddr(bidder),
			"amount":  bigString(amount),
		},
	}
}

// BidRefundedEvent returns the payload for a claimed-back bid.
func BidRefundedEvent(workID, index uint64, bidder [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBidRefunded,
		Attributes: map[string]string{
			"workId":  formatUint(workID),
			"edition": formatUint(index),
			"bidder":  hexAddr(bidder),
			"amount":  bigString(amount),
		},
	}
}

// AuctionClaimedEvent returns the payload for a finalised auction.
func AuctionClaimedEvent(workID, index uint64, winner [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeAuctionClaimed,
		Attributes: map[string]string{
			"workId":  formatUint(workID),
			"edition": formatUint(index),
			"winner":  hexAddr(winner),
			"amount":  bigString(amount),
		},
	}
}

// OfferRequestedEvent returns the payload for opened negotiated bidding.
func OfferRequestedEvent(workID, index, orderID uint64, minPrice *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeOfferRequested,
		Attributes: map[string]string{
			"workId":   formatUint(workID),
			"edition":  formatUint(index),
			"orderId":  formatUint(orderID),
			"minPrice": bigString(minPrice),
		},
	}
}

// OfferAcceptedEvent returns the payload for a seller-settled offer.
func OfferAcceptedEvent(workID, index uint64, buyer [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeOfferAccepted,
		Attributes: map[string]string{
			"workId":  formatUint(workID),
			"edition": formatUint(index),
			"buyer":   hexAddr(buyer),
			"amount":  bigString(amount),
		},
	}
}

// EditionTransferredEvent returns the payload for a peer-to-peer move.
func EditionTransferredEvent(workID, index uint64, from, to [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeEditionTransferred,
		Attributes: map[string]string{
			"workId":  formatUint(workID),
			"edition": formatUint(index),
			"from":    hexAddr(from),
			"to":      hexAddr(to),
		},
	}
}

// EditionBurnedEvent returns the payload for a destroyed unit.
func EditionBurnedEvent(workID, index uint64, holder [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeEditionBurned,
		Attributes: map[string]string{
			"workId":  formatUint(workID),
			"edition": formatUint(index),
			"holder":  hexAddr(holder),
		},
	}
}
