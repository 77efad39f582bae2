package market

import (
	"fmt"
	"math/big"
)

// SaleMode selects which of the three competing sale flows governs a work's
// primary market: direct purchase, a time-boxed auction, or negotiated offers.
type SaleMode uint8

const (
	SaleFixedPrice SaleMode = iota
	SaleAuction
	SaleOffer
)

// Valid reports whether the sale mode value is within the supported range.
func (m SaleMode) Valid() bool {
	switch m {
	case SaleFixedPrice, SaleAuction, SaleOffer:
		return true
	default:
		return false
	}
}

func (m SaleMode) String() string {
	switch m {
	case SaleFixedPrice:
		return "fixed-price"
	case SaleAuction:
		return "auction"
	case SaleOffer:
		return "offer"
	default:
		return fmt.Sprintf("sale-mode(%d)", uint8(m))
	}
}

// EditionStatus is the lifecycle state of a single numbered edition.
type EditionStatus uint8

const (
	EditionMinted EditionStatus = iota
	EditionListed
	EditionUnderAuction
	EditionUnderOffer
	EditionSold
	EditionHeld
	EditionBurned
)

// Valid reports whether the status value is within the supported range.
func (s EditionStatus) Valid() bool {
	switch s {
	case EditionMinted, EditionListed, EditionUnderAuction, EditionUnderOffer,
		EditionSold, EditionHeld, EditionBurned:
		return true
	default:
		return false
	}
}

func (s EditionStatus) String() string {
	switch s {
	case EditionMinted:
		return "minted"
	case EditionListed:
		return "listed"
	case EditionUnderAuction:
		return "under-auction"
	case EditionUnderOffer:
		return "under-offer"
	case EditionSold:
		return "sold"
	case EditionHeld:
		return "held"
	case EditionBurned:
		return "burned"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// editionTransitions is the exhaustive transition table for edition statuses.
// The only cycle is Sold -> Held/UnderOffer -> Sold, which implements
// second-hand relisting; everything else is one-way and Burned is terminal.
var editionTransitions = map[EditionStatus][]EditionStatus{
	EditionMinted:       {EditionListed, EditionUnderAuction, EditionUnderOffer, EditionSold},
	EditionListed:       {EditionSold},
	EditionUnderAuction: {EditionSold},
	EditionUnderOffer:   {EditionSold},
	EditionSold:         {EditionHeld, EditionUnderOffer, EditionBurned},
	EditionHeld:         {EditionSold},
	EditionBurned:       {},
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle
// step.
func (s EditionStatus) CanTransitionTo(next EditionStatus) bool {
	for _, allowed := range editionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HolderKind distinguishes an edition owned by an account from one parked in
// marketplace escrow custody.
type HolderKind uint8

const (
	HolderNone HolderKind = iota
	HolderAccount
	HolderCustody
)

// Holder identifies who currently controls an edition. Custody means the
// marketplace escrow holds it on behalf of an in-flight sale; it is a
// dedicated variant rather than an overloaded account address so "held by the
// platform" and "owned by the operator" can never be confused.
type Holder struct {
	Kind HolderKind
	Addr [20]byte
}

// AccountHolder returns a holder value naming an individual account.
func AccountHolder(addr [20]byte) Holder {
	return Holder{Kind: HolderAccount, Addr: addr}
}

// CustodyHolder returns the marketplace-custody holder value.
func CustodyHolder() Holder {
	return Holder{Kind: HolderCustody}
}

// IsCustody reports whether the edition is parked in escrow custody.
func (h Holder) IsCustody() bool { return h.Kind == HolderCustody }

// Is reports whether the holder is the given individual account.
func (h Holder) Is(addr [20]byte) bool {
	return h.Kind == HolderAccount && h.Addr == addr
}

// Work carries the immutable sale terms recorded at mint time.
type Work struct {
	ID                uint64
	Creator           [20]byte
	Collaborator      [20]byte
	CreatorSplit      uint8
	CollaboratorSplit uint8
	EditionCount      uint64
	SaleMode          SaleMode
	SaleWindowHours   uint64
	Price             *big.Int
	FeeBps            uint32
	MetadataURI       string
	MintedAt          int64
}

// Clone returns a deep copy of the work.
func (w *Work) Clone() *Work {
	if w == nil {
		return nil
	}
	clone := *w
	if w.Price != nil {
		clone.Price = new(big.Int).Set(w.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// AuctionDeadline returns the wall-clock instant after which the work's
// auction accepts no further bids. Zero for non-auction works.
func (w *Work) AuctionDeadline() int64 {
	if w == nil || w.SaleMode != SaleAuction {
		return 0
	}
	return w.MintedAt + int64(w.SaleWindowHours)*3600
}

// OrderKind distinguishes the primary mint order from the orders allocated
// for second-hand listings and offer requests. Every listing event consumes
// the next order id, so a single edition accumulates orders over its life.
type OrderKind uint8

const (
	OrderPrimary OrderKind = iota
	OrderSecondHand
	OrderOffer
)

// Valid reports whether the order kind is within the supported range.
func (k OrderKind) Valid() bool {
	switch k {
	case OrderPrimary, OrderSecondHand, OrderOffer:
		return true
	default:
		return false
	}
}

// Order records one listing event. The primary order spans the whole minted
// batch (EditionIndex zero, Remaining counts unsold editions); second-hand
// and offer orders target a single edition.
type Order struct {
	ID           uint64
	Kind         OrderKind
	Owner        [20]byte
	WorkID       uint64
	EditionIndex uint64
	Remaining    uint64
	Price        *big.Int
	CreatedAt    int64
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Price != nil {
		clone.Price = new(big.Int).Set(o.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// Edition is the mutable per-edition record layered over the asset ledger.
type Edition struct {
	WorkID             uint64
	Index              uint64
	Holder             Holder
	Status             EditionStatus
	ListedPrice        *big.Int
	SecondHandEligible bool
	// ActiveOrder is the order currently governing the edition; zero means
	// the primary mint order.
	ActiveOrder uint64
	SoldAt      int64
}

// Clone returns a deep copy of the edition.
func (ed *Edition) Clone() *Edition {
	if ed == nil {
		return nil
	}
	clone := *ed
	if ed.ListedPrice != nil {
		clone.ListedPrice = new(big.Int).Set(ed.ListedPrice)
	}
	return &clone
}

// Bid is the single active bid tracked per edition. A strictly higher
// incoming bid supersedes it; the superseded amount moves to the refund
// ledger and stays claimable by its owner.
type Bid struct {
	WorkID       uint64
	EditionIndex uint64
	Bidder       [20]byte
	Amount       *big.Int
	PlacedAt     int64
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Amount != nil {
		clone.Amount = new(big.Int).Set(b.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// MintParams bundles the caller-supplied terms for a new work.
type MintParams struct {
	EditionCount      uint64
	MetadataURI       string
	Creator           [20]byte
	Collaborator      [20]byte
	CreatorSplit      uint8
	CollaboratorSplit uint8
	SaleMode          SaleMode
	SaleWindowHours   uint64
	Price             *big.Int
	FeeBps            uint32
}
