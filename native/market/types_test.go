package market

import (
	"math/big"
	"testing"
)

func TestEditionStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to EditionStatus }{
		{EditionMinted, EditionSold},
		{EditionMinted, EditionUnderAuction},
		{EditionMinted, EditionUnderOffer},
		{EditionMinted, EditionListed},
		{EditionListed, EditionSold},
		{EditionUnderAuction, EditionSold},
		{EditionUnderOffer, EditionSold},
		{EditionSold, EditionHeld},
		{EditionSold, EditionUnderOffer},
		{EditionSold, EditionBurned},
		{EditionHeld, EditionSold},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%v -> %v should be allowed", tc.from, tc.to)
		}
	}
	forbidden := []struct{ from, to EditionStatus }{
		{EditionMinted, EditionHeld},
		{EditionMinted, EditionBurned},
		{EditionSold, EditionMinted},
		{EditionSold, EditionUnderAuction},
		{EditionHeld, EditionBurned},
		{EditionHeld, EditionMinted},
		{EditionBurned, EditionSold},
		{EditionBurned, EditionMinted},
		{EditionUnderAuction, EditionUnderOffer},
	}
	for _, tc := range forbidden {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%v -> %v should be forbidden", tc.from, tc.to)
		}
	}
}

func TestBurnedIsTerminal(t *testing.T) {
	for status := EditionMinted; status <= EditionBurned; status++ {
		if EditionBurned.CanTransitionTo(status) {
			t.Errorf("burned must not transition to %v", status)
		}
	}
}

func TestHolderIdentity(t *testing.T) {
	owner := addr(0x11)
	other := addr(0x12)
	holder := AccountHolder(owner)
	if !holder.Is(owner) || holder.Is(other) || holder.IsCustody() {
		t.Fatalf("account holder misidentified: %+v", holder)
	}
	custody := CustodyHolder()
	if !custody.IsCustody() || custody.Is(owner) {
		t.Fatalf("custody holder misidentified: %+v", custody)
	}
	var zero Holder
	if zero.Is([20]byte{}) {
		t.Fatalf("zero holder must not match the zero address")
	}
}

func TestAuctionDeadline(t *testing.T) {
	work := &Work{SaleMode: SaleAuction, SaleWindowHours: 24, MintedAt: 1_000}
	if got := work.AuctionDeadline(); got != 1_000+24*3600 {
		t.Fatalf("deadline %d, want %d", got, 1_000+24*3600)
	}
	work.SaleMode = SaleFixedPrice
	if got := work.AuctionDeadline(); got != 0 {
		t.Fatalf("fixed-price deadline %d, want 0", got)
	}
}

func TestWorkCloneIsDeep(t *testing.T) {
	work := &Work{ID: 7, Price: big.NewInt(500)}
	clone := work.Clone()
	clone.Price.SetInt64(999)
	if work.Price.Int64() != 500 {
		t.Fatalf("clone shares price with original")
	}
}

func TestSaleModeValid(t *testing.T) {
	for _, mode := range []SaleMode{SaleFixedPrice, SaleAuction, SaleOffer} {
		if !mode.Valid() {
			t.Errorf("%v should be valid", mode)
		}
	}
	if SaleMode(9).Valid() {
		t.Errorf("out-of-range mode accepted")
	}
}
