package market

import (
	"math/big"

	nativecommon "editionmarket/native/common"
)

// BuyNow executes a fixed-price purchase against the supplied order. Primary
// orders sell unsold editions at the mint price with the creator split;
// second-hand orders sell a single relisted edition at its listed price with
// the full net amount going to the relisting seller.
//
// The paid amount must match the governing price exactly; both overpay and
// underpay are rejected.
func (e *Engine) BuyNow(buyer [20]byte, orderID, index uint64, paid *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return err
	}
	work, err := e.loadWork(order.WorkID)
	if err != nil {
		return err
	}
	switch order.Kind {
	case OrderPrimary:
		if index == 0 || index > work.EditionCount {
			return ErrWrongEdition
		}
		edition, err := e.loadEdition(work.ID, index)
		if err != nil {
			return err
		}
		switch edition.Status {
		case EditionMinted, EditionListed:
		case EditionSold, EditionHeld:
			return ErrAlreadySold
		case EditionBurned:
			return ErrAlreadyBurned
		default:
			return ErrNotSaleMode
		}
		if paid == nil || paid.Cmp(work.Price) != 0 {
			return ErrWrongPrice
		}
		if err := e.debitAccount(buyer, paid); err != nil {
			return err
		}
		fee, creatorShare, collaboratorShare := splitProceeds(paid, work.FeeBps, work.CreatorSplit)
		if err := e.setEditionStatus(edition, EditionSold); err != nil {
			return err
		}
		edition.Holder = AccountHolder(buyer)
		edition.SoldAt = e.now()
		edition.SecondHandEligible = false
		if err := e.state.MarketEditionPut(edition); err != nil {
			return err
		}
		if order.Remaining > 0 {
			order.Remaining--
		}
		if err := e.state.MarketOrderPut(order); err != nil {
			return err
		}
		if err := e.ledger.TransferUnit(e.escrowVault, e.escrowVault, buyer, work.ID, 1); err != nil {
			return err
		}
		if err := e.releaseFunds([]payout{
			{to: e.feeCollector, amount: fee},
			{to: work.Creator, amount: creatorShare},
			{to: work.Collaborator, amount: collaboratorShare},
		}); err != nil {
			return err
		}
		e.emit(EditionSoldEvent(work.ID, index, buyer, paid))
		return nil
	case OrderSecondHand:
		if index != order.EditionIndex {
			return ErrWrongEdition
		}
		edition, err := e.loadEdition(work.ID, index)
		if err != nil {
			return err
		}
		if edition.Status != EditionHeld || edition.ActiveOrder != order.ID {
			return ErrAlreadySold
		}
		if paid == nil || paid.Cmp(order.Price) != 0 {
			return ErrWrongPrice
		}
		if err := e.debitAccount(buyer, paid); err != nil {
			return err
		}
		fee, seller := sellerProceeds(paid, work.FeeBps)
		if err := e.setEditionStatus(edition, EditionSold); err != nil {
			return err
		}
		edition.Holder = AccountHolder(buyer)
		edition.SoldAt = e.now()
		edition.ListedPrice = nil
		edition.ActiveOrder = 0
		if err := e.state.MarketEditionPut(edition); err != nil {
			return err
		}
		order.Remaining = 0
		if err := e.state.MarketOrderPut(order); err != nil {
			return err
		}
		if err := e.ledger.TransferUnit(e.escrowVault, e.escrowVault, buyer, work.ID, 1); err != nil {
			return err
		}
		if err := e.releaseFunds([]payout{
			{to: e.feeCollector, amount: fee},
			{to: order.Owner, amount: seller},
		}); err != nil {
			return err
		}
		e.emit(EditionSoldEvent(work.ID, index, buyer, paid))
		return nil
	default:
		return ErrNotSaleMode
	}
}

// SecondHand opts an owned, previously sold edition back into the market.
// The holder must have approved the escrow operator in the asset ledger
// first, so the later listing can actually move the unit.
func (e *Engine) SecondHand(caller [20]byte, workID, index uint64) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return false, err
	}
	edition, err := e.loadEdition(workID, index)
	if err != nil {
		return false, err
	}
	if edition.Status != EditionSold || !edition.Holder.Is(caller) {
		return false, ErrNotHolder
	}
	approved, err := e.ledger.IsApprovedForAll(caller, e.escrowVault)
	if err != nil {
		return false, err
	}
	if !approved {
		return false, ErrNotApprovedOperator
	}
	edition.SecondHandEligible = true
	if err := e.state.MarketEditionPut(edition); err != nil {
		return false, err
	}
	return true, nil
}

// PutOnSaleBuy relists a second-hand-eligible edition at a new fixed price.
// The unit moves into escrow custody and a fresh order is allocated; a
// subsequent BuyNow against that order behaves like a primary sale except
// the proceeds go to the relisting seller.
func (e *Engine) PutOnSaleBuy(caller [20]byte, workID, index uint64, newPrice *big.Int) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if newPrice == nil || newPrice.Sign() <= 0 {
		return nil, ErrZeroPrice
	}
	edition, err := e.loadEdition(workID, index)
	if err != nil {
		return nil, err
	}
	if edition.Status != EditionSold || !edition.Holder.Is(caller) {
		return nil, ErrNotHolder
	}
	if !edition.SecondHandEligible {
		return nil, ErrNotEligible
	}
	orderID, err := e.state.MarketNextOrderID()
	if err != nil {
		return nil, err
	}
	now := e.now()
	order := &Order{
		ID:           orderID,
		Kind:         OrderSecondHand,
		Owner:        caller,
		WorkID:       workID,
		EditionIndex: index,
		Remaining:    1,
		Price:        cloneBigInt(newPrice),
		CreatedAt:    now,
	}
	if err := e.setEditionStatus(edition, EditionHeld); err != nil {
		return nil, err
	}
	edition.Holder = CustodyHolder()
	edition.ListedPrice = cloneBigInt(newPrice)
	edition.ActiveOrder = orderID
	edition.SecondHandEligible = false
	if err := e.state.MarketOrderPut(order); err != nil {
		return nil, err
	}
	if err := e.state.MarketEditionPut(edition); err != nil {
		return nil, err
	}
	if err := e.ledger.TransferUnit(e.escrowVault, caller, e.escrowVault, workID, 1); err != nil {
		return nil, err
	}
	e.emit(EditionListedEvent(workID, index, orderID, newPrice))
	return order.Clone(), nil
}

// PlaceBid records a bid against an auction or offer order. The first bid on
// an auction edition opens it; later bids must strictly exceed the active
// bid. The superseded bidder's funds become claimable via ClaimBack rather
// than being pushed back, so a failing refund can never block a higher bid.
func (e *Engine) PlaceBid(bidder [20]byte, orderID, index uint64, amount *big.Int) (*Bid, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroPrice
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return nil, err
	}
	work, err := e.loadWork(order.WorkID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	var floor *big.Int
	switch order.Kind {
	case OrderPrimary:
		if work.SaleMode != SaleAuction {
			return nil, ErrNotSaleMode
		}
		if index == 0 || index > work.EditionCount {
			return nil, ErrWrongEdition
		}
		if now > work.AuctionDeadline() {
			return nil, ErrAuctionEnded
		}
		floor = work.Price
	case OrderOffer:
		if index != order.EditionIndex {
			return nil, ErrWrongEdition
		}
		floor = order.Price
	default:
		return nil, ErrNotSaleMode
	}
	edition, err := e.loadEdition(work.ID, index)
	if err != nil {
		return nil, err
	}
	switch order.Kind {
	case OrderPrimary:
		switch edition.Status {
		case EditionMinted, EditionUnderAuction:
		case EditionSold, EditionHeld:
			return nil, ErrAlreadySold
		default:
			return nil, ErrNotSaleMode
		}
	case OrderOffer:
		if edition.Status != EditionUnderOffer || edition.ActiveOrder != order.ID {
			return nil, ErrAlreadySold
		}
	}
	previous, hasPrevious, err := e.state.MarketBidGet(work.ID, index)
	if err != nil {
		return nil, err
	}
	if hasPrevious && previous != nil {
		if amount.Cmp(previous.Amount) <= 0 {
			return nil, ErrBidTooLow
		}
	} else if amount.Cmp(floor) <= 0 {
		return nil, ErrBidTooLow
	}
	if err := e.debitAccount(bidder, amount); err != nil {
		return nil, err
	}
	if hasPrevious && previous != nil {
		pending, err := e.state.MarketRefundGet(work.ID, index, previous.Bidder)
		if err != nil {
			return nil, err
		}
		pending = new(big.Int).Add(cloneBigInt(pending), previous.Amount)
		if err := e.state.MarketRefundPut(work.ID, index, previous.Bidder, pending); err != nil {
			return nil, err
		}
		e.emit(BidSupersededEvent(work.ID, index, previous.Bidder, previous.Amount))
	}
	bid := &Bid{
		WorkID:       work.ID,
		EditionIndex: index,
		Bidder:       bidder,
		Amount:       cloneBigInt(amount),
		PlacedAt:     now,
	}
	if err := e.state.MarketBidPut(bid); err != nil {
		return nil, err
	}
	if edition.Status == EditionMinted {
		if err := e.setEditionStatus(edition, EditionUnderAuction); err != nil {
			return nil, err
		}
		if err := e.state.MarketEditionPut(edition); err != nil {
			return nil, err
		}
	}
	e.emit(BidPlacedEvent(work.ID, index, bidder, amount))
	return bid.Clone(), nil
}

// ClaimAfterAuction settles an ended auction in favour of the standing
// bidder. Deadlines are evaluated lazily against the engine clock; there is
// no background timer, so the winner triggers finalisation themselves.
func (e *Engine) ClaimAfterAuction(caller [20]byte, orderID, index uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return err
	}
	if order.Kind != OrderPrimary {
		return ErrNotSaleMode
	}
	work, err := e.loadWork(order.WorkID)
	if err != nil {
		return err
	}
	if work.SaleMode != SaleAuction {
		return ErrNotSaleMode
	}
	if index == 0 || index > work.EditionCount {
		return ErrWrongEdition
	}
	if e.now() <= work.AuctionDeadline() {
		return ErrAuctionRunning
	}
	bid, ok, err := e.state.MarketBidGet(work.ID, index)
	if err != nil {
		return err
	}
	if !ok || bid == nil {
		return ErrNoActiveBid
	}
	if bid.Bidder != caller {
		return ErrNotBidWinner
	}
	edition, err := e.loadEdition(work.ID, index)
	if err != nil {
		return err
	}
	if edition.Status != EditionUnderAuction {
		return ErrAlreadySold
	}
	fee, creatorShare, collaboratorShare := splitProceeds(bid.Amount, work.FeeBps, work.CreatorSplit)
	if err := e.state.MarketBidDelete(work.ID, index); err != nil {
		return err
	}
	if err := e.setEditionStatus(edition, EditionSold); err != nil {
		return err
	}
	edition.Holder = AccountHolder(caller)
	edition.SoldAt = e.now()
	if err := e.state.MarketEditionPut(edition); err != nil {
		return err
	}
	if order.Remaining > 0 {
		order.Remaining--
	}
	if err := e.state.MarketOrderPut(order); err != nil {
		return err
	}
	if err := e.ledger.TransferUnit(e.escrowVault, e.escrowVault, caller, work.ID, 1); err != nil {
		return err
	}
	if err := e.releaseFunds([]payout{
		{to: e.feeCollector, amount: fee},
		{to: work.Creator, amount: creatorShare},
		{to: work.Collaborator, amount: collaboratorShare},
	}); err != nil {
		return err
	}
	e.emit(AuctionClaimedEvent(work.ID, index, caller, bid.Amount))
	return nil
}

// RequestOffer opens negotiated-sale bidding on an edition with a price
// floor. The current holder relists a sold edition this way; the creator can
// open the primary sale of an offer-mode work. Acceptance is seller-initiated,
// never time-triggered.
func (e *Engine) RequestOffer(caller [20]byte, workID, index uint64, minPrice *big.Int) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if minPrice == nil || minPrice.Sign() <= 0 {
		return nil, ErrZeroPrice
	}
	work, err := e.loadWork(workID)
	if err != nil {
		return nil, err
	}
	if index == 0 || index > work.EditionCount {
		return nil, ErrWrongEdition
	}
	edition, err := e.loadEdition(workID, index)
	if err != nil {
		return nil, err
	}
	switch edition.Status {
	case EditionSold:
		if !edition.Holder.Is(caller) {
			return nil, ErrNotHolder
		}
		approved, err := e.ledger.IsApprovedForAll(caller, e.escrowVault)
		if err != nil {
			return nil, err
		}
		if !approved {
			return nil, ErrNotApprovedOperator
		}
	case EditionMinted:
		if work.SaleMode != SaleOffer {
			return nil, ErrNotSaleMode
		}
		if caller != work.Creator {
			return nil, ErrNotSeller
		}
	default:
		return nil, ErrNotSaleMode
	}
	orderID, err := e.state.MarketNextOrderID()
	if err != nil {
		return nil, err
	}
	order := &Order{
		ID:           orderID,
		Kind:         OrderOffer,
		Owner:        caller,
		WorkID:       workID,
		EditionIndex: index,
		Remaining:    1,
		Price:        cloneBigInt(minPrice),
		CreatedAt:    e.now(),
	}
	if err := e.setEditionStatus(edition, EditionUnderOffer); err != nil {
		return nil, err
	}
	edition.ActiveOrder = orderID
	if err := e.state.MarketOrderPut(order); err != nil {
		return nil, err
	}
	if err := e.state.MarketEditionPut(edition); err != nil {
		return nil, err
	}
	e.emit(OfferRequestedEvent(workID, index, orderID, minPrice))
	return order.Clone(), nil
}

// ClaimBack withdraws the caller's escrowed bid funds: either a superseded
// bid sitting in the refund ledger, or (on offer orders only) the caller's
// own standing bid that the seller has not accepted. Auction standing bids
// are binding and cannot be withdrawn.
func (e *Engine) ClaimBack(caller [20]byte, orderID, index uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return nil, err
	}
	pending, err := e.state.MarketRefundGet(order.WorkID, index, caller)
	if err != nil {
		return nil, err
	}
	if pending != nil && pending.Sign() > 0 {
		amount := cloneBigInt(pending)
		if err := e.state.MarketRefundPut(order.WorkID, index, caller, big.NewInt(0)); err != nil {
			return nil, err
		}
		if err := e.releaseFunds([]payout{{to: caller, amount: amount}}); err != nil {
			return nil, err
		}
		e.emit(BidRefundedEvent(order.WorkID, index, caller, amount))
		return amount, nil
	}
	if order.Kind != OrderOffer {
		return nil, ErrNothingToClaim
	}
	bid, ok, err := e.state.MarketBidGet(order.WorkID, index)
	if err != nil {
		return nil, err
	}
	if !ok || bid == nil || bid.Bidder != caller || bid.EditionIndex != index {
		return nil, ErrNothingToClaim
	}
	amount := cloneBigInt(bid.Amount)
	if err := e.state.MarketBidDelete(order.WorkID, index); err != nil {
		return nil, err
	}
	if err := e.releaseFunds([]payout{{to: caller, amount: amount}}); err != nil {
		return nil, err
	}
	e.emit(BidRefundedEvent(order.WorkID, index, caller, amount))
	return amount, nil
}

// AcceptOffer lets the seller settle the edition at the current top bid,
// regardless of any deadline.
func (e *Engine) AcceptOffer(seller [20]byte, orderID, index uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	order, err := e.loadOrder(orderID)
	if err != nil {
		return err
	}
	if order.Kind != OrderOffer {
		return ErrNotSaleMode
	}
	if order.Owner != seller {
		return ErrNotSeller
	}
	if index != order.EditionIndex {
		return ErrWrongEdition
	}
	work, err := e.loadWork(order.WorkID)
	if err != nil {
		return err
	}
	edition, err := e.loadEdition(work.ID, index)
	if err != nil {
		return err
	}
	if edition.Status != EditionUnderOffer || edition.ActiveOrder != order.ID {
		return ErrAlreadySold
	}
	bid, ok, err := e.state.MarketBidGet(work.ID, index)
	if err != nil {
		return err
	}
	if !ok || bid == nil {
		return ErrNoActiveBid
	}
	// Editions that never sold settle with the mint-time creator split;
	// second-hand offers pay the relisting seller the full net amount.
	primary := edition.SoldAt == 0
	if !primary {
		// The unit stays in the seller's wallet until acceptance, so the
		// settlement transfer must be known to succeed before anything
		// mutates: a seller who revoked the operator approval or drained
		// their unit balance cannot strand the bidder's escrowed funds.
		approved, err := e.ledger.IsApprovedForAll(seller, e.escrowVault)
		if err != nil {
			return err
		}
		if !approved {
			return ErrNotApprovedOperator
		}
		units, err := e.ledger.BalanceOf(seller, work.ID)
		if err != nil {
			return err
		}
		if units == 0 {
			return ErrNotHolder
		}
	}
	var payouts []payout
	if primary {
		fee, creatorShare, collaboratorShare := splitProceeds(bid.Amount, work.FeeBps, work.CreatorSplit)
		payouts = []payout{
			{to: e.feeCollector, amount: fee},
			{to: work.Creator, amount: creatorShare},
			{to: work.Collaborator, amount: collaboratorShare},
		}
	} else {
		fee, proceeds := sellerProceeds(bid.Amount, work.FeeBps)
		payouts = []payout{
			{to: e.feeCollector, amount: fee},
			{to: seller, amount: proceeds},
		}
	}
	buyer := bid.Bidder
	if err := e.state.MarketBidDelete(work.ID, index); err != nil {
		return err
	}
	if err := e.setEditionStatus(edition, EditionSold); err != nil {
		return err
	}
	edition.Holder = AccountHolder(buyer)
	edition.SoldAt = e.now()
	edition.ActiveOrder = 0
	if err := e.state.MarketEditionPut(edition); err != nil {
		return err
	}
	order.Remaining = 0
	if err := e.state.MarketOrderPut(order); err != nil {
		return err
	}
	if primary {
		err = e.ledger.TransferUnit(e.escrowVault, e.escrowVault, buyer, work.ID, 1)
	} else {
		err = e.ledger.TransferUnit(e.escrowVault, seller, buyer, work.ID, 1)
	}
	if err != nil {
		return err
	}
	if err := e.releaseFunds(payouts); err != nil {
		return err
	}
	e.emit(OfferAcceptedEvent(work.ID, index, buyer, bid.Amount))
	return nil
}

// Transfer moves an edition peer-to-peer without touching sale logic or
// funds. The sender must hold the edition and have approved the escrow
// operator in the asset ledger.
func (e *Engine) Transfer(caller, from, to [20]byte, workID, index uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != from {
		return ErrNotHolder
	}
	if to == ([20]byte{}) {
		return errZeroAddress
	}
	edition, err := e.loadEdition(workID, index)
	if err != nil {
		return err
	}
	if edition.Status != EditionSold || !edition.Holder.Is(from) {
		return ErrNotHolder
	}
	approved, err := e.ledger.IsApprovedForAll(from, e.escrowVault)
	if err != nil {
		return err
	}
	if !approved {
		return ErrNotApprovedOperator
	}
	// The sender may have burned sibling editions of the same work down to a
	// zero unit balance; the holder record must not flip if the unit cannot
	// move.
	units, err := e.ledger.BalanceOf(from, workID)
	if err != nil {
		return err
	}
	if units == 0 {
		return ErrNotHolder
	}
	edition.Holder = AccountHolder(to)
	edition.SecondHandEligible = false
	if err := e.state.MarketEditionPut(edition); err != nil {
		return err
	}
	if err := e.ledger.TransferUnit(e.escrowVault, from, to, workID, 1); err != nil {
		return err
	}
	e.emit(EditionTransferredEvent(workID, index, from, to))
	return nil
}

// BurnTokenEdition irreversibly destroys one of the caller's units of the
// work. The logical edition flips to Burned once the caller's unit count for
// the work reaches zero; burning with a zero balance fails.
func (e *Engine) BurnTokenEdition(caller [20]byte, workID, index uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	edition, err := e.loadEdition(workID, index)
	if err != nil {
		return err
	}
	if edition.Status == EditionBurned {
		return ErrAlreadyBurned
	}
	if edition.Status != EditionSold || !edition.Holder.Is(caller) {
		return ErrNotHolder
	}
	if err := e.ledger.Burn(caller, workID, 1); err != nil {
		return err
	}
	balance, err := e.ledger.BalanceOf(caller, workID)
	if err != nil {
		return err
	}
	if balance == 0 {
		if err := e.setEditionStatus(edition, EditionBurned); err != nil {
			return err
		}
		if err := e.state.MarketEditionPut(edition); err != nil {
			return err
		}
	}
	e.emit(EditionBurnedEvent(workID, index, caller))
	return nil
}
