package market

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"editionmarket/core/events"
	"editionmarket/core/types"
	nativecommon "editionmarket/native/common"
)

const moduleName = "market"

var (
	errNilState    = errors.New("market engine: state not configured")
	errNilLedger   = errors.New("market engine: asset ledger not configured")
	errNilVault    = errors.New("market engine: escrow vault not configured")
	errNotAdmin    = errors.New("market engine: caller is not the admin")
	errBadStatus   = errors.New("market engine: status transition not allowed")
	errZeroAddress = errors.New("market engine: zero address")

	// Rejected-request taxonomy. Every failure below leaves state untouched.
	ErrOnlyApprovedCreators = errors.New("only approved creators may mint")
	ErrZeroEditions         = errors.New("zero editions")
	ErrInvalidFixedTime     = errors.New("invalid time for fixed-price sale")
	ErrIncorrectTime        = errors.New("incorrect time")
	ErrEditionsExceedCap    = errors.New("editions exceed cap")
	ErrWrongPercentages     = errors.New("wrong percentages")
	ErrZeroPrice            = errors.New("zero price")
	ErrWrongPrice           = errors.New("wrong price")
	ErrWrongEdition         = errors.New("wrong edition")
	ErrAlreadySold          = errors.New("already sold")
	ErrAuctionEnded         = errors.New("auction ended")
	ErrAuctionRunning       = errors.New("auction still running")
	ErrBidTooLow            = errors.New("bid too low")
	ErrNoActiveBid          = errors.New("no active bid")
	ErrNotBidWinner         = errors.New("caller is not the standing bidder")
	ErrNotHolder            = errors.New("caller does not hold the edition")
	ErrNotSeller            = errors.New("caller is not the seller")
	ErrNotSaleMode          = errors.New("operation not available for sale mode")
	ErrNotEligible          = errors.New("edition not second-hand eligible")
	ErrNotApprovedOperator  = errors.New("escrow operator not approved")
	ErrNothingToClaim       = errors.New("nothing to claim")
	ErrOrderNotFound        = errors.New("order not found")
	ErrWorkNotFound         = errors.New("work not found")
	ErrEditionNotFound      = errors.New("edition not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrAlreadyBurned        = errors.New("edition already burned")
	ErrFeeTooHigh           = errors.New("fee exceeds denominator")
)

// defaultAuctionWindows is the assumed allow-list of auction durations in
// hours. Only 24 is confirmed by observed behaviour; 48 and 72 are the
// configured extension and can be overridden via SetAuctionWindows.
var defaultAuctionWindows = []uint64{24, 48, 72}

type engineState interface {
	MarketWorkGet(id uint64) (*Work, bool, error)
	MarketWorkPut(work *Work) error
	MarketOrderGet(id uint64) (*Order, bool, error)
	MarketOrderPut(order *Order) error
	MarketEditionGet(workID, index uint64) (*Edition, bool, error)
	MarketEditionPut(edition *Edition) error
	MarketBidGet(workID, index uint64) (*Bid, bool, error)
	MarketBidPut(bid *Bid) error
	MarketBidDelete(workID, index uint64) error
	MarketRefundGet(workID, index uint64, bidder [20]byte) (*big.Int, error)
	MarketRefundPut(workID, index uint64, bidder [20]byte, amount *big.Int) error
	MarketNextWorkID() (uint64, error)
	MarketNextOrderID() (uint64, error)
	MarketCreatorApproved(addr [20]byte) (bool, error)
	MarketCreatorApprove(addr [20]byte) error
	MarketMaxEditionsGet() (uint64, bool, error)
	MarketMaxEditionsPut(max uint64) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// assetLedger is the slice of the asset ledger the market engine consumes:
// raw unit balances, the transfer primitive and blanket operator approvals.
type assetLedger interface {
	Mint(to [20]byte, workID uint64, amount uint64) error
	BalanceOf(owner [20]byte, workID uint64) (uint64, error)
	TransferUnit(operator, from, to [20]byte, workID uint64, amount uint64) error
	Burn(owner [20]byte, workID uint64, amount uint64) error
	IsApprovedForAll(owner, operator [20]byte) (bool, error)
}

// Engine is the order/edition/bid state machine and settlement authority.
// Every method is a single indivisible transition: all preconditions are
// checked before the first mutation and outgoing value transfers are the
// last effect, so no caller can observe a half-updated state.
type Engine struct {
	mu             sync.Mutex
	state          engineState
	ledger         assetLedger
	emitter        events.Emitter
	nowFn          func() int64
	pauses         nativecommon.PauseView
	admin          [20]byte
	escrowVault    [20]byte
	feeCollector   [20]byte
	auctionWindows []uint64
}

// NewEngine constructs a market engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		auctionWindows: append([]uint64(nil), defaultAuctionWindows...),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the asset ledger collaborator.
func (e *Engine) SetLedger(ledger assetLedger) { e.ledger = ledger }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deadline evaluation.
// Primarily intended for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPauses configures the module pause switches consulted before mutations.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetAdmin configures the address allowed to approve creators and adjust the
// edition cap.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetEscrowVault configures the account that custodies asset units and
// escrowed bid funds. The vault address doubles as the engine's operator
// identity in the asset ledger.
func (e *Engine) SetEscrowVault(addr [20]byte) { e.escrowVault = addr }

// SetFeeCollector configures the address credited with platform fees.
func (e *Engine) SetFeeCollector(addr [20]byte) { e.feeCollector = addr }

// SetAuctionWindows replaces the allow-list of auction durations in hours.
func (e *Engine) SetAuctionWindows(hours []uint64) {
	if len(hours) == 0 {
		e.auctionWindows = append([]uint64(nil), defaultAuctionWindows...)
		return
	}
	e.auctionWindows = append([]uint64(nil), hours...)
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if e.escrowVault == ([20]byte{}) {
		return errNilVault
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return types.NewAccount()
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// debitAccount moves value from the address into the escrow vault. Used to
// take custody of purchase payments and bids before any payout happens.
func (e *Engine) debitAccount(addr [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil
	}
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc = ensureAccount(acc)
	if acc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	acc.Balance = new(big.Int).Sub(acc.Balance, amt)
	if err := e.state.PutAccount(addr[:], acc); err != nil {
		return err
	}
	vault, err := e.state.GetAccount(e.escrowVault[:])
	if err != nil {
		return err
	}
	vault = ensureAccount(vault)
	vault.Balance = new(big.Int).Add(vault.Balance, amt)
	return e.state.PutAccount(e.escrowVault[:], vault)
}

// payout is a deferred value release executed after all bookkeeping commits.
type payout struct {
	to     [20]byte
	amount *big.Int
}

// releaseFunds pays the collected payouts out of the escrow vault. Callers
// invoke it strictly after every status/holder/bid mutation has been stored.
func (e *Engine) releaseFunds(payouts []payout) error {
	vault, err := e.state.GetAccount(e.escrowVault[:])
	if err != nil {
		return err
	}
	vault = ensureAccount(vault)
	for _, p := range payouts {
		amt := cloneBigInt(p.amount)
		if amt.Sign() <= 0 {
			continue
		}
		if vault.Balance.Cmp(amt) < 0 {
			return ErrInsufficientFunds
		}
		vault.Balance = new(big.Int).Sub(vault.Balance, amt)
		acc, err := e.state.GetAccount(p.to[:])
		if err != nil {
			return err
		}
		acc = ensureAccount(acc)
		acc.Balance = new(big.Int).Add(acc.Balance, amt)
		if err := e.state.PutAccount(p.to[:], acc); err != nil {
			return err
		}
	}
	return e.state.PutAccount(e.escrowVault[:], vault)
}

func (e *Engine) loadWork(id uint64) (*Work, error) {
	work, ok, err := e.state.MarketWorkGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || work == nil {
		return nil, ErrWorkNotFound
	}
	return work, nil
}

func (e *Engine) loadOrder(id uint64) (*Order, error) {
	order, ok, err := e.state.MarketOrderGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (e *Engine) loadEdition(workID, index uint64) (*Edition, error) {
	edition, ok, err := e.state.MarketEditionGet(workID, index)
	if err != nil {
		return nil, err
	}
	if !ok || edition == nil {
		return nil, ErrEditionNotFound
	}
	return edition, nil
}

func (e *Engine) setEditionStatus(edition *Edition, next EditionStatus) error {
	if !edition.Status.CanTransitionTo(next) {
		return errBadStatus
	}
	edition.Status = next
	return nil
}

func (e *Engine) windowAllowed(hours uint64) bool {
	for _, allowed := range e.auctionWindows {
		if allowed == hours {
			return true
		}
	}
	return false
}

// ApproveCreators adds the supplied addresses to the approved-creator set.
// The set only ever grows; there is no revocation path.
func (e *Engine) ApproveCreators(caller [20]byte, creators [][20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin || e.admin == ([20]byte{}) {
		return errNotAdmin
	}
	for _, creator := range creators {
		if creator == ([20]byte{}) {
			return errZeroAddress
		}
		if err := e.state.MarketCreatorApprove(creator); err != nil {
			return err
		}
		e.emit(CreatorApprovedEvent(creator))
	}
	return nil
}

// SetMaxEditions adjusts the pre-mint cap on editions per work.
func (e *Engine) SetMaxEditions(caller [20]byte, max uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin || e.admin == ([20]byte{}) {
		return errNotAdmin
	}
	if max == 0 {
		return ErrZeroEditions
	}
	return e.state.MarketMaxEditionsPut(max)
}

// Mint validates a creator's work definition and, on success, allocates the
// work id, records the primary order, initialises every edition and credits
// the freshly issued units to escrow custody.
//
// Validation order is part of the contract: each gate has its own rejection
// reason and the first failing gate wins.
func (e *Engine) Mint(caller [20]byte, params MintParams) (*Work, *Order, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	approved, err := e.state.MarketCreatorApproved(caller)
	if err != nil {
		return nil, nil, err
	}
	if !approved || caller != params.Creator {
		return nil, nil, ErrOnlyApprovedCreators
	}
	if params.EditionCount == 0 {
		return nil, nil, ErrZeroEditions
	}
	if !params.SaleMode.Valid() {
		return nil, nil, ErrNotSaleMode
	}
	if params.SaleMode == SaleFixedPrice && params.SaleWindowHours != 0 {
		return nil, nil, ErrInvalidFixedTime
	}
	if params.SaleMode == SaleAuction && !e.windowAllowed(params.SaleWindowHours) {
		return nil, nil, ErrIncorrectTime
	}
	maxEditions, ok, err := e.state.MarketMaxEditionsGet()
	if err != nil {
		return nil, nil, err
	}
	if ok && params.EditionCount > maxEditions {
		return nil, nil, ErrEditionsExceedCap
	}
	if int(params.CreatorSplit)+int(params.CollaboratorSplit) != splitDenominator {
		return nil, nil, ErrWrongPercentages
	}
	if params.Price == nil || params.Price.Sign() <= 0 {
		return nil, nil, ErrZeroPrice
	}
	if params.FeeBps > maxFeeBps {
		return nil, nil, ErrFeeTooHigh
	}
	workID, err := e.state.MarketNextWorkID()
	if err != nil {
		return nil, nil, err
	}
	now := e.now()
	work := &Work{
		ID:                workID,
		Creator:           params.Creator,
		Collaborator:      params.Collaborator,
		CreatorSplit:      params.CreatorSplit,
		CollaboratorSplit: params.CollaboratorSplit,
		EditionCount:      params.EditionCount,
		SaleMode:          params.SaleMode,
		SaleWindowHours:   params.SaleWindowHours,
		Price:             cloneBigInt(params.Price),
		FeeBps:            params.FeeBps,
		MetadataURI:       params.MetadataURI,
		MintedAt:          now,
	}
	if err := e.state.MarketWorkPut(work); err != nil {
		return nil, nil, err
	}
	orderID, err := e.state.MarketNextOrderID()
	if err != nil {
		return nil, nil, err
	}
	order := &Order{
		ID:        orderID,
		Kind:      OrderPrimary,
		Owner:     params.Creator,
		WorkID:    workID,
		Remaining: params.EditionCount,
		CreatedAt: now,
	}
	if err := e.state.MarketOrderPut(order); err != nil {
		return nil, nil, err
	}
	for index := uint64(1); index <= params.EditionCount; index++ {
		edition := &Edition{
			WorkID: workID,
			Index:  index,
			Holder: AccountHolder(params.Creator),
			Status: EditionMinted,
		}
		if err := e.state.MarketEditionPut(edition); err != nil {
			return nil, nil, err
		}
	}
	if err := e.ledger.Mint(e.escrowVault, workID, params.EditionCount); err != nil {
		return nil, nil, err
	}
	e.emit(WorkMintedEvent(work, order.ID))
	return work.Clone(), order.Clone(), nil
}

// OrderOf returns the order record for the supplied id.
func (e *Engine) OrderOf(orderID uint64) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	order, err := e.loadOrder(orderID)
	if err != nil {
		return nil, err
	}
	return order.Clone(), nil
}

// WorkOf returns the work record for the supplied id.
func (e *Engine) WorkOf(workID uint64) (*Work, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	work, err := e.loadWork(workID)
	if err != nil {
		return nil, err
	}
	return work.Clone(), nil
}

// CurrentHolder returns who controls the edition right now. Reads share the
// engine mutex so a caller never observes a transition mid-flight.
func (e *Engine) CurrentHolder(workID, index uint64) (Holder, error) {
	if e == nil || e.state == nil {
		return Holder{}, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	edition, err := e.loadEdition(workID, index)
	if err != nil {
		return Holder{}, err
	}
	return edition.Holder, nil
}

// EditionStatusOf returns the lifecycle status of the edition.
func (e *Engine) EditionStatusOf(workID, index uint64) (EditionStatus, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	edition, err := e.loadEdition(workID, index)
	if err != nil {
		return 0, err
	}
	return edition.Status, nil
}

// BidOf returns the active bid for the edition, if any.
func (e *Engine) BidOf(workID, index uint64) (*Bid, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	bid, ok, err := e.state.MarketBidGet(workID, index)
	if err != nil {
		return nil, err
	}
	if !ok || bid == nil {
		return nil, ErrNoActiveBid
	}
	return bid.Clone(), nil
}

// PendingRefund returns the bidder's claimable refund for the edition.
func (e *Engine) PendingRefund(workID, index uint64, bidder [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	refund, err := e.state.MarketRefundGet(workID, index, bidder)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(refund), nil
}
