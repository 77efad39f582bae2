package assets

import (
	"errors"

	"editionmarket/core/events"
	"editionmarket/core/types"
)

var (
	errNilState            = errors.New("asset ledger: state not configured")
	errInsufficientBalance = errors.New("asset ledger: insufficient balance")
	errNotApproved         = errors.New("asset ledger: operator not approved")
	errZeroAddress         = errors.New("asset ledger: zero address")
	errSupplyOverflow      = errors.New("asset ledger: supply overflow")
)

type engineState interface {
	AssetBalanceGet(owner [20]byte, workID uint64) (uint64, error)
	AssetBalancePut(owner [20]byte, workID uint64, amount uint64) error
	AssetApprovalGet(owner [20]byte, operator [20]byte) (bool, error)
	AssetApprovalPut(owner [20]byte, operator [20]byte, approved bool) error
	AssetSupplyGet(workID uint64) (uint64, error)
	AssetSupplyPut(workID uint64, amount uint64) error
}

// Ledger tracks per-owner, per-work unit balances together with the
// operator approvals required to move them. It is the authoritative record
// of how many editions of a work each address holds; the market engine layers
// edition-level bookkeeping on top of it.
type Ledger struct {
	state   engineState
	emitter events.Emitter
}

// NewLedger constructs an asset ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state engineState) { l.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(WrapEvent(evt))
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}

// Mint credits freshly issued units of a work to the recipient and grows the
// recorded supply. Only the market engine calls this, at work creation time.
func (l *Ledger) Mint(to [20]byte, workID uint64, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if isZeroAddress(to) {
		return errZeroAddress
	}
	if amount == 0 {
		return nil
	}
	balance, err := l.state.AssetBalanceGet(to, workID)
	if err != nil {
		return err
	}
	supply, err := l.state.AssetSupplyGet(workID)
	if err != nil {
		return err
	}
	if supply+amount < supply {
		return errSupplyOverflow
	}
	if err := l.state.AssetBalancePut(to, workID, balance+amount); err != nil {
		return err
	}
	if err := l.state.AssetSupplyPut(workID, supply+amount); err != nil {
		return err
	}
	l.emit(UnitsMintedEvent(to, workID, amount))
	return nil
}

// BalanceOf returns how many units of the work the owner currently holds.
func (l *Ledger) BalanceOf(owner [20]byte, workID uint64) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	return l.state.AssetBalanceGet(owner, workID)
}

// Supply returns the outstanding unit supply for the work.
func (l *Ledger) Supply(workID uint64) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	return l.state.AssetSupplyGet(workID)
}

// TransferUnit moves units between owners. The operator must either be the
// owner or hold a blanket approval granted via SetApprovalForAll.
func (l *Ledger) TransferUnit(operator, from, to [20]byte, workID uint64, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if isZeroAddress(to) {
		return errZeroAddress
	}
	if amount == 0 {
		return nil
	}
	if operator != from {
		approved, err := l.state.AssetApprovalGet(from, operator)
		if err != nil {
			return err
		}
		if !approved {
			return errNotApproved
		}
	}
	balance, err := l.state.AssetBalanceGet(from, workID)
	if err != nil {
		return err
	}
	if balance < amount {
		return errInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBalance, err := l.state.AssetBalanceGet(to, workID)
	if err != nil {
		return err
	}
	if err := l.state.AssetBalancePut(from, workID, balance-amount); err != nil {
		return err
	}
	if err := l.state.AssetBalancePut(to, workID, toBalance+amount); err != nil {
		return err
	}
	l.emit(UnitsTransferredEvent(from, to, workID, amount))
	return nil
}

// Burn permanently removes units from the owner's balance and the supply.
func (l *Ledger) Burn(owner [20]byte, workID uint64, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == 0 {
		return nil
	}
	balance, err := l.state.AssetBalanceGet(owner, workID)
	if err != nil {
		return err
	}
	if balance < amount {
		return errInsufficientBalance
	}
	supply, err := l.state.AssetSupplyGet(workID)
	if err != nil {
		return err
	}
	if err := l.state.AssetBalancePut(owner, workID, balance-amount); err != nil {
		return err
	}
	if supply >= amount {
		if err := l.state.AssetSupplyPut(workID, supply-amount); err != nil {
			return err
		}
	}
	l.emit(UnitsBurnedEvent(owner, workID, amount))
	return nil
}

// SetApprovalForAll grants or revokes the operator's right to move any of the
// owner's units.
func (l *Ledger) SetApprovalForAll(owner, operator [20]byte, approved bool) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if isZeroAddress(operator) {
		return errZeroAddress
	}
	if err := l.state.AssetApprovalPut(owner, operator, approved); err != nil {
		return err
	}
	l.emit(ApprovalEvent(owner, operator, approved))
	return nil
}

// IsApprovedForAll reports whether the operator may move the owner's units.
func (l *Ledger) IsApprovedForAll(owner, operator [20]byte) (bool, error) {
	if l == nil || l.state == nil {
		return false, errNilState
	}
	if owner == operator {
		return true, nil
	}
	return l.state.AssetApprovalGet(owner, operator)
}
