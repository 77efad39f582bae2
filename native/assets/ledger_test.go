package assets

import (
	"errors"
	"testing"
)

type mockState struct {
	balances  map[[28]byte]uint64
	approvals map[[40]byte]bool
	supplies  map[uint64]uint64
}

func newMockState() *mockState {
	return &mockState{
		balances:  make(map[[28]byte]uint64),
		approvals: make(map[[40]byte]bool),
		supplies:  make(map[uint64]uint64),
	}
}

func balanceKey(owner [20]byte, workID uint64) [28]byte {
	var key [28]byte
	copy(key[:20], owner[:])
	for i := 0; i < 8; i++ {
		key[20+i] = byte(workID >> (8 * i))
	}
	return key
}

func approvalKey(owner, operator [20]byte) [40]byte {
	var key [40]byte
	copy(key[:20], owner[:])
	copy(key[20:], operator[:])
	return key
}

func (m *mockState) AssetBalanceGet(owner [20]byte, workID uint64) (uint64, error) {
	return m.balances[balanceKey(owner, workID)], nil
}

func (m *mockState) AssetBalancePut(owner [20]byte, workID uint64, amount uint64) error {
	key := balanceKey(owner, workID)
	if amount == 0 {
		delete(m.balances, key)
		return nil
	}
	m.balances[key] = amount
	return nil
}

func (m *mockState) AssetApprovalGet(owner, operator [20]byte) (bool, error) {
	return m.approvals[approvalKey(owner, operator)], nil
}

func (m *mockState) AssetApprovalPut(owner, operator [20]byte, approved bool) error {
	key := approvalKey(owner, operator)
	if !approved {
		delete(m.approvals, key)
		return nil
	}
	m.approvals[key] = true
	return nil
}

func (m *mockState) AssetSupplyGet(workID uint64) (uint64, error) {
	return m.supplies[workID], nil
}

func (m *mockState) AssetSupplyPut(workID uint64, amount uint64) error {
	m.supplies[workID] = amount
	return nil
}

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func newTestLedger() (*Ledger, *mockState) {
	state := newMockState()
	ledger := NewLedger()
	ledger.SetState(state)
	return ledger, state
}

func TestMintCreditsBalanceAndSupply(t *testing.T) {
	ledger, _ := newTestLedger()
	vault := addr(0xee)
	if err := ledger.Mint(vault, 1, 20); err != nil {
		t.Fatalf("mint: %v", err)
	}
	balance, err := ledger.BalanceOf(vault, 1)
	if err != nil || balance != 20 {
		t.Fatalf("balance=%d err=%v, want 20", balance, err)
	}
	supply, err := ledger.Supply(1)
	if err != nil || supply != 20 {
		t.Fatalf("supply=%d err=%v, want 20", supply, err)
	}
	if err := ledger.Mint([20]byte{}, 1, 5); !errors.Is(err, errZeroAddress) {
		t.Fatalf("zero address mint: got %v, want %v", err, errZeroAddress)
	}
}

func TestTransferUnitRequiresApproval(t *testing.T) {
	ledger, _ := newTestLedger()
	vault := addr(0xee)
	owner := addr(0x01)
	recipient := addr(0x02)
	if err := ledger.Mint(owner, 1, 2); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.TransferUnit(vault, owner, recipient, 1, 1); !errors.Is(err, errNotApproved) {
		t.Fatalf("unapproved operator: got %v, want %v", err, errNotApproved)
	}
	// Owners move their own units without an approval entry.
	if err := ledger.TransferUnit(owner, owner, recipient, 1, 1); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if err := ledger.SetApprovalForAll(owner, vault, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferUnit(vault, owner, recipient, 1, 1); err != nil {
		t.Fatalf("operator transfer: %v", err)
	}
	balance, _ := ledger.BalanceOf(recipient, 1)
	if balance != 2 {
		t.Fatalf("recipient balance %d, want 2", balance)
	}
	if err := ledger.TransferUnit(vault, owner, recipient, 1, 1); !errors.Is(err, errInsufficientBalance) {
		t.Fatalf("overdraw: got %v, want %v", err, errInsufficientBalance)
	}
}

func TestApprovalRevocation(t *testing.T) {
	ledger, _ := newTestLedger()
	owner := addr(0x01)
	operator := addr(0xee)
	if err := ledger.SetApprovalForAll(owner, operator, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	approved, err := ledger.IsApprovedForAll(owner, operator)
	if err != nil || !approved {
		t.Fatalf("approved=%v err=%v, want true", approved, err)
	}
	if err := ledger.SetApprovalForAll(owner, operator, false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	approved, _ = ledger.IsApprovedForAll(owner, operator)
	if approved {
		t.Fatalf("approval survived revocation")
	}
	// The owner is always their own operator.
	approved, _ = ledger.IsApprovedForAll(owner, owner)
	if !approved {
		t.Fatalf("owner not approved for self")
	}
}

func TestBurnReducesSupply(t *testing.T) {
	ledger, _ := newTestLedger()
	owner := addr(0x01)
	if err := ledger.Mint(owner, 1, 3); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(owner, 1, 2); err != nil {
		t.Fatalf("burn: %v", err)
	}
	balance, _ := ledger.BalanceOf(owner, 1)
	supply, _ := ledger.Supply(1)
	if balance != 1 || supply != 1 {
		t.Fatalf("balance=%d supply=%d, want 1/1", balance, supply)
	}
	if err := ledger.Burn(owner, 1, 2); !errors.Is(err, errInsufficientBalance) {
		t.Fatalf("overburn: got %v, want %v", err, errInsufficientBalance)
	}
}

func TestNilStateRejected(t *testing.T) {
	ledger := NewLedger()
	if err := ledger.Mint(addr(0x01), 1, 1); !errors.Is(err, errNilState) {
		t.Fatalf("got %v, want %v", err, errNilState)
	}
	if _, err := ledger.BalanceOf(addr(0x01), 1); !errors.Is(err, errNilState) {
		t.Fatalf("got %v, want %v", err, errNilState)
	}
}
