package types

import "math/big"

// Account tracks the native-value balance held by an address. The market
// engine debits buyers and credits sellers through this record; edition
// ownership itself lives in the asset ledger, not here.
type Account struct {
	Balance *big.Int `json:"balance"`
	Nonce   uint64   `json:"nonce"`
}

// NewAccount returns an account with a zeroed, non-nil balance.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	return &clone
}
