package models

import (
	"math/big"
	"time"
)

// Account is one protocol borrower tracked by the indexer. Principals
// are signed per-asset principal balances: positive for supply,
// negative for borrow.
type Account struct {
	WalletAddress   string
	ContractAddress string
	CodeVersion     int32
	SubAccountID    int32
	State           string

	Principals map[AssetID]*big.Int

	CreatedAt    time.Time
	UpdatedAt    time.Time
	ActualizedAt int64
}

// Account states.
const (
	AccountStateActive = "active"
	AccountStateFrozen = "frozen"
)

// Principal returns the account's principal for the asset, zero when
// the asset was never touched.
func (a *Account) Principal(asset AssetID) *big.Int {
	if p, ok := a.Principals[asset]; ok && p != nil {
		return p
	}
	return big.NewInt(0)
}

// SetPrincipal records the asset principal, allocating the map lazily.
func (a *Account) SetPrincipal(asset AssetID, v *big.Int) {
	if a.Principals == nil {
		a.Principals = make(map[AssetID]*big.Int)
	}
	a.Principals[asset] = v
}
