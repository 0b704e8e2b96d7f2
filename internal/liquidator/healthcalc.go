// Package liquidator holds the decision engine: account health
// evaluation, loan and collateral selection, liquidation sizing, and
// the validator/liquidator periodic ticks.
package liquidator

import (
	"fmt"
	"math/big"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/oracle"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/protocol"
)

// Sizing constants. Values are USD at the oracle price scale (1e9).
var (
	// CollateralCeiling caps the strategic collateral slice at $100.
	CollateralCeiling = big.NewInt(100_000_000_000)
	// MinWorthSwapLimit is the eligibility floor for priority-table
	// collateral selection, $100.
	MinWorthSwapLimit = big.NewInt(100_000_000_000)
	// MinCollateralWorth rejects dust-sized liquidations, $1.
	MinCollateralWorth = big.NewInt(1_000_000_000)
)

// Safety factor applied to the min collateral quote.
const (
	safetyNumer = 97
	safetyDenom = 100
)

// Position is one asset leg of an account: its balance in asset units
// and its USD worth at oracle scale.
type Position struct {
	Asset    models.AssetID
	Balance  *big.Int
	Worth    *big.Int
	Priority int
}

// Evaluation is the health picture of one account at a price point.
type Evaluation struct {
	Supplies []Position
	Borrows  []Position

	// BorrowValue and LimitValue are USD at oracle scale; the account
	// is liquidatable when BorrowValue exceeds LimitValue.
	BorrowValue *big.Int
	LimitValue  *big.Int
}

// Liquidatable reports whether the account crossed its threshold.
func (e *Evaluation) Liquidatable() bool {
	return e.BorrowValue.Cmp(e.LimitValue) > 0
}

// PresentValue converts a signed principal to a balance using the
// asset's supply or borrow index.
func PresentValue(principal, sRate, bRate *big.Int) *big.Int {
	out := new(big.Int)
	if principal.Sign() >= 0 {
		out.Mul(principal, sRate)
	} else {
		out.Mul(principal, bRate)
	}
	return out.Quo(out, protocol.FactorScale)
}

// Worth converts a balance to USD at oracle scale.
func Worth(balance, price, scale *big.Int) *big.Int {
	out := new(big.Int).Mul(balance, price)
	return out.Quo(out, scale)
}

// EvaluateAccount computes the health picture of one account against
// the given master state and price snapshot.
func EvaluateAccount(account *models.Account, state *protocol.MasterState, prices *oracle.Snapshot, pool *config.Pool) (*Evaluation, error) {
	eval := &Evaluation{
		BorrowValue: new(big.Int),
		LimitValue:  new(big.Int),
	}

	for _, asset := range pool.Assets() {
		principal := account.Principal(asset.ID)
		if principal.Sign() == 0 {
			continue
		}

		data, err := state.DataFor(asset.ID)
		if err != nil {
			return nil, err
		}
		cfg, err := state.Config(asset.ID)
		if err != nil {
			return nil, err
		}
		price, err := prices.PriceFor(asset.ID)
		if err != nil {
			return nil, err
		}

		balance := PresentValue(principal, data.SRate, data.BRate)

		if principal.Sign() > 0 {
			worth := Worth(balance, price, asset.Scale)
			eval.Supplies = append(eval.Supplies, Position{
				Asset:    asset.ID,
				Balance:  balance,
				Worth:    worth,
				Priority: asset.CollateralPriority,
			})

			limit := new(big.Int).Mul(worth, big.NewInt(int64(cfg.LiquidationThreshold)))
			limit.Quo(limit, big.NewInt(protocol.LBScale))
			eval.LimitValue.Add(eval.LimitValue, limit)
		} else {
			debt := new(big.Int).Neg(balance)
			worth := Worth(debt, price, asset.Scale)
			eval.Borrows = append(eval.Borrows, Position{
				Asset:   asset.ID,
				Balance: debt,
				Worth:   worth,
			})
			eval.BorrowValue.Add(eval.BorrowValue, worth)
		}
	}

	if len(eval.Supplies) == 0 && len(eval.Borrows) == 0 {
		return nil, fmt.Errorf("account %s has no positions", account.ContractAddress)
	}
	return eval, nil
}
