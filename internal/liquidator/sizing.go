package liquidator

import (
	"math/big"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/protocol"
)

// Quote is a sized liquidation: how much loan asset to repay and the
// least collateral reward to accept.
type Quote struct {
	LiquidationAmount   *big.Int
	MinCollateralAmount *big.Int
	// RewardWorth is the claimed collateral's USD value, used for the
	// dust-rejection floor and the swap decision.
	RewardWorth *big.Int
}

// SizeLiquidation sizes a liquidation of the selected loan and
// collateral legs.
//
// The repaid amount claims the larger of half the collateral and the
// strategic ceiling slice, never more than the whole debt. The min
// collateral quote prices that amount through the liquidation bonus,
// takes a 97/100 safety margin and backs off by the collateral's dust
// so a rounding loss cannot void the whole message.
func SizeLiquidation(
	loan, collateral Position,
	loanAsset, collateralAsset *config.Asset,
	loanPrice, collateralPrice *big.Int,
	loanCfg, collateralCfg *protocol.AssetConfig,
	loanData, collateralData *protocol.AssetData,
) *Quote {
	bonus := big.NewInt(int64(collateralCfg.LiquidationBonus))
	lbScale := big.NewInt(protocol.LBScale)

	// Collateral slice to go after, USD.
	slice := new(big.Int).Set(collateral.Worth)
	if slice.Cmp(CollateralCeiling) > 0 {
		slice.Set(CollateralCeiling)
	}
	half := new(big.Int).Quo(collateral.Worth, big.NewInt(2))
	if half.Cmp(slice) > 0 {
		slice.Set(half)
	}

	// Loan units buying that slice through the bonus.
	amount := new(big.Int).Mul(slice, loanAsset.Scale)
	amount.Mul(amount, lbScale)
	amount.Quo(amount, bonus)
	amount.Quo(amount, loanPrice)

	// Never repay more than the whole debt.
	debtCap := new(big.Int).Mul(loan.Worth, loanAsset.Scale)
	debtCap.Quo(debtCap, loanPrice)
	if amount.Cmp(debtCap) > 0 {
		amount.Set(debtCap)
	}

	// Pad by the loan asset's dust so the leftover principal cannot
	// fall under the master's dust check.
	amount.Add(amount, PresentValue(loanCfg.Dust, loanData.SRate, loanData.BRate))

	quote := quoteMinCollateral(amount, loanAsset, collateralAsset, loanPrice, collateralPrice, bonus)

	// Safety margin, then back off by the collateral dust.
	quote.Mul(quote, big.NewInt(safetyNumer))
	quote.Quo(quote, big.NewInt(safetyDenom))
	quote.Sub(quote, PresentValue(collateralCfg.Dust, collateralData.SRate, collateralData.BRate))
	if quote.Sign() < 0 {
		quote.SetInt64(0)
	}

	return &Quote{
		LiquidationAmount:   amount,
		MinCollateralAmount: quote,
		RewardWorth:         Worth(quote, collateralPrice, collateralAsset.Scale),
	}
}

// quoteMinCollateral prices a loan amount into collateral units
// through the liquidation bonus.
func quoteMinCollateral(amount *big.Int, loanAsset, collateralAsset *config.Asset, loanPrice, collateralPrice, bonus *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, loanPrice)
	out.Mul(out, bonus)
	out.Quo(out, big.NewInt(protocol.LBScale))
	out.Mul(out, collateralAsset.Scale)
	out.Quo(out, collateralPrice)
	out.Quo(out, loanAsset.Scale)
	return out
}

// RequoteMinCollateral rescales the min collateral quote after the
// liquidation amount was clamped to the wallet balance, keeping the
// quote proportional to the repaid amount.
func RequoteMinCollateral(originalAmount, clampedAmount, originalMin *big.Int) *big.Int {
	if originalAmount.Sign() == 0 || clampedAmount.Cmp(originalAmount) >= 0 {
		return new(big.Int).Set(originalMin)
	}
	out := new(big.Int).Mul(originalMin, clampedAmount)
	return out.Quo(out, originalAmount)
}
