package liquidator

import (
	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
)

// Strategy selects which supplied asset to claim as collateral.
type Strategy int

const (
	// SelectByPriority prefers the lowest-ranked eligible asset from
	// the pool priority table, falling back to greatest value when no
	// asset is eligible.
	SelectByPriority Strategy = iota
	// SelectGreatestValue always takes the most valuable collateral.
	SelectGreatestValue
)

// SelectLoan picks the borrow leg to repay: the most valuable one.
func SelectLoan(borrows []Position) (Position, bool) {
	if len(borrows) == 0 {
		return Position{}, false
	}
	best := borrows[0]
	for _, p := range borrows[1:] {
		if p.Worth.Cmp(best.Worth) > 0 {
			best = p
		}
	}
	return best, true
}

// SelectCollateral picks the supply leg to claim under the given
// strategy.
func SelectCollateral(supplies []Position, strategy Strategy) (Position, bool) {
	if len(supplies) == 0 {
		return Position{}, false
	}
	if strategy == SelectByPriority {
		if p, ok := selectByPriority(supplies); ok {
			return p, true
		}
	}
	return selectGreatestValue(supplies), true
}

// selectByPriority returns the lowest-ranked supply worth at least the
// eligibility floor.
func selectByPriority(supplies []Position) (Position, bool) {
	best := Position{Priority: config.NoPriority}
	found := false
	for _, p := range supplies {
		if p.Priority >= config.NoPriority {
			continue
		}
		if p.Worth.Cmp(MinWorthSwapLimit) < 0 {
			continue
		}
		if !found || p.Priority < best.Priority {
			best = p
			found = true
		}
	}
	return best, found
}

func selectGreatestValue(supplies []Position) Position {
	best := supplies[0]
	for _, p := range supplies[1:] {
		if p.Worth.Cmp(best.Worth) > 0 {
			best = p
		}
	}
	return best
}
