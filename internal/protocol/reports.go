package protocol

import (
	"fmt"
	"math/big"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

// SatisfiedReport is a settled liquidation as reported by the master.
type SatisfiedReport struct {
	QueryID          uint64
	User             ton.Address
	Liquidator       ton.Address
	TransferredAsset models.AssetID

	DeltaLoanPrincipal       *big.Int
	LiquidatableAmount       *big.Int
	ProtocolGift             *big.Int
	NewLoanPrincipal         *big.Int
	CollateralAsset          models.AssetID
	DeltaCollateralPrincipal *big.Int
	CollateralRewardAmount   *big.Int
}

// ParseSatisfiedReport reads a liquidate-satisfied settlement body.
func ParseSatisfiedReport(body *boc.Cell) (*SatisfiedReport, error) {
	s := body.BeginParse()

	op, err := s.LoadUint(32)
	if err != nil {
		return nil, fmt.Errorf("satisfied report op: %w", err)
	}
	if uint32(op) != OpLiquidateSatisfied {
		return nil, fmt.Errorf("unexpected op 0x%x for satisfied report", op)
	}

	r := &SatisfiedReport{}
	if r.QueryID, err = s.LoadUint(64); err != nil {
		return nil, fmt.Errorf("satisfied report query id: %w", err)
	}
	if r.User, err = ton.LoadAddr(s); err != nil {
		return nil, fmt.Errorf("satisfied report user: %w", err)
	}
	if r.Liquidator, err = ton.LoadAddr(s); err != nil {
		return nil, fmt.Errorf("satisfied report liquidator: %w", err)
	}
	assetID, err := s.LoadBigUint(256)
	if err != nil {
		return nil, fmt.Errorf("satisfied report asset: %w", err)
	}
	r.TransferredAsset = models.AssetIDFromBig(assetID)

	if s.RefsLeft() < 1 {
		return nil, fmt.Errorf("satisfied report missing body ref")
	}
	rep := s.LoadRef().BeginParse()

	// Report header: protocol version, an optional forward payload
	// and a 2-bit padding before the nested report tag.
	if _, err := rep.LoadCoins(); err != nil {
		return nil, fmt.Errorf("satisfied report version: %w", err)
	}
	if _, err := rep.LoadMaybeRef(); err != nil {
		return nil, fmt.Errorf("satisfied report payload flag: %w", err)
	}
	if _, err := rep.LoadInt(2); err != nil {
		return nil, fmt.Errorf("satisfied report padding: %w", err)
	}
	tag, err := rep.LoadUint(32)
	if err != nil {
		return nil, fmt.Errorf("satisfied report tag: %w", err)
	}
	if uint32(tag) != OpLiquidateSatisfiedReport {
		return nil, fmt.Errorf("unexpected nested report tag 0x%x", tag)
	}
	if _, err := rep.LoadUint(64); err != nil {
		return nil, fmt.Errorf("satisfied report nested query id: %w", err)
	}

	if rep.RefsLeft() < 1 {
		return nil, fmt.Errorf("satisfied report missing detail ref")
	}
	detail := rep.LoadRef().BeginParse()

	if r.DeltaLoanPrincipal, err = detail.LoadBigUint(64); err != nil {
		return nil, fmt.Errorf("satisfied report delta loan: %w", err)
	}
	if r.LiquidatableAmount, err = detail.LoadBigUint(64); err != nil {
		return nil, fmt.Errorf("satisfied report liquidatable amount: %w", err)
	}
	if r.ProtocolGift, err = detail.LoadBigUint(64); err != nil {
		return nil, fmt.Errorf("satisfied report protocol gift: %w", err)
	}
	if r.NewLoanPrincipal, err = detail.LoadBigUint(64); err != nil {
		return nil, fmt.Errorf("satisfied report new loan principal: %w", err)
	}
	collateral, err := detail.LoadBigUint(256)
	if err != nil {
		return nil, fmt.Errorf("satisfied report collateral asset: %w", err)
	}
	r.CollateralAsset = models.AssetIDFromBig(collateral)
	if r.DeltaCollateralPrincipal, err = detail.LoadBigUint(64); err != nil {
		return nil, fmt.Errorf("satisfied report delta collateral: %w", err)
	}
	if r.CollateralRewardAmount, err = detail.LoadBigUint(64); err != nil {
		return nil, fmt.Errorf("satisfied report collateral reward: %w", err)
	}

	return r, nil
}

// UnsatisfiedReport is a rejected liquidation as reported by the
// master. Detail is the code-specific quantity (max allowed, present
// collateral, available liquidity) when the code carries one.
type UnsatisfiedReport struct {
	QueryID          uint64
	User             ton.Address
	Liquidator       ton.Address
	TransferredAsset models.AssetID

	TransferredAmount   *big.Int
	CollateralAsset     models.AssetID
	MinCollateralAmount *big.Int
	ErrorCode           uint32
	Detail              *big.Int
}

// ParseUnsatisfiedReport reads a liquidate-unsatisfied settlement body.
func ParseUnsatisfiedReport(body *boc.Cell) (*UnsatisfiedReport, error) {
	s := body.BeginParse()

	op, err := s.LoadUint(32)
	if err != nil {
		return nil, fmt.Errorf("unsatisfied report op: %w", err)
	}
	if uint32(op) != OpLiquidateUnsatisfied {
		return nil, fmt.Errorf("unexpected op 0x%x for unsatisfied report", op)
	}

	r := &UnsatisfiedReport{}
	if r.QueryID, err = s.LoadUint(64); err != nil {
		return nil, fmt.Errorf("unsatisfied report query id: %w", err)
	}
	if r.User, err = ton.LoadAddr(s); err != nil {
		return nil, fmt.Errorf("unsatisfied report user: %w", err)
	}
	if r.Liquidator, err = ton.LoadAddr(s); err != nil {
		return nil, fmt.Errorf("unsatisfied report liquidator: %w", err)
	}
	assetID, err := s.LoadBigUint(256)
	if err != nil {
		return nil, fmt.Errorf("unsatisfied report asset: %w", err)
	}
	r.TransferredAsset = models.AssetIDFromBig(assetID)

	if s.RefsLeft() < 1 {
		return nil, fmt.Errorf("unsatisfied report missing detail ref")
	}
	detail := s.LoadRef().BeginParse()

	if r.TransferredAmount, err = detail.LoadBigUint(64); err != nil {
		return nil, fmt.Errorf("unsatisfied report transferred amount: %w", err)
	}
	collateral, err := detail.LoadBigUint(256)
	if err != nil {
		return nil, fmt.Errorf("unsatisfied report collateral asset: %w", err)
	}
	r.CollateralAsset = models.AssetIDFromBig(collateral)
	if r.MinCollateralAmount, err = detail.LoadBigUint(64); err != nil {
		return nil, fmt.Errorf("unsatisfied report min collateral: %w", err)
	}
	if _, err := detail.LoadMaybeRef(); err != nil {
		return nil, fmt.Errorf("unsatisfied report payload flag: %w", err)
	}

	code, err := detail.LoadUint(32)
	if err != nil {
		return nil, fmt.Errorf("unsatisfied report error code: %w", err)
	}
	r.ErrorCode = uint32(code)

	// Codes describing a limit carry the limiting quantity.
	if detail.BitsLeft() >= 64 {
		if r.Detail, err = detail.LoadBigUint(64); err != nil {
			return nil, fmt.Errorf("unsatisfied report detail: %w", err)
		}
	}
	return r, nil
}
