package protocol

// Master contract operation codes.
const (
	OpSupply                     uint32 = 0x1
	OpWithdraw                   uint32 = 0x2
	OpLiquidate                  uint32 = 0x3
	OpJettonTransferNotification uint32 = 0x7362d09c
	OpDebugPrincipals            uint32 = 0xd2

	OpSupplySuccess          uint32 = 0x11a
	OpWithdrawCollateralized uint32 = 0x211
	OpLiquidateSatisfied     uint32 = 0x311
	OpLiquidateUnsatisfied   uint32 = 0x31f

	// OpLiquidateSatisfiedReport tags the nested report inside a
	// satisfied settlement body.
	OpLiquidateSatisfiedReport uint32 = 0x311a

	// OpJettonTransfer is the standard jetton transfer envelope.
	OpJettonTransfer uint32 = 0xf8a7ea5
)

// Liquidation rejection error codes carried by unsatisfied reports.
const (
	ErrMasterLiquidatingTooMuch    uint32 = 0x30F1
	ErrUserWithdrawInProgress      uint32 = 0x31F0
	ErrNotLiquidatable             uint32 = 0x31F2
	ErrMinCollateralNotSatisfied   uint32 = 0x31F3
	ErrUserNotEnoughCollateral     uint32 = 0x31F4
	ErrUserLiquidatingTooMuch      uint32 = 0x31F5
	ErrMasterNotEnoughLiquidity    uint32 = 0x31F6
	ErrLiquidationPricesMissing    uint32 = 0x31F7
	ErrLiquidationExecutionCrashed uint32 = 0x31FE
)

// ErrorCodeName renders a rejection code for logs and alerts.
func ErrorCodeName(code uint32) string {
	switch code {
	case ErrMasterLiquidatingTooMuch:
		return "master liquidating too much"
	case ErrUserWithdrawInProgress:
		return "user withdraw in progress"
	case ErrNotLiquidatable:
		return "not liquidatable"
	case ErrMinCollateralNotSatisfied:
		return "min collateral not satisfied"
	case ErrUserNotEnoughCollateral:
		return "user not enough collateral"
	case ErrUserLiquidatingTooMuch:
		return "user liquidating too much"
	case ErrMasterNotEnoughLiquidity:
		return "master not enough liquidity"
	case ErrLiquidationPricesMissing:
		return "liquidation prices missing"
	case ErrLiquidationExecutionCrashed:
		return "execution crashed"
	default:
		return "unknown"
	}
}
