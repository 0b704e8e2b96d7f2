package protocol

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

var (
	testUser       = ton.MustParseAddress("EQC8rUZqR_pWV1BylWUlPNBzyiTYVoBEmQkMIQDZXICfnuRr")
	testLiquidator = ton.MustParseAddress("0:17a3a92992aabea785a7a090985a265cd31f323d849da51239737e321fb05569")
)

func buildSatisfiedBody(queryID uint64) *boc.Cell {
	loanID := models.AssetIDFromSymbol("USDT")
	collateralID := models.AssetIDFromSymbol("TON")

	detail := boc.NewBuilder()
	detail.StoreUint(40_000_000, 64)  // delta loan principal
	detail.StoreUint(119_047_619, 64) // liquidatable amount
	detail.StoreUint(595_238, 64)     // protocol gift
	detail.StoreUint(180_000_000, 64) // new loan principal
	detail.StoreBigUint(collateralID.Big(), 256)
	detail.StoreUint(24_000_000_000, 64) // delta collateral principal
	detail.StoreUint(24_249_999_990, 64) // collateral reward

	report := boc.NewBuilder()
	report.StoreCoins(big.NewInt(4)) // protocol version
	report.StoreMaybeRef(nil)
	report.StoreInt(0, 2)
	report.StoreUint(uint64(OpLiquidateSatisfiedReport), 32)
	report.StoreUint(queryID, 64)
	report.StoreRef(detail.EndCell())

	body := boc.NewBuilder()
	body.StoreUint(uint64(OpLiquidateSatisfied), 32)
	body.StoreUint(queryID, 64)
	ton.StoreAddr(body, testUser)
	ton.StoreAddr(body, testLiquidator)
	body.StoreBigUint(loanID.Big(), 256)
	body.StoreRef(report.EndCell())
	return body.EndCell()
}

func TestParseSatisfiedReport(t *testing.T) {
	const queryID = 1_756_000_000_123

	r, err := ParseSatisfiedReport(buildSatisfiedBody(queryID))
	require.NoError(t, err)

	assert.Equal(t, uint64(queryID), r.QueryID)
	assert.True(t, r.User.Equal(testUser))
	assert.Equal(t, models.AssetIDFromSymbol("USDT"), r.TransferredAsset)
	assert.Equal(t, models.AssetIDFromSymbol("TON"), r.CollateralAsset)
	assert.Equal(t, int64(119_047_619), r.LiquidatableAmount.Int64())
	assert.Equal(t, int64(595_238), r.ProtocolGift.Int64())
	assert.Equal(t, int64(24_249_999_990), r.CollateralRewardAmount.Int64())
}

func TestParseSatisfiedReportRejectsWrongOp(t *testing.T) {
	body := boc.NewBuilder().StoreUint(uint64(OpSupply), 32).StoreUint(1, 64).EndCell()

	_, err := ParseSatisfiedReport(body)
	assert.Error(t, err)
}

func buildUnsatisfiedBody(queryID uint64, errorCode uint32, withDetail bool) *boc.Cell {
	loanID := models.AssetIDFromSymbol("USDT")
	collateralID := models.AssetIDFromSymbol("TON")

	detail := boc.NewBuilder()
	detail.StoreUint(119_047_619, 64) // transferred amount
	detail.StoreBigUint(collateralID.Big(), 256)
	detail.StoreUint(24_249_999_990, 64) // min collateral
	detail.StoreMaybeRef(nil)
	detail.StoreUint(uint64(errorCode), 32)
	if withDetail {
		detail.StoreUint(20_000_000_000, 64)
	}

	body := boc.NewBuilder()
	body.StoreUint(uint64(OpLiquidateUnsatisfied), 32)
	body.StoreUint(queryID, 64)
	ton.StoreAddr(body, testUser)
	ton.StoreAddr(body, testLiquidator)
	body.StoreBigUint(loanID.Big(), 256)
	body.StoreRef(detail.EndCell())
	return body.EndCell()
}

func TestParseUnsatisfiedReport(t *testing.T) {
	const queryID = 1_756_000_000_456

	r, err := ParseUnsatisfiedReport(buildUnsatisfiedBody(queryID, ErrMinCollateralNotSatisfied, true))
	require.NoError(t, err)

	assert.Equal(t, uint64(queryID), r.QueryID)
	assert.Equal(t, uint32(ErrMinCollateralNotSatisfied), r.ErrorCode)
	assert.Equal(t, int64(119_047_619), r.TransferredAmount.Int64())
	require.NotNil(t, r.Detail)
	assert.Equal(t, int64(20_000_000_000), r.Detail.Int64())
}

func TestParseUnsatisfiedReportWithoutDetail(t *testing.T) {
	r, err := ParseUnsatisfiedReport(buildUnsatisfiedBody(9, ErrNotLiquidatable, false))
	require.NoError(t, err)

	assert.Equal(t, uint32(ErrNotLiquidatable), r.ErrorCode)
	assert.Nil(t, r.Detail)
}

func TestErrorCodeNames(t *testing.T) {
	assert.NotEmpty(t, ErrorCodeName(ErrNotLiquidatable))
	assert.NotEmpty(t, ErrorCodeName(ErrMinCollateralNotSatisfied))
	assert.NotEmpty(t, ErrorCodeName(ErrLiquidationPricesMissing))
	assert.Contains(t, ErrorCodeName(0xDEAD), "unknown")
}
