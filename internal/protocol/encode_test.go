package protocol

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

func encoderPool() *config.Pool {
	e9 := big.NewInt(1_000_000_000)
	e6 := big.NewInt(1_000_000)
	return config.NewPool(testUser, 4, []config.Asset{
		{Symbol: "TON", ID: models.AssetIDFromSymbol("TON"), Scale: e9, CollateralPriority: 1},
		{
			Symbol:             "USDT",
			ID:                 models.AssetIDFromSymbol("USDT"),
			Scale:              e6,
			CollateralPriority: 2,
			JettonWallet:       "0:2e0d2a06e5f40c2a98a90fe43b7b2a3a9412e6c1460254ad0a6f247cd1f9d0e3",
		},
	})
}

func testTask(loan models.AssetID) *models.LiquidationTask {
	return &models.LiquidationTask{
		ID:                  1,
		WalletAddress:       testLiquidator.ToRaw(),
		ContractAddress:     "0:3333333333333333333333333333333333333333333333333333333333333333",
		LoanAsset:           loan,
		CollateralAsset:     models.AssetIDFromSymbol("TON"),
		LiquidationAmount:   big.NewInt(119_047_619),
		MinCollateralAmount: big.NewInt(24_249_999_990),
		QueryID:             1_756_000_000_789,
	}
}

func testProof() *boc.Cell {
	return boc.NewBuilder().StoreUint(0xAA, 8).EndCell()
}

func TestEncodeNativeLiquidation(t *testing.T) {
	pool := encoderPool()
	enc := NewClassicEncoder(pool)

	task := testTask(models.AssetIDFromSymbol("TON"))
	task.LiquidationAmount = big.NewInt(10_000_000_000)

	msg, err := enc.Encode(task, testUser, testProof())
	require.NoError(t, err)

	assert.True(t, msg.Dest.Equal(pool.MasterAddress))
	// Liquidation amount plus the 0.5 TON fee.
	assert.Equal(t, int64(10_500_000_000), msg.Amount.Int64())

	s := msg.Body.BeginParse()
	assert.Equal(t, uint64(OpLiquidate), s.MustLoadUint(32))
	assert.Equal(t, task.QueryID, s.MustLoadUint(64))

	borrower, err := ton.LoadAddr(s)
	require.NoError(t, err)
	assert.True(t, borrower.Equal(testLiquidator))

	liquidatorAddr, err := ton.LoadAddr(s)
	require.NoError(t, err)
	assert.True(t, liquidatorAddr.Equal(testUser))

	collateral, err := s.LoadBigUint(256)
	require.NoError(t, err)
	assert.Equal(t, models.AssetIDFromSymbol("TON"), models.AssetIDFromBig(collateral))

	minColl, err := s.LoadBigUint(64)
	require.NoError(t, err)
	assert.Equal(t, task.MinCollateralAmount.Int64(), minColl.Int64())

	include, err := s.LoadInt(2)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), include)

	amount, err := s.LoadBigUint(64)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000_000), amount.Int64())

	proof := s.LoadRef()
	assert.Equal(t, testProof().Hash(), proof.Hash())
}

func TestEncodeJettonLiquidation(t *testing.T) {
	pool := encoderPool()
	enc := NewClassicEncoder(pool)

	task := testTask(models.AssetIDFromSymbol("USDT"))

	msg, err := enc.Encode(task, testUser, testProof())
	require.NoError(t, err)

	usdt, err := pool.AssetBySymbol("USDT")
	require.NoError(t, err)
	assert.Equal(t, usdt.JettonWallet, msg.Dest.ToRaw())
	assert.Equal(t, int64(1_000_000_000), msg.Amount.Int64())

	s := msg.Body.BeginParse()
	assert.Equal(t, uint64(OpJettonTransfer), s.MustLoadUint(32))
	assert.Equal(t, task.QueryID, s.MustLoadUint(64))

	transferred, err := s.LoadCoins()
	require.NoError(t, err)
	assert.Equal(t, task.LiquidationAmount.Int64(), transferred.Int64())

	dest, err := ton.LoadAddr(s)
	require.NoError(t, err)
	assert.True(t, dest.Equal(pool.MasterAddress))

	response, err := ton.LoadAddr(s)
	require.NoError(t, err)
	assert.True(t, response.Equal(testUser))

	customPayload, err := s.LoadBit()
	require.NoError(t, err)
	assert.False(t, customPayload)

	forward, err := s.LoadCoins()
	require.NoError(t, err)
	assert.Equal(t, int64(700_000_000), forward.Int64())

	inRef, err := s.LoadBit()
	require.NoError(t, err)
	assert.True(t, inRef)

	inner := s.LoadRef().BeginParse()
	assert.Equal(t, uint64(OpLiquidate), inner.MustLoadUint(32))
	assert.Equal(t, task.QueryID, inner.MustLoadUint(64))
}

func TestEncodeJettonWithoutWalletFails(t *testing.T) {
	e6 := big.NewInt(1_000_000)
	pool := config.NewPool(testUser, 4, []config.Asset{
		{Symbol: "USDT", ID: models.AssetIDFromSymbol("USDT"), Scale: e6},
	})
	enc := NewClassicEncoder(pool)

	_, err := enc.Encode(testTask(models.AssetIDFromSymbol("USDT")), testUser, testProof())
	assert.Error(t, err)
}

func TestEncodeUnknownLoanAssetFails(t *testing.T) {
	enc := NewClassicEncoder(encoderPool())

	_, err := enc.Encode(testTask(models.AssetIDFromSymbol("DOGE")), testUser, testProof())
	assert.Error(t, err)
}
