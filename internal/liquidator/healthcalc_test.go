package liquidator

import (
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/oracle"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/protocol"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

var (
	tonID   = models.AssetIDFromSymbol("TON")
	usdtID  = models.AssetIDFromSymbol("USDT")
	jusdtID = models.AssetIDFromSymbol("jUSDT")
)

func testPool() *config.Pool {
	e9 := big.NewInt(1_000_000_000)
	e6 := big.NewInt(1_000_000)
	master := ton.MustParseAddress("EQC8rUZqR_pWV1BylWUlPNBzyiTYVoBEmQkMIQDZXICfnuRr")
	return config.NewPool(master, 4, []config.Asset{
		{Symbol: "TON", ID: tonID, Scale: e9, BalanceFloor: big.NewInt(5_000_000_000), CollateralPriority: 1},
		{Symbol: "USDT", ID: usdtID, Scale: e6, BalanceFloor: big.NewInt(10_000_000), CollateralPriority: 2},
		{Symbol: "jUSDT", ID: jusdtID, Scale: e6, BalanceFloor: big.NewInt(10_000_000), CollateralPriority: 3},
	})
}

// testMasterState uses identity rate indices so principals equal
// balances, a 75% liquidation threshold and a 5% liquidation bonus.
func testMasterState() *protocol.MasterState {
	state := &protocol.MasterState{
		Configs: map[models.AssetID]*protocol.AssetConfig{},
		Data:    map[models.AssetID]*protocol.AssetData{},
	}
	for _, id := range []models.AssetID{tonID, usdtID, jusdtID} {
		state.Configs[id] = &protocol.AssetConfig{
			Decimals:             9,
			CollateralFactor:     7000,
			LiquidationThreshold: 7500,
			LiquidationBonus:     10500,
			Dust:                 big.NewInt(0),
		}
		state.Data[id] = &protocol.AssetData{
			SRate:       new(big.Int).Set(protocol.FactorScale),
			BRate:       new(big.Int).Set(protocol.FactorScale),
			TotalSupply: big.NewInt(0),
			TotalBorrow: big.NewInt(0),
			Balance:     big.NewInt(0),
		}
	}
	return state
}

// TON at $5, stables at $1, oracle price scale 1e9.
func testSnapshot() *oracle.Snapshot {
	return &oracle.Snapshot{
		Prices: map[models.AssetID]*big.Int{
			tonID:   big.NewInt(5_000_000_000),
			usdtID:  big.NewInt(1_000_000_000),
			jusdtID: big.NewInt(1_000_000_000),
		},
	}
}

func TestEvaluateAccountLiquidatable(t *testing.T) {
	// 50 TON supplied ($250), $40 + $300 borrowed. The limit is
	// 250 * 0.75 = $187.5 against $340 of debt.
	account := &models.Account{
		ContractAddress: "0:1100000000000000000000000000000000000000000000000000000000000000",
		Principals: map[models.AssetID]*big.Int{
			tonID:   big.NewInt(50_000_000_000),
			usdtID:  big.NewInt(-40_000_000),
			jusdtID: big.NewInt(-300_000_000),
		},
	}

	eval, err := EvaluateAccount(account, testMasterState(), testSnapshot(), testPool())
	require.NoError(t, err)

	assert.Equal(t, int64(340_000_000_000), eval.BorrowValue.Int64())
	assert.Equal(t, int64(187_500_000_000), eval.LimitValue.Int64())
	assert.True(t, eval.Liquidatable())

	require.Len(t, eval.Supplies, 1)
	require.Len(t, eval.Borrows, 2)
	assert.Equal(t, tonID, eval.Supplies[0].Asset)
	assert.Equal(t, int64(250_000_000_000), eval.Supplies[0].Worth.Int64())
}

func TestEvaluateAccountHealthy(t *testing.T) {
	account := &models.Account{
		ContractAddress: "healthy",
		Principals: map[models.AssetID]*big.Int{
			tonID:  big.NewInt(50_000_000_000),
			usdtID: big.NewInt(-40_000_000),
		},
	}

	eval, err := EvaluateAccount(account, testMasterState(), testSnapshot(), testPool())
	require.NoError(t, err)
	assert.False(t, eval.Liquidatable())
}

func TestEvaluateAccountNoPositions(t *testing.T) {
	account := &models.Account{ContractAddress: "empty", Principals: map[models.AssetID]*big.Int{}}

	_, err := EvaluateAccount(account, testMasterState(), testSnapshot(), testPool())
	assert.Error(t, err)
}

func TestPresentValueUsesBorrowIndexForDebt(t *testing.T) {
	sRate := new(big.Int).Mul(protocol.FactorScale, big.NewInt(2))
	bRate := new(big.Int).Mul(protocol.FactorScale, big.NewInt(3))

	assert.Equal(t, int64(20), PresentValue(big.NewInt(10), sRate, bRate).Int64())
	assert.Equal(t, int64(-30), PresentValue(big.NewInt(-10), sRate, bRate).Int64())
}

func TestSelectLoanGreatestValue(t *testing.T) {
	borrows := []Position{
		{Asset: usdtID, Worth: big.NewInt(40_000_000_000)},
		{Asset: jusdtID, Worth: big.NewInt(300_000_000_000)},
	}
	loan, ok := SelectLoan(borrows)
	require.True(t, ok)
	assert.Equal(t, jusdtID, loan.Asset)

	_, ok = SelectLoan(nil)
	assert.False(t, ok)
}

func TestSelectCollateralByPriority(t *testing.T) {
	supplies := []Position{
		{Asset: usdtID, Worth: big.NewInt(500_000_000_000), Priority: 2},
		{Asset: tonID, Worth: big.NewInt(250_000_000_000), Priority: 1},
	}
	coll, ok := SelectCollateral(supplies, SelectByPriority)
	require.True(t, ok)
	assert.Equal(t, tonID, coll.Asset)
}

func TestSelectCollateralFallsBackBelowFloor(t *testing.T) {
	// Both supplies are under the $100 eligibility floor, so the
	// priority table is skipped and value wins.
	supplies := []Position{
		{Asset: tonID, Worth: big.NewInt(30_000_000_000), Priority: 1},
		{Asset: usdtID, Worth: big.NewInt(60_000_000_000), Priority: 2},
	}
	coll, ok := SelectCollateral(supplies, SelectByPriority)
	require.True(t, ok)
	assert.Equal(t, usdtID, coll.Asset)
}

func TestSelectCollateralGreatestValue(t *testing.T) {
	supplies := []Position{
		{Asset: tonID, Worth: big.NewInt(250_000_000_000), Priority: 1},
		{Asset: usdtID, Worth: big.NewInt(500_000_000_000), Priority: 2},
	}
	coll, ok := SelectCollateral(supplies, SelectGreatestValue)
	require.True(t, ok)
	assert.Equal(t, usdtID, coll.Asset)
}

func TestSizeLiquidation(t *testing.T) {
	pool := testPool()
	state := testMasterState()
	snapshot := testSnapshot()

	loan := Position{Asset: jusdtID, Balance: big.NewInt(300_000_000), Worth: big.NewInt(300_000_000_000)}
	collateral := Position{Asset: tonID, Balance: big.NewInt(50_000_000_000), Worth: big.NewInt(250_000_000_000), Priority: 1}

	loanAsset, err := pool.AssetByID(jusdtID)
	require.NoError(t, err)
	collateralAsset, err := pool.AssetByID(tonID)
	require.NoError(t, err)

	quote := SizeLiquidation(
		loan, collateral,
		loanAsset, collateralAsset,
		snapshot.Prices[jusdtID], snapshot.Prices[tonID],
		state.Configs[jusdtID], state.Configs[tonID],
		state.Data[jusdtID], state.Data[tonID],
	)

	// The claimed slice is half the collateral ($125): above the $100
	// ceiling but below the whole debt.
	assert.Equal(t, int64(119_047_619), quote.LiquidationAmount.Int64())
	assert.Equal(t, int64(24_249_999_990), quote.MinCollateralAmount.Int64())
	assert.Equal(t, int64(121_249_999_950), quote.RewardWorth.Int64())
}

func TestSizeLiquidationCappedByDebt(t *testing.T) {
	pool := testPool()
	state := testMasterState()
	snapshot := testSnapshot()

	// Tiny debt against huge collateral: the repayment is the whole
	// debt, not the collateral slice.
	loan := Position{Asset: jusdtID, Balance: big.NewInt(20_000_000), Worth: big.NewInt(20_000_000_000)}
	collateral := Position{Asset: tonID, Balance: big.NewInt(100_000_000_000), Worth: big.NewInt(500_000_000_000), Priority: 1}

	loanAsset, _ := pool.AssetByID(jusdtID)
	collateralAsset, _ := pool.AssetByID(tonID)

	quote := SizeLiquidation(
		loan, collateral,
		loanAsset, collateralAsset,
		snapshot.Prices[jusdtID], snapshot.Prices[tonID],
		state.Configs[jusdtID], state.Configs[tonID],
		state.Data[jusdtID], state.Data[tonID],
	)

	assert.Equal(t, int64(20_000_000), quote.LiquidationAmount.Int64())
}

func TestSizeLiquidationDustPadding(t *testing.T) {
	pool := testPool()
	state := testMasterState()
	snapshot := testSnapshot()

	state.Configs[jusdtID].Dust = big.NewInt(1_000)
	state.Configs[tonID].Dust = big.NewInt(10_000_000)

	loan := Position{Asset: jusdtID, Balance: big.NewInt(20_000_000), Worth: big.NewInt(20_000_000_000)}
	collateral := Position{Asset: tonID, Balance: big.NewInt(100_000_000_000), Worth: big.NewInt(500_000_000_000), Priority: 1}

	loanAsset, _ := pool.AssetByID(jusdtID)
	collateralAsset, _ := pool.AssetByID(tonID)

	quote := SizeLiquidation(
		loan, collateral,
		loanAsset, collateralAsset,
		snapshot.Prices[jusdtID], snapshot.Prices[tonID],
		state.Configs[jusdtID], state.Configs[tonID],
		state.Data[jusdtID], state.Data[tonID],
	)

	// Debt cap plus the loan asset dust.
	assert.Equal(t, int64(20_001_000), quote.LiquidationAmount.Int64())
}

func TestRequoteMinCollateral(t *testing.T) {
	orig := big.NewInt(1_000_000)
	min := big.NewInt(500_000)

	// Unclamped amount keeps the quote.
	assert.Equal(t, int64(500_000), RequoteMinCollateral(orig, big.NewInt(1_000_000), min).Int64())
	// Halved amount halves the quote.
	assert.Equal(t, int64(250_000), RequoteMinCollateral(orig, big.NewInt(500_000), min).Int64())
	// Zero original amount keeps the quote unchanged.
	assert.Equal(t, int64(500_000), RequoteMinCollateral(big.NewInt(0), big.NewInt(0), min).Int64())
}

func TestRequoteMinCollateralProportional(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("requote stays within [0, originalMin]", prop.ForAll(
		func(origAmount, clamped, origMin int64) bool {
			if clamped > origAmount {
				origAmount, clamped = clamped, origAmount
			}
			out := RequoteMinCollateral(big.NewInt(origAmount), big.NewInt(clamped), big.NewInt(origMin))
			return out.Sign() >= 0 && out.Cmp(big.NewInt(origMin)) <= 0
		},
		gen.Int64Range(1, 1<<40),
		gen.Int64Range(1, 1<<40),
		gen.Int64Range(0, 1<<40),
	))

	properties.Property("requote is monotonic in the clamped amount", prop.ForAll(
		func(origAmount, a, b int64) bool {
			if a > b {
				a, b = b, a
			}
			origMin := big.NewInt(1_000_000_000)
			orig := big.NewInt(origAmount)
			lo := RequoteMinCollateral(orig, big.NewInt(a), origMin)
			hi := RequoteMinCollateral(orig, big.NewInt(b), origMin)
			return lo.Cmp(hi) <= 0
		},
		gen.Int64Range(1, 1<<40),
		gen.Int64Range(1, 1<<40),
		gen.Int64Range(1, 1<<40),
	))

	properties.TestingRun(t)
}

func TestWorthMonotonicInPrice(t *testing.T) {
	properties := gopter.NewProperties(nil)

	scale := big.NewInt(1_000_000_000)
	properties.Property("a higher price never lowers the worth", prop.ForAll(
		func(balance, p1, p2 int64) bool {
			if p1 > p2 {
				p1, p2 = p2, p1
			}
			lo := Worth(big.NewInt(balance), big.NewInt(p1), scale)
			hi := Worth(big.NewInt(balance), big.NewInt(p2), scale)
			return lo.Cmp(hi) <= 0
		},
		gen.Int64Range(0, 1<<50),
		gen.Int64Range(1, 1<<40),
		gen.Int64Range(1, 1<<40),
	))

	properties.TestingRun(t)
}
