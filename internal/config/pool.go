package config

import (
	"fmt"
	"math/big"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

// NoPriority marks an asset absent from the collateral priority table.
const NoPriority = 999

// Asset describes one pool asset: identity, scale and the bot's local
// policy for it.
type Asset struct {
	Symbol string
	ID     models.AssetID
	// Scale is 10^decimals.
	Scale *big.Int
	// BalanceFloor is the minimum wallet balance to keep; tasks that
	// would spend below it are cancelled.
	BalanceFloor *big.Int
	// CollateralPriority ranks the asset for collateral selection,
	// lower is preferred. NoPriority excludes it from the table.
	CollateralPriority int
	// JettonWallet is the bot wallet's jetton wallet for this asset.
	// Empty for the native asset.
	JettonWallet string
	// Banned swap directions for the post-liquidation swap queue.
	BannedSwapFrom bool
	BannedSwapTo   bool
}

// IsNative reports whether the asset is the chain's native coin.
func (a *Asset) IsNative() bool { return a.Symbol == "TON" }

// Pool is the immutable description of one lending pool: master
// contract plus its asset table.
type Pool struct {
	MasterAddress ton.Address
	MasterVersion int
	GasReserve    *big.Int

	assets []Asset
	byID   map[models.AssetID]*Asset
}

// NewPool builds a pool description and indexes its assets.
func NewPool(master ton.Address, version int, assets []Asset) *Pool {
	p := &Pool{
		MasterAddress: master,
		MasterVersion: version,
		GasReserve:    big.NewInt(2_000_000_000), // 2 TON kept for fees
		assets:        assets,
		byID:          make(map[models.AssetID]*Asset, len(assets)),
	}
	for i := range p.assets {
		p.byID[p.assets[i].ID] = &p.assets[i]
	}
	return p
}

// Assets returns the pool asset table.
func (p *Pool) Assets() []Asset { return p.assets }

// AssetByID looks an asset up by id.
func (p *Pool) AssetByID(id models.AssetID) (*Asset, error) {
	a, ok := p.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown asset %s", id)
	}
	return a, nil
}

// AssetBySymbol looks an asset up by ticker.
func (p *Pool) AssetBySymbol(symbol string) (*Asset, error) {
	for i := range p.assets {
		if p.assets[i].Symbol == symbol {
			return &p.assets[i], nil
		}
	}
	return nil, fmt.Errorf("unknown asset symbol %q", symbol)
}

// MainnetPool returns the classic mainnet pool description. Jetton
// wallet addresses depend on the bot's wallet and come from
// JETTON_WALLET_<SYMBOL> environment variables.
func MainnetPool() *Pool {
	master := ton.MustParseAddress("EQC8rUZqR_pWV1BylWUlPNBzyiTYVoBEmQkMIQDZXICfnuRr")

	e9 := big.NewInt(1_000_000_000)
	e6 := big.NewInt(1_000_000)

	assets := []Asset{
		{
			Symbol:             "TON",
			ID:                 models.AssetIDFromSymbol("TON"),
			Scale:              e9,
			BalanceFloor:       big.NewInt(5_000_000_000),
			CollateralPriority: 1,
		},
		{
			Symbol:             "USDT",
			ID:                 models.AssetIDFromSymbol("USDT"),
			Scale:              e6,
			BalanceFloor:       big.NewInt(5_000_000),
			CollateralPriority: 2,
			JettonWallet:       getEnv("JETTON_WALLET_USDT", ""),
		},
		{
			Symbol:             "jUSDT",
			ID:                 models.AssetIDFromSymbol("jUSDT"),
			Scale:              e6,
			BalanceFloor:       big.NewInt(5_000_000),
			CollateralPriority: 3,
			JettonWallet:       getEnv("JETTON_WALLET_JUSDT", ""),
		},
		{
			Symbol:             "jUSDC",
			ID:                 models.AssetIDFromSymbol("jUSDC"),
			Scale:              e6,
			BalanceFloor:       big.NewInt(5_000_000),
			CollateralPriority: 4,
			JettonWallet:       getEnv("JETTON_WALLET_JUSDC", ""),
		},
		{
			Symbol:             "stTON",
			ID:                 models.AssetIDFromSymbol("stTON"),
			Scale:              e9,
			BalanceFloor:       big.NewInt(1_000_000_000),
			CollateralPriority: 5,
			JettonWallet:       getEnv("JETTON_WALLET_STTON", ""),
			BannedSwapTo:       true,
		},
		{
			Symbol:             "tsTON",
			ID:                 models.AssetIDFromSymbol("tsTON"),
			Scale:              e9,
			BalanceFloor:       big.NewInt(1_000_000_000),
			CollateralPriority: 6,
			JettonWallet:       getEnv("JETTON_WALLET_TSTON", ""),
			BannedSwapTo:       true,
		},
	}

	return NewPool(master, 4, assets)
}
