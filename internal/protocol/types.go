// Package protocol talks to the lending pool contracts: master state
// sync, per-user contract state and the liquidation wire encodings.
package protocol

import (
	"fmt"
	"math/big"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
)

// FactorScale converts principals to balances: balance =
// principal * rate / FactorScale.
var FactorScale = big.NewInt(1_000_000_000_000)

// LBScale is the denominator of collateral factors, liquidation
// thresholds and liquidation bonuses.
const LBScale = 10000

// AssetConfig is the master's static per-asset configuration.
type AssetConfig struct {
	Decimals             uint8
	CollateralFactor     uint16
	LiquidationThreshold uint16
	LiquidationBonus     uint16
	Dust                 *big.Int
}

// AssetData is the master's dynamic per-asset state.
type AssetData struct {
	SRate       *big.Int
	BRate       *big.Int
	TotalSupply *big.Int
	TotalBorrow *big.Int
	LastAccrual int64
	Balance     *big.Int
}

// MasterState is one consistent view of the master contract.
type MasterState struct {
	Configs map[models.AssetID]*AssetConfig
	Data    map[models.AssetID]*AssetData
}

// Config returns the asset's config.
func (m *MasterState) Config(asset models.AssetID) (*AssetConfig, error) {
	c, ok := m.Configs[asset]
	if !ok {
		return nil, fmt.Errorf("no config for asset %s", asset)
	}
	return c, nil
}

// DataFor returns the asset's dynamic state.
func (m *MasterState) DataFor(asset models.AssetID) (*AssetData, error) {
	d, ok := m.Data[asset]
	if !ok {
		return nil, fmt.Errorf("no data for asset %s", asset)
	}
	return d, nil
}

// parseAssetConfigDict reads the getAssetsConfig dictionary: key is
// the u256 asset id, value is (decimals u8, collateralFactor u16,
// liquidationThreshold u16, liquidationBonus u16, dust u64).
func parseAssetConfigDict(cell *boc.Cell) (map[models.AssetID]*AssetConfig, error) {
	kvs, err := boc.ParseDict(cell, 256)
	if err != nil {
		return nil, fmt.Errorf("parse assets config dict: %w", err)
	}

	out := make(map[models.AssetID]*AssetConfig, len(kvs))
	for _, kv := range kvs {
		s := kv.Value
		decimals, err := s.LoadUint(8)
		if err != nil {
			return nil, fmt.Errorf("asset config decimals: %w", err)
		}
		cf, err := s.LoadUint(16)
		if err != nil {
			return nil, fmt.Errorf("asset config collateral factor: %w", err)
		}
		lt, err := s.LoadUint(16)
		if err != nil {
			return nil, fmt.Errorf("asset config liquidation threshold: %w", err)
		}
		lb, err := s.LoadUint(16)
		if err != nil {
			return nil, fmt.Errorf("asset config liquidation bonus: %w", err)
		}
		dust, err := s.LoadBigUint(64)
		if err != nil {
			return nil, fmt.Errorf("asset config dust: %w", err)
		}

		out[models.AssetIDFromBig(kv.Key)] = &AssetConfig{
			Decimals:             uint8(decimals),
			CollateralFactor:     uint16(cf),
			LiquidationThreshold: uint16(lt),
			LiquidationBonus:     uint16(lb),
			Dust:                 dust,
		}
	}
	return out, nil
}

// parseAssetDataDict reads the getAssetsData dictionary: key is the
// u256 asset id, value is (sRate u64, bRate u64, totalSupply u64,
// totalBorrow u64, lastAccrual u32, balance u64).
func parseAssetDataDict(cell *boc.Cell) (map[models.AssetID]*AssetData, error) {
	kvs, err := boc.ParseDict(cell, 256)
	if err != nil {
		return nil, fmt.Errorf("parse assets data dict: %w", err)
	}

	out := make(map[models.AssetID]*AssetData, len(kvs))
	for _, kv := range kvs {
		s := kv.Value
		d := &AssetData{}
		if d.SRate, err = s.LoadBigUint(64); err != nil {
			return nil, fmt.Errorf("asset data sRate: %w", err)
		}
		if d.BRate, err = s.LoadBigUint(64); err != nil {
			return nil, fmt.Errorf("asset data bRate: %w", err)
		}
		if d.TotalSupply, err = s.LoadBigUint(64); err != nil {
			return nil, fmt.Errorf("asset data total supply: %w", err)
		}
		if d.TotalBorrow, err = s.LoadBigUint(64); err != nil {
			return nil, fmt.Errorf("asset data total borrow: %w", err)
		}
		accrual, err := s.LoadUint(32)
		if err != nil {
			return nil, fmt.Errorf("asset data last accrual: %w", err)
		}
		d.LastAccrual = int64(accrual)
		if d.Balance, err = s.LoadBigUint(64); err != nil {
			return nil, fmt.Errorf("asset data balance: %w", err)
		}
		out[models.AssetIDFromBig(kv.Key)] = d
	}
	return out, nil
}

// BuildAssetConfigDict serializes asset configs back into dictionary
// form. The sync path never needs it; tests and local tooling do.
func BuildAssetConfigDict(configs map[models.AssetID]*AssetConfig) (*boc.Cell, error) {
	var entries []boc.DictEntry
	for id, c := range configs {
		v := boc.NewBuilder()
		v.StoreUint(uint64(c.Decimals), 8)
		v.StoreUint(uint64(c.CollateralFactor), 16)
		v.StoreUint(uint64(c.LiquidationThreshold), 16)
		v.StoreUint(uint64(c.LiquidationBonus), 16)
		v.StoreBigUint(c.Dust, 64)
		entries = append(entries, boc.DictEntry{Key: id.Big(), Value: v})
	}
	return boc.BuildDict(256, entries)
}

// BuildAssetDataDict serializes asset data into dictionary form.
func BuildAssetDataDict(data map[models.AssetID]*AssetData) (*boc.Cell, error) {
	var entries []boc.DictEntry
	for id, d := range data {
		v := boc.NewBuilder()
		v.StoreBigUint(d.SRate, 64)
		v.StoreBigUint(d.BRate, 64)
		v.StoreBigUint(d.TotalSupply, 64)
		v.StoreBigUint(d.TotalBorrow, 64)
		v.StoreUint(uint64(d.LastAccrual), 32)
		v.StoreBigUint(d.Balance, 64)
		entries = append(entries, boc.DictEntry{Key: id.Big(), Value: v})
	}
	return boc.BuildDict(256, entries)
}
