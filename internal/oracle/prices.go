package oracle

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
)

// BuildPricesCell serializes prices into the protocol's linked-list
// form: each node holds (assetId u256, price coins) and a ref to the
// next node. Assets are ordered by id so the cell is deterministic.
func BuildPricesCell(prices map[models.AssetID]*big.Int) *boc.Cell {
	ids := make([]models.AssetID, 0, len(prices))
	for id := range prices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	var next *boc.Cell
	for i := len(ids) - 1; i >= 0; i-- {
		b := boc.NewBuilder()
		b.StoreBigUint(ids[i].Big(), 256)
		b.StoreCoins(prices[ids[i]])
		if next != nil {
			b.StoreRef(next)
		}
		next = b.EndCell()
	}
	return next
}

// ParsePricesCell reads a linked-list prices cell back into a map.
func ParsePricesCell(cell *boc.Cell) (map[models.AssetID]*big.Int, error) {
	out := make(map[models.AssetID]*big.Int)
	for cell != nil {
		s := cell.BeginParse()
		id, err := s.LoadBigUint(256)
		if err != nil {
			return nil, fmt.Errorf("parse prices node: %w", err)
		}
		price, err := s.LoadCoins()
		if err != nil {
			return nil, fmt.Errorf("parse prices node: %w", err)
		}
		out[models.AssetIDFromBig(id)] = price

		if s.RefsLeft() > 0 {
			cell = s.LoadRef()
		} else {
			cell = nil
		}
	}
	return out, nil
}

// BuildProofCell wraps the prices cell into the proof the master
// verifies: oldest issue timestamp, the prices, and the aggregate
// signature.
func BuildProofCell(oldestTimestamp int64, prices *boc.Cell, signature []byte) *boc.Cell {
	b := boc.NewBuilder()
	b.StoreUint(uint64(oldestTimestamp), 64)
	b.StoreBytes(signature)
	b.StoreRef(prices)
	return b.EndCell()
}
