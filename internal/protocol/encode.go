package protocol

import (
	"fmt"
	"math/big"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

// OutgoingMessage is one internal message ready for the wallet
// dispatcher: destination, attached value and body.
type OutgoingMessage struct {
	Dest   ton.Address
	Amount *big.Int
	Body   *boc.Cell
}

// LiquidationEncoder renders a decided task into the wire message for
// one protocol version. Chosen once at startup.
type LiquidationEncoder interface {
	Encode(task *models.LiquidationTask, liquidator ton.Address, proof *boc.Cell) (*OutgoingMessage, error)
}

// Attached message fee constants, nanoton.
var (
	nativeLiquidationFee = big.NewInt(500_000_000)   // 0.5 TON on top of the amount
	jettonAttachedValue  = big.NewInt(1_000_000_000) // 1 TON
	jettonForwardValue   = big.NewInt(700_000_000)   // 0.7 TON forwarded
)

// ClassicEncoder builds liquidation messages for the classic (v4)
// master.
type ClassicEncoder struct {
	pool *config.Pool
}

// NewClassicEncoder builds the encoder for the pool.
func NewClassicEncoder(pool *config.Pool) *ClassicEncoder {
	return &ClassicEncoder{pool: pool}
}

// Encode renders the task. Native loans go straight to the master with
// the amount attached; jetton loans wrap the order in a jetton
// transfer to the bot's jetton wallet for the loan asset.
func (e *ClassicEncoder) Encode(task *models.LiquidationTask, liquidator ton.Address, proof *boc.Cell) (*OutgoingMessage, error) {
	loanAsset, err := e.pool.AssetByID(task.LoanAsset)
	if err != nil {
		return nil, err
	}
	borrower, err := ton.ParseAddress(task.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("task %d borrower address: %w", task.ID, err)
	}

	if loanAsset.IsNative() {
		return e.encodeNative(task, borrower, liquidator, proof)
	}
	return e.encodeJetton(task, loanAsset, borrower, liquidator, proof)
}

// encodeNative builds the direct master message: op, query id,
// borrower, liquidator, collateral asset, min collateral, include flag
// and the raw amount, with the price proof in a ref.
func (e *ClassicEncoder) encodeNative(task *models.LiquidationTask, borrower, liquidator ton.Address, proof *boc.Cell) (*OutgoingMessage, error) {
	b := boc.NewBuilder()
	b.StoreUint(uint64(OpLiquidate), 32)
	b.StoreUint(task.QueryID, 64)
	ton.StoreAddr(b, borrower)
	ton.StoreAddr(b, liquidator)
	b.StoreBigUint(task.CollateralAsset.Big(), 256)
	b.StoreBigUint(task.MinCollateralAmount, 64)
	b.StoreInt(-1, 2)
	b.StoreBigUint(task.LiquidationAmount, 64)
	b.StoreRef(proof)

	return &OutgoingMessage{
		Dest:   e.pool.MasterAddress,
		Amount: new(big.Int).Add(task.LiquidationAmount, nativeLiquidationFee),
		Body:   b.EndCell(),
	}, nil
}

// encodeJetton wraps the order in a standard jetton transfer. The
// transferred jetton amount itself carries the liquidation size, so
// the inner order omits the raw amount field.
func (e *ClassicEncoder) encodeJetton(task *models.LiquidationTask, loanAsset *config.Asset, borrower, liquidator ton.Address, proof *boc.Cell) (*OutgoingMessage, error) {
	if loanAsset.JettonWallet == "" {
		return nil, fmt.Errorf("no jetton wallet configured for %s", loanAsset.Symbol)
	}
	jettonWallet, err := ton.ParseAddress(loanAsset.JettonWallet)
	if err != nil {
		return nil, fmt.Errorf("jetton wallet for %s: %w", loanAsset.Symbol, err)
	}

	inner := boc.NewBuilder()
	inner.StoreUint(uint64(OpLiquidate), 32)
	inner.StoreUint(task.QueryID, 64)
	ton.StoreAddr(inner, borrower)
	ton.StoreAddr(inner, liquidator)
	inner.StoreBigUint(task.CollateralAsset.Big(), 256)
	inner.StoreBigUint(task.MinCollateralAmount, 64)
	inner.StoreInt(-1, 2)
	inner.StoreRef(proof)

	envelope := boc.NewBuilder()
	envelope.StoreUint(uint64(OpJettonTransfer), 32)
	envelope.StoreUint(task.QueryID, 64)
	envelope.StoreCoins(task.LiquidationAmount)
	ton.StoreAddr(envelope, e.pool.MasterAddress)
	ton.StoreAddr(envelope, liquidator)
	envelope.StoreBit(false) // no custom payload
	envelope.StoreCoins(jettonForwardValue)
	envelope.StoreBit(true)
	envelope.StoreRef(inner.EndCell())

	return &OutgoingMessage{
		Dest:   jettonWallet,
		Amount: new(big.Int).Set(jettonAttachedValue),
		Body:   envelope.EndCell(),
	}, nil
}
