package liquidator

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/protocol"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/wallet"
)

// TaskQueue is the slice of the task repository the dispatch tick needs.
type TaskQueue interface {
	TakePending(ctx context.Context, limit int) ([]*models.LiquidationTask, error)
	MarkSent(ctx context.Context, id int64, queryID uint64) error
	MarkInsufficientBalance(ctx context.Context, id int64) error
	MarkUnsatisfied(ctx context.Context, id int64) error
	Release(ctx context.Context, id int64) error
}

// BalanceReader reads the wallet's spendable funds.
type BalanceReader interface {
	Native(ctx context.Context) (*big.Int, error)
	Jetton(ctx context.Context, asset models.AssetID) (*big.Int, error)
}

// Dispatcher broadcasts a batch of messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, entries []wallet.BatchEntry) (uint64, error)
	Address() ton.Address
}

// Liquidator claims pending tasks, funds-checks and clamps them, and
// hands the batch to the wallet.
type Liquidator struct {
	tasks    TaskQueue
	balances BalanceReader
	wallet   Dispatcher
	encoder  protocol.LiquidationEncoder
	pool     *config.Pool

	maxPriceAge time.Duration
	log         *zap.Logger

	busy atomic.Bool
}

// NewLiquidator wires the dispatch tick.
func NewLiquidator(
	tasks TaskQueue,
	balances BalanceReader,
	w Dispatcher,
	encoder protocol.LiquidationEncoder,
	pool *config.Pool,
	maxPriceAge time.Duration,
	log *zap.Logger,
) *Liquidator {
	return &Liquidator{
		tasks:       tasks,
		balances:    balances,
		wallet:      w,
		encoder:     encoder,
		pool:        pool,
		maxPriceAge: maxPriceAge,
		log:         log.Named("liquidator"),
	}
}

// Run ticks until ctx is cancelled.
func (l *Liquidator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// ledger tracks spendable funds across one tick so tasks in the same
// batch cannot double-spend the same balance.
type ledger struct {
	native  *big.Int
	jettons map[models.AssetID]*big.Int
}

// Tick runs one dispatch pass. Overlapping ticks are skipped.
func (l *Liquidator) Tick(ctx context.Context) {
	if !l.busy.CompareAndSwap(false, true) {
		l.log.Debug("previous dispatch pass still running, skipping")
		return
	}
	defer l.busy.Store(false)

	tasks, err := l.tasks.TakePending(ctx, wallet.MaxBatchSize)
	if err != nil {
		l.log.Error("claiming pending tasks failed", zap.Error(err))
		return
	}
	if len(tasks) == 0 {
		return
	}

	native, err := l.balances.Native(ctx)
	if err != nil {
		l.log.Error("reading wallet balance failed", zap.Error(err))
		l.releaseAll(ctx, tasks)
		return
	}
	funds := &ledger{
		native:  new(big.Int).Sub(native, l.pool.GasReserve),
		jettons: make(map[models.AssetID]*big.Int),
	}

	now := time.Now()
	var batch []wallet.BatchEntry
	var batchTasks []*models.LiquidationTask

	for i, task := range tasks {
		if ctx.Err() != nil {
			l.releaseAll(ctx, tasks[i:])
			return
		}

		// Never broadcast on a stale snapshot; the proof would be
		// rejected and the fee lost.
		if now.Sub(time.Unix(task.PricesTimestamp, 0)) > l.maxPriceAge {
			l.log.Warn("task prices went stale, cancelling",
				zap.Int64("taskID", task.ID),
				zap.Int64("pricesTimestamp", task.PricesTimestamp))
			l.markState(ctx, task.ID, l.tasks.MarkUnsatisfied)
			continue
		}

		entry, ok := l.prepare(ctx, task, funds)
		if !ok {
			continue
		}
		batch = append(batch, entry)
		batchTasks = append(batchTasks, task)
	}

	if len(batch) == 0 {
		return
	}

	queryID, err := l.wallet.Dispatch(ctx, batch)
	if err != nil {
		l.log.Error("batch dispatch failed", zap.Int("messages", len(batch)), zap.Error(err))
		l.releaseAll(ctx, batchTasks)
		return
	}

	for _, task := range batchTasks {
		if err := l.tasks.MarkSent(ctx, task.ID, task.QueryID); err != nil {
			l.log.Error("marking task sent failed",
				zap.Int64("taskID", task.ID), zap.Error(err))
		}
	}

	l.log.Info("liquidations dispatched",
		zap.Uint64("walletQueryID", queryID),
		zap.Int("messages", len(batch)))
}

// prepare funds-checks one task against the ledger, clamps it to the
// spendable balance, and encodes its message.
func (l *Liquidator) prepare(ctx context.Context, task *models.LiquidationTask, funds *ledger) (wallet.BatchEntry, bool) {
	loanAsset, err := l.pool.AssetByID(task.LoanAsset)
	if err != nil {
		l.log.Error("task with unknown loan asset",
			zap.Int64("taskID", task.ID), zap.Error(err))
		l.markState(ctx, task.ID, l.tasks.MarkUnsatisfied)
		return wallet.BatchEntry{}, false
	}

	spendable, ok := l.spendable(ctx, loanAsset, funds)
	if !ok {
		l.markState(ctx, task.ID, l.tasks.MarkInsufficientBalance)
		return wallet.BatchEntry{}, false
	}

	clamped := new(big.Int).Set(task.LiquidationAmount)
	if clamped.Cmp(spendable) > 0 {
		clamped.Set(spendable)
	}
	if clamped.Sign() <= 0 {
		l.log.Warn("wallet cannot fund task",
			zap.Int64("taskID", task.ID),
			zap.String("asset", loanAsset.Symbol),
			zap.String("spendable", spendable.String()))
		l.markState(ctx, task.ID, l.tasks.MarkInsufficientBalance)
		return wallet.BatchEntry{}, false
	}

	if clamped.Cmp(task.LiquidationAmount) < 0 {
		requoted := RequoteMinCollateral(task.LiquidationAmount, clamped, task.MinCollateralAmount)
		l.log.Info("task clamped to wallet balance",
			zap.Int64("taskID", task.ID),
			zap.String("original", task.LiquidationAmount.String()),
			zap.String("clamped", clamped.String()))
		task.LiquidationAmount = clamped
		task.MinCollateralAmount = requoted
	}

	proof, err := boc.FromBase64(task.PricesCell)
	if err != nil {
		l.log.Error("task carries unreadable price proof",
			zap.Int64("taskID", task.ID), zap.Error(err))
		l.markState(ctx, task.ID, l.tasks.MarkUnsatisfied)
		return wallet.BatchEntry{}, false
	}

	msg, err := l.encoder.Encode(task, l.wallet.Address(), proof)
	if err != nil {
		l.log.Error("task encoding failed",
			zap.Int64("taskID", task.ID), zap.Error(err))
		l.markState(ctx, task.ID, l.tasks.MarkUnsatisfied)
		return wallet.BatchEntry{}, false
	}

	l.debit(loanAsset, task.LiquidationAmount, msg.Amount, funds)
	return wallet.BatchEntry{TaskID: task.ID, Message: msg}, true
}

// spendable returns how much of the loan asset the wallet can commit,
// after the asset's balance floor. Jetton legs also require the native
// attach value to be available.
func (l *Liquidator) spendable(ctx context.Context, loanAsset *config.Asset, funds *ledger) (*big.Int, bool) {
	if loanAsset.IsNative() {
		out := new(big.Int).Sub(funds.native, loanAsset.BalanceFloor)
		if out.Sign() <= 0 {
			return nil, false
		}
		return out, true
	}

	balance, ok := funds.jettons[loanAsset.ID]
	if !ok {
		fetched, err := l.balances.Jetton(ctx, loanAsset.ID)
		if err != nil {
			l.log.Error("reading jetton balance failed",
				zap.String("asset", loanAsset.Symbol), zap.Error(err))
			return nil, false
		}
		balance = fetched
		funds.jettons[loanAsset.ID] = balance
	}

	// Jetton transfers still burn native coin for the attach value.
	if funds.native.Sign() <= 0 {
		return nil, false
	}
	out := new(big.Int).Sub(balance, loanAsset.BalanceFloor)
	if out.Sign() <= 0 {
		return nil, false
	}
	return out, true
}

func (l *Liquidator) debit(loanAsset *config.Asset, amount, attached *big.Int, funds *ledger) {
	if loanAsset.IsNative() {
		funds.native.Sub(funds.native, attached)
		return
	}
	funds.native.Sub(funds.native, attached)
	if balance, ok := funds.jettons[loanAsset.ID]; ok {
		balance.Sub(balance, amount)
	}
}

func (l *Liquidator) markState(ctx context.Context, id int64, fn func(context.Context, int64) error) {
	if err := fn(ctx, id); err != nil {
		l.log.Error("task state update failed", zap.Int64("taskID", id), zap.Error(err))
	}
}

func (l *Liquidator) releaseAll(ctx context.Context, tasks []*models.LiquidationTask) {
	for _, task := range tasks {
		if err := l.tasks.Release(ctx, task.ID); err != nil {
			l.log.Error("releasing task failed", zap.Int64("taskID", task.ID), zap.Error(err))
		}
	}
}
