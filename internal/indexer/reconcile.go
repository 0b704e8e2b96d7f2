package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/liquidator"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/notify"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/protocol"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/storage"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

// TaskSettler resolves sent tasks against on-chain settlement reports.
type TaskSettler interface {
	SettleByQueryID(ctx context.Context, queryID uint64, state models.TaskState) (*models.LiquidationTask, error)
}

// SwapCreator enqueues post-liquidation swaps.
type SwapCreator interface {
	Create(ctx context.Context, task *models.SwapTask) error
}

// EventRecorder archives settled liquidations.
type EventRecorder interface {
	Record(ctx context.Context, e *storage.LiquidationEvent) error
}

// Reconciler matches settlement reports to the bot's own sent tasks,
// realizes their outcome and queues the collateral swap follow-up.
type Reconciler struct {
	tasks    TaskSettler
	swaps    SwapCreator
	sink     EventRecorder
	pool     *config.Pool
	notifier notify.Notifier
	log      *zap.Logger
}

// NewReconciler wires the reconciler. sink may be nil.
func NewReconciler(tasks TaskSettler, swaps SwapCreator, sink EventRecorder, pool *config.Pool, notifier notify.Notifier, log *zap.Logger) *Reconciler {
	return &Reconciler{
		tasks:    tasks,
		swaps:    swaps,
		sink:     sink,
		pool:     pool,
		notifier: notifier,
		log:      log.Named("reconciler"),
	}
}

// OnSatisfied handles a liquidate-satisfied settlement.
func (r *Reconciler) OnSatisfied(ctx context.Context, tx *ton.Transaction, report *protocol.SatisfiedReport) {
	task, err := r.tasks.SettleByQueryID(ctx, report.QueryID, models.TaskStateSuccess)
	if err != nil {
		if errors.Is(err, storage.ErrNoTransition) {
			r.log.Debug("satisfied settlement for a foreign liquidation",
				zap.Uint64("queryID", report.QueryID))
			return
		}
		r.log.Error("settling satisfied task failed",
			zap.Uint64("queryID", report.QueryID), zap.Error(err))
		return
	}

	profit, margin := r.realizedProfit(task, report)

	r.log.Info("liquidation satisfied",
		zap.Int64("taskID", task.ID),
		zap.Uint64("queryID", report.QueryID),
		zap.String("reward", report.CollateralRewardAmount.String()),
		zap.String("profitUSD", profit.StringFixed(4)))

	r.notifier.Notify(ctx, fmt.Sprintf(
		"liquidation satisfied: task %d, profit $%s (margin %s)",
		task.ID, profit.StringFixed(4), margin.StringFixed(4)))

	if r.sink != nil {
		event := &storage.LiquidationEvent{
			TxHash:             tx.Hash,
			QueryID:            report.QueryID,
			ContractAddress:    task.ContractAddress,
			WalletAddress:      task.WalletAddress,
			LoanAsset:          r.symbolFor(task.LoanAsset),
			CollateralAsset:    r.symbolFor(task.CollateralAsset),
			TransferredAmount:  task.LiquidationAmount.String(),
			CollateralReward:   report.CollateralRewardAmount.String(),
			LiquidatableAmount: report.LiquidatableAmount.String(),
			ProtocolGift:       report.ProtocolGift.String(),
			Satisfied:          true,
			ProfitUSD:          profit,
			Margin:             margin,
			SettledAt:          time.Unix(tx.Utime, 0).UTC(),
		}
		if err := r.sink.Record(ctx, event); err != nil {
			r.log.Warn("recording liquidation event failed", zap.Error(err))
		}
	}

	r.maybeQueueSwap(ctx, task, report)
}

// OnUnsatisfied handles a liquidate-unsatisfied settlement.
func (r *Reconciler) OnUnsatisfied(ctx context.Context, tx *ton.Transaction, report *protocol.UnsatisfiedReport) {
	task, err := r.tasks.SettleByQueryID(ctx, report.QueryID, models.TaskStateUnsatisfied)
	if err != nil {
		if errors.Is(err, storage.ErrNoTransition) {
			r.log.Debug("unsatisfied settlement for a foreign liquidation",
				zap.Uint64("queryID", report.QueryID))
			return
		}
		r.log.Error("settling unsatisfied task failed",
			zap.Uint64("queryID", report.QueryID), zap.Error(err))
		return
	}

	reason := protocol.ErrorCodeName(report.ErrorCode)
	r.log.Warn("liquidation unsatisfied",
		zap.Int64("taskID", task.ID),
		zap.Uint64("queryID", report.QueryID),
		zap.Uint32("errorCode", report.ErrorCode),
		zap.String("reason", reason))

	r.notifier.Notify(ctx, fmt.Sprintf(
		"liquidation unsatisfied: task %d, code 0x%X (%s)",
		task.ID, report.ErrorCode, reason))

	if r.sink != nil {
		event := &storage.LiquidationEvent{
			TxHash:             tx.Hash,
			QueryID:            report.QueryID,
			ContractAddress:    task.ContractAddress,
			WalletAddress:      task.WalletAddress,
			LoanAsset:          r.symbolFor(task.LoanAsset),
			CollateralAsset:    r.symbolFor(task.CollateralAsset),
			TransferredAmount:  report.TransferredAmount.String(),
			CollateralReward:   "0",
			LiquidatableAmount: "0",
			ProtocolGift:       "0",
			Satisfied:          false,
			ErrorCode:          report.ErrorCode,
			ProfitUSD:          decimal.Zero,
			Margin:             decimal.Zero,
			SettledAt:          time.Unix(tx.Utime, 0).UTC(),
		}
		if err := r.sink.Record(ctx, event); err != nil {
			r.log.Warn("recording liquidation event failed", zap.Error(err))
		}
	}
}

// realizedProfit prices the settlement at the task's captured prices:
// reward value minus what was actually debited (liquidatable amount
// plus the protocol gift).
func (r *Reconciler) realizedProfit(task *models.LiquidationTask, report *protocol.SatisfiedReport) (profit, margin decimal.Decimal) {
	loanAsset, err := r.pool.AssetByID(task.LoanAsset)
	if err != nil {
		return decimal.Zero, decimal.Zero
	}
	collateralAsset, err := r.pool.AssetByID(task.CollateralAsset)
	if err != nil {
		return decimal.Zero, decimal.Zero
	}

	rewardValue := new(big.Int).Mul(report.CollateralRewardAmount, task.CollateralAssetPrice)
	rewardValue.Quo(rewardValue, collateralAsset.Scale)

	debited := new(big.Int).Add(report.LiquidatableAmount, report.ProtocolGift)
	debitValue := new(big.Int).Mul(debited, task.LoanAssetPrice)
	debitValue.Quo(debitValue, loanAsset.Scale)

	profit = decimal.NewFromBigInt(new(big.Int).Sub(rewardValue, debitValue), -9)

	if debitValue.Sign() > 0 {
		margin = profit.Div(decimal.NewFromBigInt(debitValue, -9))
	}
	return profit, margin
}

// maybeQueueSwap enqueues the collected collateral for conversion back
// to the loan asset when it is worth the trip and the pair is allowed.
func (r *Reconciler) maybeQueueSwap(ctx context.Context, task *models.LiquidationTask, report *protocol.SatisfiedReport) {
	collateralAsset, err := r.pool.AssetByID(task.CollateralAsset)
	if err != nil {
		return
	}
	loanAsset, err := r.pool.AssetByID(task.LoanAsset)
	if err != nil {
		return
	}

	rewardValue := new(big.Int).Mul(report.CollateralRewardAmount, task.CollateralAssetPrice)
	rewardValue.Quo(rewardValue, collateralAsset.Scale)

	if rewardValue.Cmp(liquidator.MinWorthSwapLimit) < 0 {
		return
	}
	if collateralAsset.BannedSwapFrom || loanAsset.BannedSwapTo || task.CollateralAsset == task.LoanAsset {
		r.notifier.Notify(ctx, fmt.Sprintf(
			"swap cancelled for task %d: %s -> %s is not allowed",
			task.ID, collateralAsset.Symbol, loanAsset.Symbol))
		return
	}

	swap := &models.SwapTask{
		TokenOffer: task.CollateralAsset,
		TokenAsk:   task.LoanAsset,
		SwapAmount: report.CollateralRewardAmount,
	}
	if err := r.swaps.Create(ctx, swap); err != nil {
		r.log.Error("queueing swap task failed", zap.Int64("taskID", task.ID), zap.Error(err))
		return
	}
	r.log.Info("swap task queued",
		zap.Int64("swapID", swap.ID),
		zap.String("offer", collateralAsset.Symbol),
		zap.String("ask", loanAsset.Symbol),
		zap.String("amount", swap.SwapAmount.String()))
}

func (r *Reconciler) symbolFor(asset models.AssetID) string {
	if a, err := r.pool.AssetByID(asset); err == nil {
		return a.Symbol
	}
	return asset.Hex()
}
