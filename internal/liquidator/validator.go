package liquidator

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/oracle"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/protocol"
)

// AccountSource lists the accounts the validator scans.
type AccountSource interface {
	ListBorrowers(ctx context.Context) ([]*models.Account, error)
}

// TaskCreator is the slice of the task repository the validator needs.
type TaskCreator interface {
	Create(ctx context.Context, task *models.LiquidationTask) error
	HasFresh(ctx context.Context, contractAddress string, now time.Time) (bool, error)
}

// PriceSource yields the current validated price snapshot.
type PriceSource interface {
	Current() (*oracle.Snapshot, error)
}

// MasterSource refreshes the master contract view.
type MasterSource interface {
	Sync(ctx context.Context) (*protocol.MasterState, error)
}

// Validator periodically scans borrower accounts and turns unhealthy
// ones into pending liquidation tasks.
type Validator struct {
	accounts AccountSource
	tasks    TaskCreator
	master   MasterSource
	prices   PriceSource
	pool     *config.Pool
	strategy Strategy

	walletAddress string
	maxPriceAge   time.Duration
	log           *zap.Logger

	busy atomic.Bool
}

// NewValidator wires the validator tick.
func NewValidator(
	accounts AccountSource,
	tasks TaskCreator,
	master MasterSource,
	prices PriceSource,
	pool *config.Pool,
	strategy Strategy,
	walletAddress string,
	maxPriceAge time.Duration,
	log *zap.Logger,
) *Validator {
	return &Validator{
		accounts:      accounts,
		tasks:         tasks,
		master:        master,
		prices:        prices,
		pool:          pool,
		strategy:      strategy,
		walletAddress: walletAddress,
		maxPriceAge:   maxPriceAge,
		log:           log.Named("validator"),
	}
}

// Run ticks until ctx is cancelled.
func (v *Validator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Tick(ctx)
		}
	}
}

// Tick runs one validation pass. Overlapping ticks are skipped.
func (v *Validator) Tick(ctx context.Context) {
	if !v.busy.CompareAndSwap(false, true) {
		v.log.Debug("previous validation pass still running, skipping")
		return
	}
	defer v.busy.Store(false)

	now := time.Now()

	snapshot, err := v.prices.Current()
	if err != nil {
		v.log.Warn("no price snapshot, skipping pass", zap.Error(err))
		return
	}
	if !snapshot.IsFresh(now, v.maxPriceAge) {
		v.log.Warn("price snapshot too old, skipping pass",
			zap.Duration("age", snapshot.Age(now)))
		return
	}

	state, err := v.master.Sync(ctx)
	if err != nil {
		v.log.Error("master sync failed", zap.Error(err))
		return
	}

	accounts, err := v.accounts.ListBorrowers(ctx)
	if err != nil {
		v.log.Error("listing borrowers failed", zap.Error(err))
		return
	}

	created := 0
	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}
		if v.checkAccount(ctx, account, state, snapshot, now) {
			created++
		}
	}

	if created > 0 {
		v.log.Info("validation pass finished",
			zap.Int("accounts", len(accounts)),
			zap.Int("tasksCreated", created))
	}
}

// checkAccount evaluates one account and creates a task when it is
// liquidatable. Returns true when a task was created.
func (v *Validator) checkAccount(ctx context.Context, account *models.Account, state *protocol.MasterState, snapshot *oracle.Snapshot, now time.Time) bool {
	eval, err := EvaluateAccount(account, state, snapshot, v.pool)
	if err != nil {
		v.log.Debug("account evaluation failed",
			zap.String("contract", account.ContractAddress), zap.Error(err))
		return false
	}
	if !eval.Liquidatable() {
		return false
	}

	loan, ok := SelectLoan(eval.Borrows)
	if !ok {
		return false
	}
	collateral, ok := SelectCollateral(eval.Supplies, v.strategy)
	if !ok {
		return false
	}

	fresh, err := v.tasks.HasFresh(ctx, account.ContractAddress, now)
	if err != nil {
		v.log.Error("fresh task check failed",
			zap.String("contract", account.ContractAddress), zap.Error(err))
		return false
	}
	if fresh {
		return false
	}

	quote, task, err := v.buildTask(account, loan, collateral, state, snapshot)
	if err != nil {
		v.log.Warn("task sizing failed",
			zap.String("contract", account.ContractAddress), zap.Error(err))
		return false
	}
	if quote.RewardWorth.Cmp(MinCollateralWorth) < 0 {
		v.log.Debug("reward under worth floor, skipping",
			zap.String("contract", account.ContractAddress),
			zap.String("rewardWorth", quote.RewardWorth.String()))
		return false
	}

	if err := v.tasks.Create(ctx, task); err != nil {
		v.log.Error("task creation failed",
			zap.String("contract", account.ContractAddress), zap.Error(err))
		return false
	}

	v.log.Info("liquidation task created",
		zap.Int64("taskID", task.ID),
		zap.String("contract", account.ContractAddress),
		zap.String("loanAsset", task.LoanAsset.Hex()),
		zap.String("collateralAsset", task.CollateralAsset.Hex()),
		zap.String("amount", task.LiquidationAmount.String()),
		zap.String("minCollateral", task.MinCollateralAmount.String()))
	return true
}

func (v *Validator) buildTask(account *models.Account, loan, collateral Position, state *protocol.MasterState, snapshot *oracle.Snapshot) (*Quote, *models.LiquidationTask, error) {
	loanAsset, err := v.pool.AssetByID(loan.Asset)
	if err != nil {
		return nil, nil, err
	}
	collateralAsset, err := v.pool.AssetByID(collateral.Asset)
	if err != nil {
		return nil, nil, err
	}
	loanPrice, err := snapshot.PriceFor(loan.Asset)
	if err != nil {
		return nil, nil, err
	}
	collateralPrice, err := snapshot.PriceFor(collateral.Asset)
	if err != nil {
		return nil, nil, err
	}
	loanCfg, err := state.Config(loan.Asset)
	if err != nil {
		return nil, nil, err
	}
	collateralCfg, err := state.Config(collateral.Asset)
	if err != nil {
		return nil, nil, err
	}
	loanData, err := state.DataFor(loan.Asset)
	if err != nil {
		return nil, nil, err
	}
	collateralData, err := state.DataFor(collateral.Asset)
	if err != nil {
		return nil, nil, err
	}

	quote := SizeLiquidation(loan, collateral,
		loanAsset, collateralAsset, loanPrice, collateralPrice,
		loanCfg, collateralCfg, loanData, collateralData)

	task := &models.LiquidationTask{
		WalletAddress:        account.WalletAddress,
		ContractAddress:      account.ContractAddress,
		LoanAsset:            loan.Asset,
		CollateralAsset:      collateral.Asset,
		LiquidationAmount:    quote.LiquidationAmount,
		MinCollateralAmount:  quote.MinCollateralAmount,
		LoanAssetPrice:       loanPrice,
		CollateralAssetPrice: collateralPrice,
		PricesCell:           snapshot.ProofBase64(),
		PricesTimestamp:      snapshot.Timestamp,
		QueryID:              uint64(time.Now().UnixMilli()),
	}
	return quote, task, nil
}
