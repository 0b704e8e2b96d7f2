package models

import (
	"math/big"
	"time"
)

// TaskState is the lifecycle state of a liquidation task.
type TaskState string

const (
	// TaskStatePending is a freshly created task awaiting dispatch.
	TaskStatePending TaskState = "pending"
	// TaskStateProcessing marks a task claimed by the liquidator tick.
	TaskStateProcessing TaskState = "processing"
	// TaskStateSent marks a task whose message was broadcast.
	TaskStateSent TaskState = "sent"
	// TaskStateSuccess marks a task settled by a satisfied report.
	TaskStateSuccess TaskState = "success"
	// TaskStateUnsatisfied marks a task rejected by the protocol.
	TaskStateUnsatisfied TaskState = "unsatisfied"
	// TaskStateInsufficientBalance marks a task cancelled because the
	// wallet could not fund it.
	TaskStateInsufficientBalance TaskState = "insufficient_balance"
)

// StateTTL is how long a task may sit in each state before the sweeper
// expires it.
var StateTTL = map[TaskState]time.Duration{
	TaskStatePending:             60 * time.Second,
	TaskStateProcessing:          60 * time.Second,
	TaskStateSent:                300 * time.Second,
	TaskStateSuccess:             10 * time.Second,
	TaskStateUnsatisfied:         10 * time.Second,
	TaskStateInsufficientBalance: 300 * time.Second,
}

// TaskRetention is how long settled tasks stay in the table before
// deletion.
const TaskRetention = 7 * 24 * time.Hour

// LiquidationTask is one decided liquidation: which account, which
// loan and collateral assets, the sized amounts and the price proof
// captured at decision time.
type LiquidationTask struct {
	ID              int64
	WalletAddress   string
	ContractAddress string

	LoanAsset           AssetID
	CollateralAsset     AssetID
	LiquidationAmount   *big.Int
	MinCollateralAmount *big.Int

	// Price snapshot at decision time: loan and collateral asset
	// prices plus the serialized proof forwarded on-chain.
	LoanAssetPrice       *big.Int
	CollateralAssetPrice *big.Int
	PricesCell           string
	PricesTimestamp      int64

	QueryID uint64
	State   TaskState

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SwapTask queues a collected collateral reward for conversion back to
// the base asset.
type SwapTask struct {
	ID          int64
	TokenOffer  AssetID
	TokenAsk    AssetID
	SwapAmount  *big.Int
	State       TaskState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
