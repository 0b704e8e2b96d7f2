package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LiquidationEvent is one settled liquidation archived for offline PnL
// analysis.
type LiquidationEvent struct {
	TxHash          string
	QueryID         uint64
	ContractAddress string
	WalletAddress   string
	LoanAsset       string
	CollateralAsset string

	TransferredAmount  string
	CollateralReward   string
	LiquidatableAmount string
	ProtocolGift       string

	Satisfied bool
	ErrorCode uint32

	ProfitUSD decimal.Decimal
	Margin    decimal.Decimal

	SettledAt time.Time
}

// EventSink archives liquidation outcomes to ClickHouse. A nil sink is
// a valid no-op, used when ClickHouse is not configured.
type EventSink struct {
	db *ClickHouseDB
}

// NewEventSink creates the sink and its table.
func NewEventSink(ctx context.Context, db *ClickHouseDB) (*EventSink, error) {
	ddl := `
		CREATE TABLE IF NOT EXISTS liquidation_events (
			tx_hash             String,
			query_id            UInt64,
			contract_address    String,
			wallet_address      String,
			loan_asset          String,
			collateral_asset    String,
			transferred_amount  String,
			collateral_reward   String,
			liquidatable_amount String,
			protocol_gift       String,
			satisfied           UInt8,
			error_code          UInt32,
			profit_usd          Decimal(38, 9),
			margin              Decimal(18, 9),
			settled_at          DateTime
		) ENGINE = MergeTree()
		ORDER BY (settled_at, query_id)
	`
	if err := db.Conn().Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create liquidation_events table: %w", err)
	}
	return &EventSink{db: db}, nil
}

// Record archives one event.
func (s *EventSink) Record(ctx context.Context, e *LiquidationEvent) error {
	if s == nil {
		return nil
	}

	satisfied := uint8(0)
	if e.Satisfied {
		satisfied = 1
	}

	err := s.db.Conn().Exec(ctx, `
		INSERT INTO liquidation_events (
			tx_hash, query_id, contract_address, wallet_address,
			loan_asset, collateral_asset,
			transferred_amount, collateral_reward, liquidatable_amount, protocol_gift,
			satisfied, error_code, profit_usd, margin, settled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TxHash, e.QueryID, e.ContractAddress, e.WalletAddress,
		e.LoanAsset, e.CollateralAsset,
		e.TransferredAmount, e.CollateralReward, e.LiquidatableAmount, e.ProtocolGift,
		satisfied, e.ErrorCode, e.ProfitUSD, e.Margin, e.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record liquidation event: %w", err)
	}
	return nil
}
