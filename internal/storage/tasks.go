package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
)

// TaskRepository persists liquidation tasks. State transitions are
// guarded in SQL with conditional updates so a crashed or concurrent
// tick can never move a task backwards.
type TaskRepository struct {
	db *PostgresDB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *PostgresDB) *TaskRepository {
	return &TaskRepository{db: db}
}

// ErrNoTransition is returned when a guarded state update matched no row.
var ErrNoTransition = errors.New("task not in expected state")

const taskColumns = `
	id, wallet_address, contract_address, loan_asset, collateral_asset,
	liquidation_amount::text, min_collateral_amount::text,
	loan_asset_price::text, collateral_asset_price::text,
	prices_cell, prices_timestamp, query_id::text, state,
	created_at, updated_at
`

// Create inserts a fresh pending task and fills in its id.
func (r *TaskRepository) Create(ctx context.Context, task *models.LiquidationTask) error {
	now := time.Now().UTC()
	task.State = models.TaskStatePending
	task.CreatedAt = now
	task.UpdatedAt = now

	query := `
		INSERT INTO liquidation_tasks (
			wallet_address, contract_address, loan_asset, collateral_asset,
			liquidation_amount, min_collateral_amount,
			loan_asset_price, collateral_asset_price,
			prices_cell, prices_timestamp, query_id, state,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8::numeric,$9,$10,$11::numeric,$12,$13,$14)
		RETURNING id
	`

	err := r.db.Pool().QueryRow(ctx, query,
		task.WalletAddress, task.ContractAddress,
		task.LoanAsset.Hex(), task.CollateralAsset.Hex(),
		task.LiquidationAmount.String(), task.MinCollateralAmount.String(),
		task.LoanAssetPrice.String(), task.CollateralAssetPrice.String(),
		task.PricesCell, task.PricesTimestamp,
		strconv.FormatUint(task.QueryID, 10), task.State,
		task.CreatedAt, task.UpdatedAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("failed to create liquidation task: %w", err)
	}
	return nil
}

// HasFresh reports whether the account already has a task inside its
// state's freshness window. Used to suppress duplicate task creation.
func (r *TaskRepository) HasFresh(ctx context.Context, contractAddress string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM liquidation_tasks
			WHERE contract_address = $1
			  AND $2 - updated_at < CASE state
			      WHEN 'pending' THEN interval '60 seconds'
			      WHEN 'processing' THEN interval '60 seconds'
			      WHEN 'sent' THEN interval '300 seconds'
			      WHEN 'success' THEN interval '10 seconds'
			      WHEN 'unsatisfied' THEN interval '10 seconds'
			      WHEN 'insufficient_balance' THEN interval '300 seconds'
			      ELSE interval '0 seconds'
			  END
		)
	`
	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, contractAddress, now.UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check fresh task for %s: %w", contractAddress, err)
	}
	return exists, nil
}

// TakePending atomically claims up to limit pending tasks, moving them
// to processing.
func (r *TaskRepository) TakePending(ctx context.Context, limit int) ([]*models.LiquidationTask, error) {
	query := fmt.Sprintf(`
		UPDATE liquidation_tasks SET state = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM liquidation_tasks
			WHERE state = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, taskColumns)

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// MarkSent moves a processing task to sent and stamps the query id the
// message carries.
func (r *TaskRepository) MarkSent(ctx context.Context, id int64, queryID uint64) error {
	return r.transition(ctx,
		`UPDATE liquidation_tasks
		 SET state = 'sent', query_id = $2::numeric, updated_at = NOW()
		 WHERE id = $1 AND state = 'processing'`,
		id, strconv.FormatUint(queryID, 10))
}

// MarkInsufficientBalance cancels a processing task the wallet cannot fund.
func (r *TaskRepository) MarkInsufficientBalance(ctx context.Context, id int64) error {
	return r.transition(ctx,
		`UPDATE liquidation_tasks
		 SET state = 'insufficient_balance', updated_at = NOW()
		 WHERE id = $1 AND state = 'processing'`,
		id)
}

// MarkUnsatisfied cancels a processing task before broadcast, used
// when its price snapshot went stale.
func (r *TaskRepository) MarkUnsatisfied(ctx context.Context, id int64) error {
	return r.transition(ctx,
		`UPDATE liquidation_tasks
		 SET state = 'unsatisfied', updated_at = NOW()
		 WHERE id = $1 AND state = 'processing'`,
		id)
}

// Release returns a processing task to pending after a transient
// dispatch failure.
func (r *TaskRepository) Release(ctx context.Context, id int64) error {
	return r.transition(ctx,
		`UPDATE liquidation_tasks
		 SET state = 'pending', updated_at = NOW()
		 WHERE id = $1 AND state = 'processing'`,
		id)
}

func (r *TaskRepository) transition(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed task transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoTransition
	}
	return nil
}

// SettleByQueryID resolves a sent task from an on-chain settlement
// report and returns it.
func (r *TaskRepository) SettleByQueryID(ctx context.Context, queryID uint64, state models.TaskState) (*models.LiquidationTask, error) {
	query := fmt.Sprintf(`
		UPDATE liquidation_tasks
		SET state = $2, updated_at = NOW()
		WHERE query_id = $1::numeric AND state = 'sent'
		RETURNING %s`, taskColumns)

	row := r.db.Pool().QueryRow(ctx, query, strconv.FormatUint(queryID, 10), state)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoTransition
		}
		return nil, fmt.Errorf("failed to settle task by query id %d: %w", queryID, err)
	}
	return task, nil
}

// ExpireStaleSent reaps sent tasks whose settlement never arrived
// inside the sent TTL, marking them unsatisfied.
func (r *TaskRepository) ExpireStaleSent(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE liquidation_tasks
		SET state = 'unsatisfied', updated_at = NOW()
		WHERE state = 'sent' AND NOW() - updated_at > interval '300 seconds'
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale sent tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOld removes tasks past the retention window.
func (r *TaskRepository) DeleteOld(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx,
		"DELETE FROM liquidation_tasks WHERE created_at < NOW() - interval '7 days'")
	if err != nil {
		return 0, fmt.Errorf("failed to delete old tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByState returns the number of tasks per state.
func (r *TaskRepository) CountByState(ctx context.Context) (map[models.TaskState]int64, error) {
	rows, err := r.db.Pool().Query(ctx,
		"SELECT state, COUNT(*) FROM liquidation_tasks GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	out := make(map[models.TaskState]int64)
	for rows.Next() {
		var state models.TaskState
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		out[state] = n
	}
	return out, rows.Err()
}

func scanTasks(rows pgx.Rows) ([]*models.LiquidationTask, error) {
	var tasks []*models.LiquidationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row interface{ Scan(...interface{}) error }) (*models.LiquidationTask, error) {
	task := &models.LiquidationTask{}
	var loanAsset, collateralAsset string
	var amount, minCollateral, loanPrice, collateralPrice, queryID string

	if err := row.Scan(
		&task.ID, &task.WalletAddress, &task.ContractAddress,
		&loanAsset, &collateralAsset,
		&amount, &minCollateral, &loanPrice, &collateralPrice,
		&task.PricesCell, &task.PricesTimestamp, &queryID, &task.State,
		&task.CreatedAt, &task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if task.LoanAsset, err = models.ParseAssetID(loanAsset); err != nil {
		return nil, err
	}
	if task.CollateralAsset, err = models.ParseAssetID(collateralAsset); err != nil {
		return nil, err
	}

	var ok bool
	if task.LiquidationAmount, ok = new(big.Int).SetString(amount, 10); !ok {
		return nil, fmt.Errorf("bad liquidation amount %q", amount)
	}
	if task.MinCollateralAmount, ok = new(big.Int).SetString(minCollateral, 10); !ok {
		return nil, fmt.Errorf("bad min collateral %q", minCollateral)
	}
	if task.LoanAssetPrice, ok = new(big.Int).SetString(loanPrice, 10); !ok {
		return nil, fmt.Errorf("bad loan price %q", loanPrice)
	}
	if task.CollateralAssetPrice, ok = new(big.Int).SetString(collateralPrice, 10); !ok {
		return nil, fmt.Errorf("bad collateral price %q", collateralPrice)
	}
	if task.QueryID, err = strconv.ParseUint(queryID, 10, 64); err != nil {
		return nil, fmt.Errorf("bad query id %q: %w", queryID, err)
	}
	return task, nil
}
