package storage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
)

// SwapRepository queues collected collateral rewards for conversion
// back to the base asset. An external swap worker drains the queue.
type SwapRepository struct {
	db *PostgresDB
}

// NewSwapRepository creates a new swap repository.
func NewSwapRepository(db *PostgresDB) *SwapRepository {
	return &SwapRepository{db: db}
}

// Create enqueues a pending swap task.
func (r *SwapRepository) Create(ctx context.Context, task *models.SwapTask) error {
	query := `
		INSERT INTO swap_tasks (token_offer, token_ask, swap_amount, state, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, 'pending', NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := r.db.Pool().QueryRow(ctx, query,
		task.TokenOffer.Hex(), task.TokenAsk.Hex(), task.SwapAmount.String(),
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create swap task: %w", err)
	}
	task.State = models.TaskStatePending
	return nil
}

// ListPending returns queued swaps oldest first.
func (r *SwapRepository) ListPending(ctx context.Context, limit int) ([]*models.SwapTask, error) {
	query := `
		SELECT id, token_offer, token_ask, swap_amount::text, state, created_at, updated_at
		FROM swap_tasks
		WHERE state = 'pending'
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending swaps: %w", err)
	}
	defer rows.Close()

	var tasks []*models.SwapTask
	for rows.Next() {
		task, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanSwap(rows pgx.Rows) (*models.SwapTask, error) {
	task := &models.SwapTask{}
	var offer, ask, amount string
	if err := rows.Scan(&task.ID, &offer, &ask, &amount, &task.State,
		&task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan swap task: %w", err)
	}

	var err error
	if task.TokenOffer, err = models.ParseAssetID(offer); err != nil {
		return nil, err
	}
	if task.TokenAsk, err = models.ParseAssetID(ask); err != nil {
		return nil, err
	}
	var ok bool
	if task.SwapAmount, ok = new(big.Int).SetString(amount, 10); !ok {
		return nil, fmt.Errorf("bad swap amount %q", amount)
	}
	return task, nil
}
