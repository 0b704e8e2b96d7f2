package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

// DedupRepository is the processed-transaction log. Postgres is the
// source of truth; Redis fronts it so the scan loop's re-reads of
// recent pages stay off the database.
type DedupRepository struct {
	db    *PostgresDB
	cache *RedisCache
	ttl   time.Duration
}

// NewDedupRepository creates the dedup log. cache may be nil, which
// disables the Redis front.
func NewDedupRepository(db *PostgresDB, cache *RedisCache) *DedupRepository {
	return &DedupRepository{db: db, cache: cache, ttl: time.Hour}
}

func dedupKey(hash string) string { return "tx:seen:" + hash }

// Seen reports whether the transaction hash was already processed.
func (r *DedupRepository) Seen(ctx context.Context, hash string) (bool, error) {
	if r.cache != nil {
		err := r.cache.Client().Get(ctx, dedupKey(hash)).Err()
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, redis.Nil) {
			// Cache trouble is not a reason to stop; fall through to
			// Postgres.
			err = nil
		}
	}

	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM processed_transactions WHERE hash = $1)", hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction %s: %w", hash, err)
	}

	if exists && r.cache != nil {
		_ = r.cache.Client().Set(ctx, dedupKey(hash), 1, r.ttl).Err()
	}
	return exists, nil
}

// MarkSeen records a processed transaction. Safe to call twice.
func (r *DedupRepository) MarkSeen(ctx context.Context, hash string, lt uint64, utime int64) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO processed_transactions (hash, lt, utime, processed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (hash) DO NOTHING`,
		hash, lt, utime,
	)
	if err != nil {
		return fmt.Errorf("failed to mark transaction %s: %w", hash, err)
	}

	if r.cache != nil {
		_ = r.cache.Client().Set(ctx, dedupKey(hash), 1, r.ttl).Err()
	}
	return nil
}

// Cursor returns the scan cursor: the lt of the newest processed
// transaction, zero when the log is empty.
func (r *DedupRepository) Cursor(ctx context.Context) (uint64, error) {
	var lt uint64
	err := r.db.Pool().QueryRow(ctx,
		"SELECT lt FROM processed_transactions ORDER BY lt DESC LIMIT 1",
	).Scan(&lt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read scan cursor: %w", err)
	}
	return lt, nil
}
