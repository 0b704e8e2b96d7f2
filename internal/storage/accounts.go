package storage

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
)

// AccountRepository persists protocol borrower accounts. The principal
// columns are per-asset and derived from the pool asset table, so the
// schema is finished by EnsureSchema at startup rather than by static
// migrations.
type AccountRepository struct {
	db     *PostgresDB
	assets []config.Asset
}

// NewAccountRepository creates the repository for the given pool asset
// table.
func NewAccountRepository(db *PostgresDB, assets []config.Asset) *AccountRepository {
	return &AccountRepository{db: db, assets: assets}
}

func principalColumn(symbol string) string {
	return "principal_" + strings.ToLower(symbol)
}

// EnsureSchema creates the accounts table and adds one principal
// column per pool asset. Idempotent.
func (r *AccountRepository) EnsureSchema(ctx context.Context) error {
	create := `
		CREATE TABLE IF NOT EXISTS accounts (
			wallet_address   TEXT NOT NULL,
			contract_address TEXT PRIMARY KEY,
			code_version     INTEGER NOT NULL DEFAULT 0,
			sub_account_id   INTEGER NOT NULL DEFAULT 0,
			state            TEXT NOT NULL DEFAULT 'active',
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL,
			actualized_at    BIGINT NOT NULL DEFAULT 0
		)
	`
	if _, err := r.db.Pool().Exec(ctx, create); err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}

	for _, a := range r.assets {
		alter := fmt.Sprintf(
			"ALTER TABLE accounts ADD COLUMN IF NOT EXISTS %s NUMERIC(40,0) NOT NULL DEFAULT 0",
			principalColumn(a.Symbol),
		)
		if _, err := r.db.Pool().Exec(ctx, alter); err != nil {
			return fmt.Errorf("failed to add principal column for %s: %w", a.Symbol, err)
		}
	}
	return nil
}

// Upsert writes an account snapshot. Principals and state only move
// forward: rows carrying an older actualized_at than the stored one
// leave them untouched, while the created/updated window still widens.
func (r *AccountRepository) Upsert(ctx context.Context, account *models.Account) error {
	cols := []string{
		"wallet_address", "contract_address", "code_version", "sub_account_id",
		"state", "created_at", "updated_at", "actualized_at",
	}
	args := []interface{}{
		account.WalletAddress, account.ContractAddress, account.CodeVersion,
		account.SubAccountID, account.State, account.CreatedAt,
		account.UpdatedAt, account.ActualizedAt,
	}

	var guarded []string
	for _, a := range r.assets {
		col := principalColumn(a.Symbol)
		cols = append(cols, col)
		args = append(args, account.Principal(a.ID).String())
		guarded = append(guarded, col)
	}
	guarded = append(guarded, "state", "code_version", "sub_account_id", "wallet_address")

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	var sets []string
	for _, col := range guarded {
		sets = append(sets, fmt.Sprintf(
			"%s = CASE WHEN accounts.actualized_at < EXCLUDED.actualized_at THEN EXCLUDED.%s ELSE accounts.%s END",
			col, col, col,
		))
	}
	sets = append(sets,
		"created_at = LEAST(accounts.created_at, EXCLUDED.created_at)",
		"updated_at = GREATEST(accounts.updated_at, EXCLUDED.updated_at)",
		"actualized_at = GREATEST(accounts.actualized_at, EXCLUDED.actualized_at)",
	)

	query := fmt.Sprintf(`
		INSERT INTO accounts (%s)
		VALUES (%s)
		ON CONFLICT (contract_address) DO UPDATE SET %s`,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(sets, ", "),
	)

	if _, err := r.db.Pool().Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", account.ContractAddress, err)
	}
	return nil
}

func (r *AccountRepository) selectColumns() string {
	cols := []string{
		"wallet_address", "contract_address", "code_version", "sub_account_id",
		"state", "created_at", "updated_at", "actualized_at",
	}
	for _, a := range r.assets {
		cols = append(cols, principalColumn(a.Symbol)+"::text")
	}
	return strings.Join(cols, ", ")
}

func (r *AccountRepository) scanAccount(row interface{ Scan(...interface{}) error }) (*models.Account, error) {
	account := &models.Account{}
	principals := make([]string, len(r.assets))

	dest := []interface{}{
		&account.WalletAddress, &account.ContractAddress, &account.CodeVersion,
		&account.SubAccountID, &account.State, &account.CreatedAt,
		&account.UpdatedAt, &account.ActualizedAt,
	}
	for i := range principals {
		dest = append(dest, &principals[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	for i, a := range r.assets {
		v, ok := new(big.Int).SetString(principals[i], 10)
		if !ok {
			return nil, fmt.Errorf("bad principal %q for %s", principals[i], a.Symbol)
		}
		account.SetPrincipal(a.ID, v)
	}
	return account, nil
}

// GetByContract loads an account by its protocol sub-contract address.
func (r *AccountRepository) GetByContract(ctx context.Context, contractAddress string) (*models.Account, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM accounts WHERE contract_address = $1", r.selectColumns(),
	)
	row := r.db.Pool().QueryRow(ctx, query, contractAddress)
	account, err := r.scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", contractAddress, err)
	}
	return account, nil
}

// ListBorrowers lists active accounts with at least one negative
// principal, the validator's scan set.
func (r *AccountRepository) ListBorrowers(ctx context.Context) ([]*models.Account, error) {
	var negatives []string
	for _, a := range r.assets {
		negatives = append(negatives, principalColumn(a.Symbol)+" < 0")
	}

	query := fmt.Sprintf(
		"SELECT %s FROM accounts WHERE state = $1 AND (%s) ORDER BY updated_at DESC",
		r.selectColumns(), strings.Join(negatives, " OR "),
	)

	rows, err := r.db.Pool().Query(ctx, query, models.AccountStateActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list borrowers: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := r.scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// Count returns the total number of tracked accounts.
func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Pool().QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

// Touch updates only the updated_at timestamp, used by the resync path
// when the chain state did not change.
func (r *AccountRepository) Touch(ctx context.Context, contractAddress string, at time.Time) error {
	_, err := r.db.Pool().Exec(ctx,
		"UPDATE accounts SET updated_at = GREATEST(updated_at, $2) WHERE contract_address = $1",
		contractAddress, at,
	)
	if err != nil {
		return fmt.Errorf("failed to touch account %s: %w", contractAddress, err)
	}
	return nil
}
