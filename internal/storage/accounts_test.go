package storage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
)

func testAccountRepo(t *testing.T) *AccountRepository {
	t.Helper()

	db := testDB(t)
	repo := NewAccountRepository(db, testAssets())
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func newTestAccount(contract string, actualizedAt int64) *models.Account {
	now := time.Now().UTC().Truncate(time.Second)
	account := &models.Account{
		WalletAddress:   "0:17a3a92992aabea785a7a090985a265cd31f323d849da51239737e321fb05569",
		ContractAddress: contract,
		CodeVersion:     6,
		SubAccountID:    0,
		State:           models.AccountStateActive,
		CreatedAt:       now,
		UpdatedAt:       now,
		ActualizedAt:    actualizedAt,
	}
	account.SetPrincipal(models.AssetIDFromSymbol("TON"), big.NewInt(50_000_000_000))
	account.SetPrincipal(models.AssetIDFromSymbol("USDT"), big.NewInt(-120_000_000))
	return account
}

func TestAccountEnsureSchemaIdempotent(t *testing.T) {
	repo := testAccountRepo(t)

	// A second run must not fail on existing table or columns.
	require.NoError(t, repo.EnsureSchema(context.Background()))
}

func TestAccountUpsertAndGet(t *testing.T) {
	repo := testAccountRepo(t)
	ctx := context.Background()

	account := newTestAccount("0:1111111111111111111111111111111111111111111111111111111111111111", 100)
	require.NoError(t, repo.Upsert(ctx, account))

	got, err := repo.GetByContract(ctx, account.ContractAddress)
	require.NoError(t, err)

	assert.Equal(t, account.WalletAddress, got.WalletAddress)
	assert.Equal(t, int32(6), got.CodeVersion)
	assert.Equal(t, models.AccountStateActive, got.State)
	assert.Equal(t, int64(100), got.ActualizedAt)
	assert.Equal(t, 0, got.Principal(models.AssetIDFromSymbol("TON")).Cmp(big.NewInt(50_000_000_000)))
	assert.Equal(t, 0, got.Principal(models.AssetIDFromSymbol("USDT")).Cmp(big.NewInt(-120_000_000)))
}

func TestAccountUpsertForwardOnly(t *testing.T) {
	repo := testAccountRepo(t)
	ctx := context.Background()

	contract := "0:2222222222222222222222222222222222222222222222222222222222222222"

	current := newTestAccount(contract, 200)
	require.NoError(t, repo.Upsert(ctx, current))

	// A resync carrying older chain state must not move principals or
	// state backwards.
	stale := newTestAccount(contract, 150)
	stale.State = models.AccountStateFrozen
	stale.SetPrincipal(models.AssetIDFromSymbol("USDT"), big.NewInt(-999))
	require.NoError(t, repo.Upsert(ctx, stale))

	got, err := repo.GetByContract(ctx, contract)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStateActive, got.State)
	assert.Equal(t, int64(200), got.ActualizedAt)
	assert.Equal(t, 0, got.Principal(models.AssetIDFromSymbol("USDT")).Cmp(big.NewInt(-120_000_000)))

	// A fresher snapshot wins.
	fresh := newTestAccount(contract, 300)
	fresh.SetPrincipal(models.AssetIDFromSymbol("USDT"), big.NewInt(-45_000_000))
	require.NoError(t, repo.Upsert(ctx, fresh))

	got, err = repo.GetByContract(ctx, contract)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.ActualizedAt)
	assert.Equal(t, 0, got.Principal(models.AssetIDFromSymbol("USDT")).Cmp(big.NewInt(-45_000_000)))
}

func TestAccountUpsertWidensWindow(t *testing.T) {
	repo := testAccountRepo(t)
	ctx := context.Background()

	contract := "0:4444444444444444444444444444444444444444444444444444444444444444"
	base := time.Now().UTC().Truncate(time.Second)

	first := newTestAccount(contract, 100)
	first.CreatedAt = base
	first.UpdatedAt = base
	require.NoError(t, repo.Upsert(ctx, first))

	// Older created_at and newer updated_at both stick even when the
	// row itself is stale.
	second := newTestAccount(contract, 50)
	second.CreatedAt = base.Add(-time.Hour)
	second.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, repo.Upsert(ctx, second))

	got, err := repo.GetByContract(ctx, contract)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(base.Add(-time.Hour)))
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Hour)))
	assert.Equal(t, int64(100), got.ActualizedAt)
}

func TestAccountListBorrowers(t *testing.T) {
	repo := testAccountRepo(t)
	ctx := context.Background()

	borrower := newTestAccount("0:5555555555555555555555555555555555555555555555555555555555555555", 100)
	require.NoError(t, repo.Upsert(ctx, borrower))

	supplier := newTestAccount("0:6666666666666666666666666666666666666666666666666666666666666666", 100)
	supplier.SetPrincipal(models.AssetIDFromSymbol("USDT"), big.NewInt(7_000_000))
	require.NoError(t, repo.Upsert(ctx, supplier))

	frozen := newTestAccount("0:7777777777777777777777777777777777777777777777777777777777777777", 100)
	frozen.State = models.AccountStateFrozen
	require.NoError(t, repo.Upsert(ctx, frozen))

	borrowers, err := repo.ListBorrowers(ctx)
	require.NoError(t, err)
	require.Len(t, borrowers, 1)
	assert.Equal(t, borrower.ContractAddress, borrowers[0].ContractAddress)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestAccountTouch(t *testing.T) {
	repo := testAccountRepo(t)
	ctx := context.Background()

	account := newTestAccount("0:8888888888888888888888888888888888888888888888888888888888888888", 100)
	require.NoError(t, repo.Upsert(ctx, account))

	at := account.UpdatedAt.Add(10 * time.Minute)
	require.NoError(t, repo.Touch(ctx, account.ContractAddress, at))

	got, err := repo.GetByContract(ctx, account.ContractAddress)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(at))

	// Touching backwards is a no-op.
	require.NoError(t, repo.Touch(ctx, account.ContractAddress, account.UpdatedAt))
	got, err = repo.GetByContract(ctx, account.ContractAddress)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(at))
}
