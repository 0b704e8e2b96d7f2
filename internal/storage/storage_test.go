package storage

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
)

func testEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB connects to the test database, applies migrations and wipes
// the tables. Skips when Postgres is not reachable.
func testDB(t *testing.T) *PostgresDB {
	t.Helper()

	cfg := &config.PostgresConfig{
		Host:           testEnv("TEST_POSTGRES_HOST", "localhost"),
		Port:           testEnv("TEST_POSTGRES_PORT", "5432"),
		Database:       testEnv("TEST_POSTGRES_DB", "liquidator_test"),
		User:           testEnv("TEST_POSTGRES_USER", "postgres"),
		Password:       testEnv("TEST_POSTGRES_PASSWORD", "postgres"),
		MaxConnections: 5,
	}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	require.NoError(t, RunMigrations(MigrateURL(cfg), "../../migrations"))

	ctx := context.Background()
	for _, table := range []string{"liquidation_tasks", "swap_tasks", "processed_transactions"} {
		_, err := db.Pool().Exec(ctx, "TRUNCATE "+table)
		require.NoError(t, err)
	}
	_, err = db.Pool().Exec(ctx, "DROP TABLE IF EXISTS accounts")
	require.NoError(t, err)

	return db
}

func bigFromString(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

func testAssets() []config.Asset {
	return []config.Asset{
		{Symbol: "TON", ID: models.AssetIDFromSymbol("TON"), Scale: big.NewInt(1_000_000_000)},
		{Symbol: "USDT", ID: models.AssetIDFromSymbol("USDT"), Scale: big.NewInt(1_000_000)},
	}
}

func newTestTask(queryID uint64) *models.LiquidationTask {
	return &models.LiquidationTask{
		WalletAddress:        "0:17a3a92992aabea785a7a090985a265cd31f323d849da51239737e321fb05569",
		ContractAddress:      "0:3333333333333333333333333333333333333333333333333333333333333333",
		LoanAsset:            models.AssetIDFromSymbol("USDT"),
		CollateralAsset:      models.AssetIDFromSymbol("TON"),
		LiquidationAmount:    big.NewInt(119_047_619),
		MinCollateralAmount:  big.NewInt(24_249_999_990),
		LoanAssetPrice:       big.NewInt(1_000_000_000),
		CollateralAssetPrice: big.NewInt(5_000_000_000),
		PricesCell:           "cHJpY2UgcHJvb2Y=",
		PricesTimestamp:      time.Now().Unix(),
		QueryID:              queryID,
	}
}
