package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ratelimit"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

// BalanceClient is the slice of the chain client the balance reader
// needs.
type BalanceClient interface {
	GetBalance(ctx context.Context, addr ton.Address) (*big.Int, error)
	RunGetMethod(ctx context.Context, addr ton.Address, method string) (*ton.RunResult, error)
}

// Balances reads the wallet's spendable funds per pool asset.
type Balances struct {
	client BalanceClient
	spacer *ratelimit.CallSpacer
	pool   *config.Pool
	owner  ton.Address
}

// NewBalances builds the reader for the wallet address.
func NewBalances(client BalanceClient, spacer *ratelimit.CallSpacer, pool *config.Pool, owner ton.Address) *Balances {
	return &Balances{client: client, spacer: spacer, pool: pool, owner: owner}
}

// Native returns the wallet's nanoton balance.
func (b *Balances) Native(ctx context.Context) (*big.Int, error) {
	if err := b.spacer.Wait(ctx); err != nil {
		return nil, err
	}
	return b.client.GetBalance(ctx, b.owner)
}

// Jetton returns the wallet's balance of the given jetton asset, read
// from its configured jetton wallet via get_wallet_data.
func (b *Balances) Jetton(ctx context.Context, asset models.AssetID) (*big.Int, error) {
	cfg, err := b.pool.AssetByID(asset)
	if err != nil {
		return nil, err
	}
	if cfg.IsNative() {
		return b.Native(ctx)
	}
	if cfg.JettonWallet == "" {
		return nil, fmt.Errorf("no jetton wallet configured for %s", cfg.Symbol)
	}
	jw, err := ton.ParseAddress(cfg.JettonWallet)
	if err != nil {
		return nil, fmt.Errorf("jetton wallet for %s: %w", cfg.Symbol, err)
	}

	if err := b.spacer.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := b.client.RunGetMethod(ctx, jw, "get_wallet_data")
	if err != nil {
		return nil, fmt.Errorf("read jetton balance for %s: %w", cfg.Symbol, err)
	}
	balance, err := res.Num(0)
	if err != nil {
		return nil, fmt.Errorf("jetton balance for %s: %w", cfg.Symbol, err)
	}
	return balance, nil
}
