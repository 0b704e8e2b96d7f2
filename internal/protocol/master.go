package protocol

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/ratelimit"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

// GetMethodRunner is the slice of the chain client the master sync
// needs.
type GetMethodRunner interface {
	RunGetMethod(ctx context.Context, addr ton.Address, method string) (*ton.RunResult, error)
}

// MasterSync keeps a cached view of the master contract's asset
// configuration and dynamic state, refreshed before every validator
// pass.
type MasterSync struct {
	client GetMethodRunner
	spacer *ratelimit.CallSpacer
	master ton.Address
	log    *zap.Logger

	state atomic.Pointer[MasterState]
}

// NewMasterSync builds the sync for the given master contract.
func NewMasterSync(client GetMethodRunner, spacer *ratelimit.CallSpacer, master ton.Address, log *zap.Logger) *MasterSync {
	return &MasterSync{
		client: client,
		spacer: spacer,
		master: master,
		log:    log.Named("master-sync"),
	}
}

// State returns the last synced master state, nil before the first
// successful sync.
func (m *MasterSync) State() *MasterState {
	return m.state.Load()
}

// Sync fetches both master dictionaries and swaps in the fresh state.
func (m *MasterSync) Sync(ctx context.Context) (*MasterState, error) {
	start := time.Now()

	if err := m.spacer.Wait(ctx); err != nil {
		return nil, err
	}
	configRes, err := m.client.RunGetMethod(ctx, m.master, "getAssetsConfig")
	if err != nil {
		return nil, fmt.Errorf("fetch assets config: %w", err)
	}
	configCell, err := configRes.CellAt(0)
	if err != nil {
		return nil, fmt.Errorf("assets config result: %w", err)
	}

	if err := m.spacer.Wait(ctx); err != nil {
		return nil, err
	}
	dataRes, err := m.client.RunGetMethod(ctx, m.master, "getAssetsData")
	if err != nil {
		return nil, fmt.Errorf("fetch assets data: %w", err)
	}
	dataCell, err := dataRes.CellAt(0)
	if err != nil {
		return nil, fmt.Errorf("assets data result: %w", err)
	}

	configs, err := parseAssetConfigDict(configCell)
	if err != nil {
		return nil, err
	}
	data, err := parseAssetDataDict(dataCell)
	if err != nil {
		return nil, err
	}

	state := &MasterState{Configs: configs, Data: data}
	m.state.Store(state)

	m.log.Debug("master state synced",
		zap.Int("assets", len(configs)),
		zap.Duration("took", time.Since(start)))
	return state, nil
}
