package indexer

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/protocol"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/retry"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

// Resync retry policy.
const (
	resyncAttempts = 10
	resyncInterval = 2 * time.Second
	upsertAttempts = 5
	upsertInterval = 1 * time.Second
)

// AccountWriter is the slice of the account repository the resync
// worker needs.
type AccountWriter interface {
	Upsert(ctx context.Context, account *models.Account) error
}

// UserStateReader fetches borrower sub-contract state from the chain.
type UserStateReader interface {
	Fetch(ctx context.Context, contract ton.Address) (*protocol.UserState, error)
}

// resyncJob re-reads one account from the chain after a position
// change. The chain needs a moment to settle the whole message
// cascade, hence the delay.
type resyncJob struct {
	id       string
	wallet   ton.Address
	contract ton.Address
	txUtime  int64
	txLT     uint64
}

// Resyncer owns the bounded worker pool draining resync jobs.
type Resyncer struct {
	pool     pond.Pool
	reader   UserStateReader
	accounts AccountWriter
	delay    time.Duration
	log      *zap.Logger
}

// NewResyncer builds the resync pool with the given worker bound.
func NewResyncer(workers int, reader UserStateReader, accounts AccountWriter, delay time.Duration, log *zap.Logger) *Resyncer {
	return &Resyncer{
		pool:     pond.NewPool(workers),
		reader:   reader,
		accounts: accounts,
		delay:    delay,
		log:      log.Named("resync"),
	}
}

// Schedule queues a resync for the account.
func (r *Resyncer) Schedule(ctx context.Context, wallet, contract ton.Address, txUtime int64, txLT uint64) {
	job := resyncJob{
		id:       uuid.New().String(),
		wallet:   wallet,
		contract: contract,
		txUtime:  txUtime,
		txLT:     txLT,
	}
	r.pool.Submit(func() {
		r.run(ctx, job)
	})
}

// Stop drains the pool.
func (r *Resyncer) Stop() {
	r.pool.StopAndWait()
}

func (r *Resyncer) run(ctx context.Context, job resyncJob) {
	log := r.log.With(
		zap.String("jobID", job.id),
		zap.String("contract", job.contract.ToRaw()))

	// Old transactions are already settled; only recent ones wait out
	// the cascade.
	if wait := r.delay - time.Since(time.Unix(job.txUtime, 0)); wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	var state *protocol.UserState
	res := retry.Do(ctx, resyncAttempts, resyncInterval, func() error {
		var err error
		state, err = r.reader.Fetch(ctx, job.contract)
		return err
	})
	if !res.Success {
		log.Error("account resync failed",
			zap.Int("attempts", res.Attempts), zap.Error(res.LastError))
		return
	}

	now := time.Now().UTC()
	account := &models.Account{
		WalletAddress:   state.Owner.ToRaw(),
		ContractAddress: job.contract.ToRaw(),
		CodeVersion:     state.CodeVersion,
		State:           models.AccountStateActive,
		Principals:      state.Principals,
		CreatedAt:       now,
		UpdatedAt:       now,
		ActualizedAt:    job.txUtime,
	}
	if account.WalletAddress == (ton.Address{}).ToRaw() {
		account.WalletAddress = job.wallet.ToRaw()
	}

	res = retry.Do(ctx, upsertAttempts, upsertInterval, func() error {
		return r.accounts.Upsert(ctx, account)
	})
	if !res.Success {
		log.Error("account upsert failed",
			zap.Int("attempts", res.Attempts), zap.Error(res.LastError))
		return
	}

	log.Debug("account resynced",
		zap.Int32("codeVersion", account.CodeVersion),
		zap.Int("principals", len(account.Principals)))
}
