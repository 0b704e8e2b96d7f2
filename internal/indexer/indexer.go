package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/circuitbreaker"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/notify"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/retry"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

const (
	fetchAttempts      = 3
	fetchRetryInterval = time.Second
	fetchFailurePause  = 10 * time.Second
)

// TxSource pages through an account's transaction history, newest first.
type TxSource interface {
	GetAccountTransactions(ctx context.Context, account ton.Address, beforeLT uint64, limit int) ([]ton.Transaction, error)
}

// DedupStore remembers which transactions were already handled.
type DedupStore interface {
	Seen(ctx context.Context, hash string) (bool, error)
	MarkSeen(ctx context.Context, hash string, lt uint64, utime int64) error
	Cursor(ctx context.Context) (uint64, error)
}

// Indexer scans the master contract's transaction history and routes
// each transaction: position mutations to the resyncer, settlement
// reports to the reconciler.
type Indexer struct {
	source     TxSource
	breaker    *circuitbreaker.CircuitBreaker
	dedup      DedupStore
	resyncer   *Resyncer
	reconciler *Reconciler
	notifier   notify.Notifier
	master     ton.Address
	cfg        config.IndexerConfig
	log        *zap.Logger
}

// New wires the indexer over the master contract.
func New(source TxSource, dedup DedupStore, resyncer *Resyncer, reconciler *Reconciler, notifier notify.Notifier, master ton.Address, cfg config.IndexerConfig, log *zap.Logger) *Indexer {
	return &Indexer{
		source:     source,
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig("tonapi"), log),
		dedup:      dedup,
		resyncer:   resyncer,
		reconciler: reconciler,
		notifier:   notifier,
		master:     master,
		cfg:        cfg,
		log:        log.Named("indexer"),
	}
}

// Run scans repeatedly until the context is cancelled. Each pass walks
// pages from the newest transaction backwards and stops at the first
// transaction it has already handled.
func (ix *Indexer) Run(ctx context.Context) error {
	cursor := uint64(0)
	if !ix.cfg.FromScratch {
		var err error
		cursor, err = ix.dedup.Cursor(ctx)
		if err != nil {
			return fmt.Errorf("load indexer cursor: %w", err)
		}
	}
	ix.log.Info("indexer started",
		zap.String("master", ix.master.ToRaw()),
		zap.Uint64("cursor", cursor),
		zap.Bool("fromScratch", ix.cfg.FromScratch))

	for {
		newest, err := ix.scanPass(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ix.log.Warn("scan pass failed", zap.Error(err))
		}
		if newest > cursor {
			cursor = newest
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ix.cfg.PageSleep):
		}
	}
}

// scanPass walks history pages newest to oldest until it reaches the
// cursor or an already-seen transaction. Returns the newest LT handled.
func (ix *Indexer) scanPass(ctx context.Context, cursor uint64) (uint64, error) {
	var (
		newest   uint64
		beforeLT uint64
	)
	for {
		txs, err := ix.fetchPage(ctx, beforeLT)
		if err != nil {
			return newest, err
		}
		if len(txs) == 0 {
			return newest, nil
		}

		for i := range txs {
			tx := &txs[i]
			if ctx.Err() != nil {
				return newest, ctx.Err()
			}
			if tx.LT <= cursor {
				return newest, nil
			}
			seen, err := ix.dedup.Seen(ctx, tx.Hash)
			if err != nil {
				return newest, fmt.Errorf("dedup lookup: %w", err)
			}
			if seen {
				return newest, nil
			}

			ix.handleTransaction(ctx, tx)

			if err := ix.dedup.MarkSeen(ctx, tx.Hash, tx.LT, tx.Utime); err != nil {
				return newest, fmt.Errorf("mark transaction seen: %w", err)
			}
			if tx.LT > newest {
				newest = tx.LT
			}

			select {
			case <-ctx.Done():
				return newest, ctx.Err()
			case <-time.After(ix.cfg.TxProcessDelay):
			}
		}

		if len(txs) < ix.cfg.PageLimit {
			return newest, nil
		}
		beforeLT = txs[len(txs)-1].LT

		select {
		case <-ctx.Done():
			return newest, ctx.Err()
		case <-time.After(ix.cfg.PageSleep):
		}
	}
}

// fetchPage pulls one history page with a few quick retries. A page
// that still fails raises an operator alert and backs off before the
// caller tries again.
func (ix *Indexer) fetchPage(ctx context.Context, beforeLT uint64) ([]ton.Transaction, error) {
	var txs []ton.Transaction
	res := retry.Do(ctx, fetchAttempts, fetchRetryInterval, func() error {
		return ix.breaker.Execute(ctx, func() error {
			var err error
			txs, err = ix.source.GetAccountTransactions(ctx, ix.master, beforeLT, ix.cfg.PageLimit)
			return err
		})
	})
	if !res.Success {
		ix.log.Error("fetching transaction page failed",
			zap.Uint64("beforeLT", beforeLT),
			zap.Int("attempts", res.Attempts),
			zap.Error(res.LastError))
		ix.notifier.Notify(ctx, fmt.Sprintf("indexer: transaction fetch failing: %v", res.LastError))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(fetchFailurePause):
		}
		return nil, res.LastError
	}
	return txs, nil
}

func (ix *Indexer) handleTransaction(ctx context.Context, tx *ton.Transaction) {
	c, err := classify(tx, ix.master)
	if err != nil {
		ix.log.Debug("skipping unclassifiable transaction",
			zap.String("hash", tx.Hash), zap.Error(err))
		return
	}
	switch c.kind {
	case kindMutation:
		ix.resyncer.Schedule(ctx, c.wallet, c.contract, tx.Utime, tx.LT)
	case kindSatisfied:
		ix.reconciler.OnSatisfied(ctx, tx, c.satisfied)
	case kindUnsatisfied:
		ix.reconciler.OnUnsatisfied(ctx, tx, c.unsatisfied)
	}
}
