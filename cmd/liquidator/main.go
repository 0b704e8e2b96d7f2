// Package main provides the liquidation bot entry point.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/api"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/config"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/indexer"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/liquidator"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/logging"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/notify"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/oracle"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/protocol"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ratelimit"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/storage"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/wallet"
)

const resyncWorkers = 4

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("liquidation bot starting")

	// Schema first, then connections.
	if err := storage.RunMigrations(storage.MigrateURL(&cfg.Database.Postgres), "migrations"); err != nil {
		logger.Fatal("running migrations failed", zap.Error(err))
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal("connecting to Postgres failed", zap.Error(err))
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.Fatal("connecting to Redis failed", zap.Error(err))
	}
	defer redis.Close()

	// The analytics sink is optional: without ClickHouse the bot runs,
	// it just keeps no settlement archive.
	var sink indexer.EventRecorder
	if cfg.Database.ClickHouse.Host != "" {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.Warn("connecting to ClickHouse failed, events will not be archived", zap.Error(err))
		} else {
			defer clickhouse.Close()
			eventSink, err := storage.NewEventSink(ctx, clickhouse)
			if err != nil {
				logger.Warn("preparing event sink failed", zap.Error(err))
			} else {
				sink = eventSink
			}
		}
	}

	pool := config.MainnetPool()

	accounts := storage.NewAccountRepository(postgres, pool.Assets())
	if err := accounts.EnsureSchema(ctx); err != nil {
		logger.Fatal("ensuring accounts schema failed", zap.Error(err))
	}
	tasks := storage.NewTaskRepository(postgres)
	swaps := storage.NewSwapRepository(postgres)
	dedup := storage.NewDedupRepository(postgres, redis)

	tonapi := ton.NewTonAPIClient(cfg.Chain.TonAPIURL, cfg.Chain.TonAPIKey)
	toncenter := ton.NewToncenterClient(cfg.Chain.ToncenterURL, cfg.Chain.ToncenterAPIKey)
	spacer := ratelimit.NewCallSpacer(cfg.Chain.RPCCallInterval)

	notifier := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)

	prices := oracle.NewService(
		oracle.NewClient(cfg.Oracle.Endpoints),
		cfg.Oracle.Quorum,
		cfg.Oracle.RefreshInterval,
		logger,
	)
	go prices.Run(ctx)

	masterSync := protocol.NewMasterSync(toncenter, spacer, pool.MasterAddress, logger)
	userReader := protocol.NewUserReader(toncenter, spacer)

	hotWallet, err := wallet.New(
		cfg.Wallet.Address,
		cfg.Wallet.SecretSeed,
		cfg.Wallet.SubwalletID,
		cfg.Wallet.MessageTimeout,
		toncenter,
		logger,
	)
	if err != nil {
		logger.Fatal("initializing highload wallet failed", zap.Error(err))
	}
	balances := wallet.NewBalances(toncenter, spacer, pool, hotWallet.Address())

	validator := liquidator.NewValidator(
		accounts,
		tasks,
		masterSync,
		prices,
		pool,
		liquidator.SelectByPriority,
		hotWallet.Address().ToRaw(),
		cfg.Oracle.ValidatorMaxAge,
		logger,
	)
	liq := liquidator.NewLiquidator(
		tasks,
		balances,
		hotWallet,
		protocol.NewClassicEncoder(pool),
		pool,
		cfg.Oracle.LiquidatorMaxAge,
		logger,
	)

	resyncer := indexer.NewResyncer(resyncWorkers, userReader, accounts, cfg.Indexer.ResyncDelay, logger)
	defer resyncer.Stop()
	reconciler := indexer.NewReconciler(tasks, swaps, sink, pool, notifier, logger)
	scanner := indexer.New(tonapi, dedup, resyncer, reconciler, notifier, pool.MasterAddress, cfg.Indexer, logger)

	server := api.NewServer(
		&api.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		tasks, accounts, dedup, balances, prices,
		hotWallet.Address(),
		logger,
	)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("operational server failed", zap.Error(err))
		}
	}()

	go validator.Run(ctx, cfg.Engine.ValidatorInterval)
	go liq.Run(ctx, cfg.Engine.LiquidatorInterval)
	go runSweeper(ctx, tasks, cfg.Engine.SweeperInterval, logger)

	logger.Info("liquidation bot started",
		zap.String("master", pool.MasterAddress.ToRaw()),
		zap.String("wallet", hotWallet.Address().ToRaw()))

	if err := scanner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("indexer stopped", zap.Error(err))
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("operational server shutdown failed", zap.Error(err))
	}
}

// runSweeper expires stale sent tasks and prunes old settled ones.
func runSweeper(ctx context.Context, tasks *storage.TaskRepository, interval time.Duration, logger *zap.Logger) {
	sweeperLog := logger.Named("sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if n, err := tasks.ExpireStaleSent(ctx); err != nil {
			sweeperLog.Warn("expiring stale sent tasks failed", zap.Error(err))
		} else if n > 0 {
			sweeperLog.Info("expired stale sent tasks", zap.Int64("count", n))
		}

		if n, err := tasks.DeleteOld(ctx); err != nil {
			sweeperLog.Warn("pruning old tasks failed", zap.Error(err))
		} else if n > 0 {
			sweeperLog.Debug("pruned old tasks", zap.Int64("count", n))
		}
	}
}
