package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammLedger/internal/aggregate"
	"ammLedger/internal/config"
	"ammLedger/internal/storage/postgres"
)

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if cfg.WindowBlocks == 0 {
		return fmt.Errorf("window blocks must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if cfg.PGMigrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	var stateStore aggregate.StateStore
	if cfg.StateFile != "" {
		stateStore = &aggregate.FileStateStore{Path: cfg.StateFile, WindowBlocks: cfg.WindowBlocks}
	} else {
		stateStore = &aggregate.DBStateStore{Table: store, WindowBlocks: cfg.WindowBlocks}
	}

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowBlocks:  cfg.WindowBlocks,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: cfg.RecomputeFrom,
		StateStore:    stateStore,
	}, store, logger)

	logger.Info("aggregate start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", config.RedactDSN(cfg.PGDSN)),
		zap.Uint64("window_blocks", cfg.WindowBlocks),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", cfg.RecomputeFrom),
	)

	return agg.Run(ctx, cfg.Input)
}
