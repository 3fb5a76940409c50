package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammLedger/internal/chain"
	"ammLedger/internal/config"
	"ammLedger/internal/model"
)

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReconcile(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	ex, err := loadCheckpoint(cfg.Checkpoint, logger)
	if err != nil {
		return err
	}
	pools := filterPools(ex.Pools(), cfg.Pools)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var block *big.Int
	if cfg.Block > 0 {
		block = new(big.Int).SetUint64(cfg.Block)
	} else {
		latest, err := chainClient.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("latest block: %w", err)
		}
		block = new(big.Int).SetUint64(latest)
	}

	logger.Info("reconcile start",
		zap.String("checkpoint", cfg.Checkpoint),
		zap.Int("pools", len(pools)),
		zap.String("block", block.String()),
	)

	report, err := chain.Reconcile(ctx, chainClient, pools, block, logger)
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if len(report.Mismatches) > 0 {
		return fmt.Errorf("%d of %d balances differ", len(report.Mismatches), report.Checked)
	}
	return nil
}

func filterPools(pools []model.Pool, only []string) []model.Pool {
	if len(only) == 0 {
		return pools
	}
	keep := make(map[string]bool, len(only))
	for _, address := range only {
		keep[strings.ToLower(address)] = true
	}
	out := make([]model.Pool, 0, len(only))
	for _, p := range pools {
		if keep[strings.ToLower(p.Address)] {
			out = append(out, p)
		}
	}
	return out
}
