package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "ammctl",
		Short:        "Weighted AMM and bingo ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply an operations file to the ledger",
		RunE:  runApply,
	}

	applyCmd.Flags().String("in", "", "input operations JSONL")
	applyCmd.Flags().Uint64("from", 0, "first line to apply (1-based, inclusive)")
	applyCmd.Flags().Uint64("to", 0, "last line to apply (inclusive), 0 means end of file")
	applyCmd.Flags().Uint64("batch-size", 500, "operations per batch")
	applyCmd.Flags().String("events-out", "./data/events.jsonl", "output events JSONL")
	applyCmd.Flags().String("failures-out", "./data/failures.jsonl", "rejected operations JSONL")
	applyCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	applyCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	applyCmd.Flags().Int("max-retries", 5, "maximum retry attempts for sinks")
	applyCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	applyCmd.Flags().Bool("stop-on-error", false, "stop at the first rejected operation")
	applyCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events and pools")
	applyCmd.Flags().Bool("pg-migrate", true, "create Postgres tables when missing")
	applyCmd.Flags().String("metrics-addr", "", "optional listen address for Prometheus metrics (e.g. :9100)")
	applyCmd.Flags().String("admin", "", "factory admin address")
	applyCmd.Flags().String("factory-address", "", "factory address")
	applyCmd.Flags().String("game-address", "", "bingo game address")
	applyCmd.Flags().String("default-fee", "0.003", "swap fee of new pools")
	applyCmd.Flags().Bool("sweep-on-destroy", true, "return pool balances to the owner on destroy")
	applyCmd.Flags().Int("max-pools-per-owner", 0, "pool limit per owner, 0 means unlimited")
	applyCmd.Flags().String("card-price", "0.1", "bingo card price")
	applyCmd.Flags().Uint64("game-timeout", 100, "bingo subscription timeout in blocks")
	applyCmd.Flags().String("seed", "", "bingo seed (32-byte hex or any text)")
	applyCmd.Flags().Uint64("start-block", 0, "initial block number")
	applyCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(applyCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against a checkpoint",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	quoteCmd.Flags().String("pool", "", "pool address")
	quoteCmd.Flags().String("caller", "", "pool owner, used with --index")
	quoteCmd.Flags().Int("index", -1, "index into the owner's pool list")
	quoteCmd.Flags().String("token-in", "", "input token symbol or address")
	quoteCmd.Flags().String("token-out", "", "output token symbol or address")
	quoteCmd.Flags().String("amount", "", "amount in (or out with --exact-out); empty prints the spot price")
	quoteCmd.Flags().Bool("exact-out", false, "treat amount as the output amount")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	bingoCmd := &cobra.Command{
		Use:   "bingo",
		Short: "Show the bingo round stored in a checkpoint",
		RunE:  runBingo,
	}

	bingoCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	bingoCmd.Flags().String("player", "", "show this player's card and prize")
	bingoCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(bingoCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate swap events into block window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "./data/events.jsonl", "input events JSONL")
	aggregateCmd.Flags().Uint64("window-blocks", 100, "aggregation window in blocks")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Bool("pg-migrate", true, "create Postgres tables when missing")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().Uint64("recompute-from", 0, "recompute from this block")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare pool balances in a checkpoint with ERC-20 balances on chain",
		RunE:  runReconcile,
	}

	reconcileCmd.Flags().String("rpc", "", "RPC URL")
	reconcileCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	reconcileCmd.Flags().Uint64("block", 0, "block to read balances at, 0 means latest")
	reconcileCmd.Flags().StringSlice("pool", nil, "only these pools (comma-separated)")
	reconcileCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(reconcileCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
