package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammLedger/internal/config"
	"ammLedger/internal/event"
	"ammLedger/internal/exchange"
	"ammLedger/internal/fixed"
	"ammLedger/internal/runner"
	"ammLedger/internal/storage"
	"ammLedger/internal/storage/postgres"
)

func runApply(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadApply(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	exCfg, err := exchangeConfig(cfg.Exchange)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics listener", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	bus := event.NewBus()
	if logger.Core().Enabled(zap.DebugLevel) {
		ch, cancel := bus.Subscribe(1024)
		done := make(chan struct{})
		go func() {
			defer close(done)
			traceEvents(ch, logger)
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	ex, err := exchange.New(exCfg, bus, exchange.NewMetrics(reg), logger)
	if err != nil {
		return err
	}

	eventsOut := storage.NewJsonlStorage(cfg.EventsOut)
	var failures storage.FailureSink
	if cfg.FailuresOut != "" {
		failures = storage.NewJsonlStorage(cfg.FailuresOut)
	}

	var events storage.EventSink = eventsOut
	var pools storage.PoolSink
	if cfg.PGDSN != "" {
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
		events = storage.MultiEventSink{eventsOut, store}
		pools = store
	}

	r := runner.NewRunner(runner.RunConfig{
		InputPath:         cfg.In,
		FromLine:          cfg.FromLine,
		ToLine:            cfg.ToLine,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		StopOnError:       cfg.StopOnError,
	}, ex, events, failures, pools, logger)

	logger.Info("apply start",
		zap.String("in", cfg.In),
		zap.Uint64("from", cfg.FromLine),
		zap.Uint64("to", cfg.ToLine),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("events_out", cfg.EventsOut),
		zap.String("pg_dsn", config.RedactDSN(cfg.PGDSN)),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	stats, err := r.Run(ctx)
	logger.Info("apply done",
		zap.Int("applied", stats.Applied),
		zap.Int("rejected", stats.Rejected),
		zap.Int("invalid", stats.Invalid),
		zap.Int("events", stats.Events),
		zap.Uint64("last_line", stats.LastLine),
		zap.Uint64("block", ex.BlockNumber()),
		zap.Uint64("trace_dropped", bus.Dropped()),
	)
	return err
}

func traceEvents(ch <-chan event.Event, logger *zap.Logger) {
	for ev := range ch {
		fields := []zap.Field{
			zap.Uint64("seq", ev.Seq),
			zap.Uint64("block", ev.Block),
			zap.String("kind", string(ev.Kind)),
			zap.String("source", ev.Source.Hex()),
		}
		if ev.AmountIn != nil {
			fields = append(fields, zap.String("amount_in", fixed.Format(ev.AmountIn)))
		}
		if ev.AmountOut != nil {
			fields = append(fields, zap.String("amount_out", fixed.Format(ev.AmountOut)))
		}
		logger.Debug("event", fields...)
	}
}

func exchangeConfig(s config.ExchangeSettings) (exchange.Config, error) {
	cfg := exchange.Config{
		SweepOnDestroy:   s.SweepOnDestroy,
		MaxPoolsPerOwner: s.MaxPoolsPerOwner,
		GameTimeout:      s.GameTimeout,
		StartBlock:       s.StartBlock,
	}

	for _, item := range []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"admin", s.Admin, &cfg.Admin},
		{"factory address", s.FactoryAddress, &cfg.FactoryAddress},
		{"game address", s.GameAddress, &cfg.GameAddress},
	} {
		if !common.IsHexAddress(item.value) {
			return exchange.Config{}, fmt.Errorf("invalid %s: %q", item.name, item.value)
		}
		*item.dst = common.HexToAddress(item.value)
	}

	fee, err := fixed.Parse(s.DefaultFee)
	if err != nil {
		return exchange.Config{}, fmt.Errorf("default fee: %w", err)
	}
	cfg.DefaultFee = fee

	if s.CardPrice != "" {
		price, err := fixed.Parse(s.CardPrice)
		if err != nil {
			return exchange.Config{}, fmt.Errorf("card price: %w", err)
		}
		cfg.CardPrice = price
	}

	cfg.Seed = parseSeed(s.Seed)
	return cfg, nil
}

// parseSeed accepts a 32-byte hex hash; any other text is hashed.
func parseSeed(seed string) common.Hash {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return common.Hash{}
	}
	if strings.HasPrefix(seed, "0x") && len(seed) == 2+2*common.HashLength {
		return common.HexToHash(seed)
	}
	return crypto.Keccak256Hash([]byte(seed))
}
