package aggregate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ammLedger/internal/model"
	"ammLedger/internal/storage"
)

const (
	swapKind         = "swap"
	feeMethodSwapFee = "amount_in_times_pool_fee"
)

// Config controls aggregation behavior.
type Config struct {
	WindowBlocks  uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// MetricsSink persists window metrics.
type MetricsSink interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Aggregator aggregates swap events into pool window metrics.
type Aggregator struct {
	cfg          Config
	sink         MetricsSink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
}

func NewAggregator(cfg Config, sink MetricsSink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run executes aggregation over an events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.sink == nil {
		return fmt.Errorf("metrics sink is nil")
	}
	if a.cfg.WindowBlocks == 0 {
		return fmt.Errorf("window blocks must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	start, err := a.loadStartBlock(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	var total, swaps, rows, skipped, failed int
	var highest uint64
	var seen bool

	err = storage.ReadJSONL(ctx, inputPath, func(line uint64, record model.EventRecord) error {
		total++
		if !seen || record.Block > highest {
			highest = record.Block
			seen = true
		}
		if !strings.EqualFold(record.Kind, swapKind) {
			return nil
		}
		if record.Block < start {
			skipped++
			return nil
		}

		windowStart := windowStart(record.Block, a.cfg.WindowBlocks)
		windowEnd := windowStart + a.cfg.WindowBlocks

		accKey := poolKey(record.Source)
		acc := a.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			flushed := acc.Metrics(a.cfg.WindowBlocks)
			batch = append(batch, flushed...)
			rows += len(flushed)
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Source), zap.Uint64("line", line))
			return nil
		}
		swaps++

		if len(batch) >= a.cfg.BatchSize {
			if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			pending, ok := minOpenWindowStart(a.accumulators)
			if !ok {
				pending = start
			}
			if err := a.saveState(ctx, pending); err != nil {
				return err
			}
		}
		return nil
	}, func(line uint64, err error) {
		failed++
		a.logger.Warn("decode event", zap.Uint64("line", line), zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	// Every accumulator is flushed below, so only the window holding the
	// highest block seen can still grow. Progress stops there.
	next := start
	if seen && highest >= start {
		next = windowStart(highest, a.cfg.WindowBlocks)
	}
	for _, acc := range a.accumulators {
		flushed := acc.Metrics(a.cfg.WindowBlocks)
		batch = append(batch, flushed...)
		rows += len(flushed)
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return err
		}
	}
	if err := a.saveState(ctx, next); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("swaps", swaps),
		zap.Int("rows", rows),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Uint64("next_block", next),
	)

	return nil
}

// loadStartBlock returns the first block to aggregate, aligned to a window
// boundary so a partially stored window is always rebuilt in full.
func (a *Aggregator) loadStartBlock(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return windowStart(a.cfg.RecomputeFrom, a.cfg.WindowBlocks), nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	next, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return windowStart(next, a.cfg.WindowBlocks), nil
}

func (a *Aggregator) saveState(ctx context.Context, next uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	return a.cfg.StateStore.Save(ctx, next)
}
