package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ammLedger/internal/exchange"
	"ammLedger/internal/model"
	"ammLedger/internal/storage"
)

// RunConfig holds runtime settings for the runner.
type RunConfig struct {
	InputPath         string
	FromLine          uint64
	ToLine            uint64
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	StopOnError       bool
}

// Stats summarizes one run.
type Stats struct {
	Applied  int
	Rejected int
	Invalid  int
	Events   int
	LastLine uint64
}

// Runner applies an operations file to an exchange and writes the results.
type Runner struct {
	cfg        RunConfig
	exchange   *exchange.Exchange
	events     storage.EventSink
	failures   storage.FailureSink
	pools      storage.PoolSink
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies. failures and pools may be nil.
func NewRunner(cfg RunConfig, ex *exchange.Exchange, events storage.EventSink, failures storage.FailureSink, pools storage.PoolSink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		exchange:   ex,
		events:     events,
		failures:   failures,
		pools:      pools,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the apply loop.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if r.exchange == nil {
		return stats, fmt.Errorf("exchange is nil")
	}
	if r.events == nil {
		return stats, fmt.Errorf("event sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return stats, fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.InputPath == "" {
		return stats, fmt.Errorf("input path is required")
	}

	from := r.cfg.FromLine
	if from == 0 {
		from = 1
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return stats, err
	}
	if ok && cp.LastAppliedLine >= from {
		if cp.Snapshot == nil {
			return stats, fmt.Errorf("checkpoint at line %d has no snapshot", cp.LastAppliedLine)
		}
		if err := r.exchange.Restore(*cp.Snapshot); err != nil {
			return stats, fmt.Errorf("restore checkpoint: %w", err)
		}
		from = cp.LastAppliedLine + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_applied", cp.LastAppliedLine), zap.Uint64("from", from))
	}

	ops, invalid, lastLine, err := r.readOperations(ctx, from)
	if err != nil {
		return stats, err
	}
	to := lastLine
	if r.cfg.ToLine > 0 && r.cfg.ToLine < to {
		to = r.cfg.ToLine
	}
	if from > to {
		r.logger.Info("nothing to apply", zap.Uint64("from", from), zap.Uint64("to", to))
		return stats, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return stats, err
	}

	next := 0
	for _, lineRange := range ranges {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		var records []model.EventRecord
		var failures []model.OperationFailure
		for ; next < len(ops) && ops[next].Line <= lineRange.To; next++ {
			op := ops[next]
			if bad, ok := invalid[op.Line]; ok {
				failures = append(failures, bad)
				stats.Invalid++
				continue
			}

			res, err := r.exchange.Apply(ctx, op)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				if r.cfg.StopOnError {
					return stats, fmt.Errorf("line %d: %w", op.Line, err)
				}
				failures = append(failures, buildFailure(op, r.exchange.BlockNumber(), err))
				stats.Rejected++
				continue
			}
			records = append(records, buildEventRecords(res, op.Line)...)
			stats.Applied++
		}

		if err := r.flush(ctx, records, failures); err != nil {
			return stats, err
		}
		if err := r.checkpoint.Save(lineRange.To, r.exchange.Snapshot()); err != nil {
			return stats, err
		}

		stats.Events += len(records)
		stats.LastLine = lineRange.To
		r.logger.Info("batch complete",
			zap.Int("events", len(records)),
			zap.Int("rejected", len(failures)),
			zap.Uint64("from", lineRange.From),
			zap.Uint64("to", lineRange.To),
		)
	}

	return stats, nil
}

// readOperations loads every operation at or after from. Lines that fail to
// decode are returned as failures keyed by line and also appear in ops with
// only Line set, so they keep their place in the batch order.
func (r *Runner) readOperations(ctx context.Context, from uint64) ([]model.Operation, map[uint64]model.OperationFailure, uint64, error) {
	var ops []model.Operation
	invalid := make(map[uint64]model.OperationFailure)
	var last uint64

	err := storage.ReadJSONL(ctx, r.cfg.InputPath, func(line uint64, op model.Operation) error {
		last = line
		if line < from {
			return nil
		}
		op.Line = line
		ops = append(ops, op)
		return nil
	}, func(line uint64, err error) {
		last = line
		if line < from {
			return
		}
		invalid[line] = model.OperationFailure{Line: line, Error: err.Error()}
		ops = append(ops, model.Operation{Line: line})
		r.logger.Warn("decode operation", zap.Uint64("line", line), zap.Error(err))
	})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("read operations: %w", err)
	}
	return ops, invalid, last, nil
}

func (r *Runner) flush(ctx context.Context, records []model.EventRecord, failures []model.OperationFailure) error {
	if len(records) > 0 {
		err := r.persist(ctx, "events", len(records), func(ctx context.Context) error {
			return r.events.PutEventBatch(ctx, records)
		})
		if err != nil {
			return err
		}
	}

	if len(failures) > 0 && r.failures != nil {
		err := r.persist(ctx, "failures", len(failures), func(ctx context.Context) error {
			return r.failures.PutFailures(ctx, failures)
		})
		if err != nil {
			return err
		}
	}

	if r.pools == nil || len(records) == 0 {
		return nil
	}
	pools := r.exchange.Pools()
	err := r.persist(ctx, "pools", len(pools), func(ctx context.Context) error {
		return r.pools.UpsertPools(ctx, pools)
	})
	if err != nil {
		return err
	}
	if pruner, ok := r.pools.(poolPruner); ok {
		live := make([]string, 0, len(pools))
		for _, p := range pools {
			live = append(live, p.Address)
		}
		if err := pruner.DeletePoolsExcept(ctx, live); err != nil {
			return fmt.Errorf("prune pools: %w", err)
		}
	}
	return nil
}

// poolPruner is implemented by pool sinks that can drop destroyed pools.
type poolPruner interface {
	DeletePoolsExcept(ctx context.Context, live []string) error
}
