package storage

import (
	"context"

	"ammLedger/internal/model"
)

// EventSink receives committed events in sequence order.
type EventSink interface {
	PutEventBatch(ctx context.Context, events []model.EventRecord) error
}

// FailureSink receives rejected operations.
type FailureSink interface {
	PutFailures(ctx context.Context, failures []model.OperationFailure) error
}

// PoolSink receives pool snapshot rows.
type PoolSink interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
}

// MultiEventSink writes each batch to every sink in order and stops at the
// first error.
type MultiEventSink []EventSink

func (m MultiEventSink) PutEventBatch(ctx context.Context, events []model.EventRecord) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutEventBatch(ctx, events); err != nil {
			return err
		}
	}
	return nil
}
