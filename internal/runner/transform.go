package runner

import (
	"ammLedger/internal/exchange"
	"ammLedger/internal/model"
)

func buildEventRecords(res exchange.Result, line uint64) []model.EventRecord {
	records := make([]model.EventRecord, 0, len(res.Events))
	for _, ev := range res.Events {
		records = append(records, exchange.EventRecord(ev, line))
	}
	return records
}

func buildFailure(op model.Operation, block uint64, err error) model.OperationFailure {
	return model.OperationFailure{
		Line:   op.Line,
		Block:  block,
		Kind:   op.Kind,
		Caller: op.Caller,
		Error:  err.Error(),
	}
}
