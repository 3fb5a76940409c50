package aggregate

import (
	"context"
	"fmt"
)

// ProgressTable reads and writes named progress rows.
type ProgressTable interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, last uint64) error
}

// DBStateStore keeps aggregation progress in a database row. Each window size
// gets its own row, so runs with different sizes never share progress.
type DBStateStore struct {
	Table        ProgressTable
	WindowBlocks uint64
}

func (s *DBStateStore) name() string {
	return fmt.Sprintf("aggregator:%d", s.WindowBlocks)
}

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Table == nil {
		return 0, false, nil
	}
	next, ok, err := s.Table.LoadState(ctx, s.name())
	if err != nil {
		return 0, false, fmt.Errorf("load %s: %w", s.name(), err)
	}
	return next, ok, nil
}

func (s *DBStateStore) Save(ctx context.Context, next uint64) error {
	if s == nil || s.Table == nil {
		return nil
	}
	if err := s.Table.SaveState(ctx, s.name(), next); err != nil {
		return fmt.Errorf("save %s: %w", s.name(), err)
	}
	return nil
}
