package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammLedger/internal/model"
)

// Store provides Postgres persistence for events, pools and metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables used by the store when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// PutEventBatch inserts events; a sequence number already stored is skipped.
func (s *Store) PutEventBatch(ctx context.Context, events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		attrs, err := json.Marshal(ev.Attrs)
		if err != nil {
			return fmt.Errorf("marshal attrs of event %d: %w", ev.Seq, err)
		}
		batch.Queue(`
			INSERT INTO ledger_events (
				seq, block_number, line, kind, source, actor, token_in, token_out,
				amount_in, amount_out, attrs, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
			ON CONFLICT (seq) DO NOTHING
		`,
			int64(ev.Seq),
			int64(ev.Block),
			int64(ev.Line),
			ev.Kind,
			ev.Source,
			nullable(ev.Actor),
			nullable(ev.TokenIn),
			nullable(ev.TokenOut),
			nullable(ev.AmountIn),
			nullable(ev.AmountOut),
			attrs,
		)
	}
	return s.send(ctx, batch, len(events))
}

// UpsertPools inserts or updates pool snapshot rows.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		tokens, err := json.Marshal(pool.Tokens)
		if err != nil {
			return fmt.Errorf("marshal tokens of pool %s: %w", pool.Address, err)
		}
		batch.Queue(`
			INSERT INTO pools (
				pool_address, admin, fee, started, tokens, block_number, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				admin = EXCLUDED.admin,
				fee = EXCLUDED.fee,
				started = EXCLUDED.started,
				tokens = EXCLUDED.tokens,
				block_number = GREATEST(pools.block_number, EXCLUDED.block_number),
				updated_at = now()
		`,
			pool.Address,
			pool.Admin,
			pool.Fee,
			pool.Started,
			tokens,
			int64(pool.Block),
		)
	}
	return s.send(ctx, batch, len(pools))
}

// DeletePoolsExcept removes pool rows whose address is not in live.
func (s *Store) DeletePoolsExcept(ctx context.Context, live []string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pools WHERE NOT (pool_address = ANY($1))`, live)
	return err
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				pool_address, token_address, window_blocks, window_start_block, window_end_block,
				swap_count, volume_in, volume_out, fee, fee_method, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
			ON CONFLICT (pool_address, token_address, window_blocks, window_start_block)
			DO UPDATE SET
				window_end_block = EXCLUDED.window_end_block,
				swap_count = EXCLUDED.swap_count,
				volume_in = EXCLUDED.volume_in,
				volume_out = EXCLUDED.volume_out,
				fee = EXCLUDED.fee,
				fee_method = EXCLUDED.fee_method,
				updated_at = now()
		`,
			m.PoolAddress,
			m.TokenAddress,
			int64(m.WindowBlocks),
			int64(m.WindowStart),
			int64(m.WindowEnd),
			int64(m.SwapCount),
			m.VolumeIn,
			m.VolumeOut,
			m.Fee,
			m.FeeMethod,
		)
	}
	return s.send(ctx, batch, len(metrics))
}

// LoadState returns last_processed for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var last int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed FROM ledger_state WHERE name=$1`, name)
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(last), true, nil
}

// SaveState upserts last_processed for a name.
func (s *Store) SaveState(ctx context.Context, name string, last uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_state (name, last_processed, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed = EXCLUDED.last_processed, updated_at = now()
	`, name, int64(last))
	return err
}

func (s *Store) send(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
