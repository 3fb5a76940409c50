package postgres

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_events (
		seq          BIGINT PRIMARY KEY,
		block_number BIGINT NOT NULL,
		line         BIGINT NOT NULL,
		kind         TEXT NOT NULL,
		source       TEXT NOT NULL,
		actor        TEXT,
		token_in     TEXT,
		token_out    TEXT,
		amount_in    NUMERIC(78, 0),
		amount_out   NUMERIC(78, 0),
		attrs        JSONB,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_events_source_idx ON ledger_events (source, seq)`,
	`CREATE TABLE IF NOT EXISTS pools (
		pool_address TEXT PRIMARY KEY,
		admin        TEXT NOT NULL,
		fee          NUMERIC NOT NULL,
		started      BOOLEAN NOT NULL,
		tokens       JSONB NOT NULL,
		block_number BIGINT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pool_window_metrics (
		pool_address       TEXT NOT NULL,
		token_address      TEXT NOT NULL,
		window_blocks      BIGINT NOT NULL,
		window_start_block BIGINT NOT NULL,
		window_end_block   BIGINT NOT NULL,
		swap_count         BIGINT NOT NULL,
		volume_in          NUMERIC NOT NULL,
		volume_out         NUMERIC NOT NULL,
		fee                NUMERIC NOT NULL,
		fee_method         TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (pool_address, token_address, window_blocks, window_start_block)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_state (
		name           TEXT PRIMARY KEY,
		last_processed BIGINT NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
}
