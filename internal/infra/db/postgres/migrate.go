package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  payload JSONB NOT NULL,
  state TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER NOT NULL DEFAULT 3,
  priority INTEGER NOT NULL DEFAULT 0,
  backoff JSONB NOT NULL,
  next_run_at TIMESTAMPTZ NOT NULL,
  lease_expires_at TIMESTAMPTZ,
  worker_id TEXT NOT NULL DEFAULT '',
  cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL,
  processed_at TIMESTAMPTZ,
  finished_at TIMESTAMPTZ,
  result JSONB,
  failure_reason TEXT NOT NULL DEFAULT '',
  progress JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_jobs_lease ON jobs(type, state, next_run_at, priority DESC, id);
CREATE INDEX IF NOT EXISTS idx_jobs_stalled ON jobs(type, state, lease_expires_at);
CREATE INDEX IF NOT EXISTS idx_jobs_finished ON jobs(type, state, finished_at);

CREATE TABLE IF NOT EXISTS cost_records (
  id UUID PRIMARY KEY,
  user_id TEXT NOT NULL,
  service TEXT NOT NULL,
  operation TEXT NOT NULL,
  amount_micros BIGINT NOT NULL,
  metadata JSONB,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_records_user ON cost_records(user_id, created_at);

CREATE TABLE IF NOT EXISTS media_statuses (
  media_item_id TEXT PRIMARY KEY,
  state TEXT NOT NULL,
  metadata JSONB,
  updated_at TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the pipeline tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
