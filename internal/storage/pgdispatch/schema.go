package pgdispatch

import (
	"context"

	"github.com/pkg/errors"
)

const bidChangesChannel = "bid_changes"

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  restaurant_id TEXT NOT NULL DEFAULT '',
  pickup TEXT NOT NULL,
  dropoff TEXT NOT NULL,
  menu_item TEXT NOT NULL DEFAULT '',
  reward NUMERIC(10,2) NOT NULL,
  estimated_time TEXT NOT NULL DEFAULT '',
  origin_lon DOUBLE PRECISION NOT NULL,
  origin_lat DOUBLE PRECISION NOT NULL,
  status TEXT NOT NULL,
  assigned_courier TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS bids (
  id TEXT PRIMARY KEY,
  job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
  courier_id TEXT NOT NULL,
  status TEXT NOT NULL,
  distance_m DOUBLE PRECISION NOT NULL,
  offered_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (job_id, courier_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_job_id ON bids(job_id)`,
		`
CREATE OR REPLACE FUNCTION notify_bid_change() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify('` + bidChangesChannel + `', row_to_json(NEW)::text);
  RETURN NEW;
END;
$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS bids_status_notify ON bids`,
		`
CREATE TRIGGER bids_status_notify
AFTER UPDATE OF status ON bids
FOR EACH ROW
WHEN (OLD.status IS DISTINCT FROM NEW.status)
EXECUTE FUNCTION notify_bid_change()`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
