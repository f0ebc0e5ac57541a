package pgdispatch

import (
	"context"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const bidColumns = `id, job_id, courier_id, status, distance_m, offered_at, updated_at`

func (s *Storage) CreateBid(ctx context.Context, bid *models.Bid) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO bids (`+bidColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, bid.ID, bid.JobID, bid.CourierID, string(bid.Status), bid.DistanceMeters, bid.OfferedAt.UTC(), bid.UpdatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "insert bid")
	}
	return nil
}

func (s *Storage) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	b, err := scanBid(s.db.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "bid %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select bid")
	}
	return b, nil
}

func (s *Storage) ListBids(ctx context.Context, jobID string) ([]*models.Bid, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+bidColumns+`
FROM bids
WHERE job_id = $1
ORDER BY offered_at, id
`, jobID)
	if err != nil {
		return nil, errors.Wrap(err, "select bids")
	}
	defer rows.Close()

	var out []*models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan bid")
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// TransitionBid relies on the bids_status_notify trigger to announce the change.
func (s *Storage) TransitionBid(ctx context.Context, id string, expected, next models.BidStatus) (bool, error) {
	allowed := make([]string, 0, 2)
	for _, st := range models.AllowedBidSources(expected, next) {
		allowed = append(allowed, string(st))
	}

	tag, err := s.db.Exec(ctx, `
UPDATE bids
SET status = $2, updated_at = now()
WHERE id = $1 AND status = ANY($3)
`, id, string(next), allowed)
	if err != nil {
		return false, errors.Wrap(err, "update bid status")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, "bids", id)
}

func scanBid(row pgx.Row) (*models.Bid, error) {
	var b models.Bid
	var status string
	if err := row.Scan(&b.ID, &b.JobID, &b.CourierID, &status, &b.DistanceMeters, &b.OfferedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = models.BidStatus(status)
	return &b, nil
}
