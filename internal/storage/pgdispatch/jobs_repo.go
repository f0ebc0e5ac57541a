package pgdispatch

import (
	"context"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO jobs (
  id, restaurant_id, pickup, dropoff, menu_item, reward, estimated_time,
  origin_lon, origin_lat, status, assigned_courier, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, job.ID, job.RestaurantID, job.Pickup, job.Dropoff, job.MenuItem, job.Reward, job.EstimatedTime,
		job.Origin.Lon, job.Origin.Lat, string(job.Status), job.AssignedCourier, job.CreatedAt.UTC(), job.UpdatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "insert job")
	}
	return nil
}

func (s *Storage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var j models.Job
	var status string
	err := s.db.QueryRow(ctx, `
SELECT
  id, restaurant_id, pickup, dropoff, menu_item, reward::float8, estimated_time,
  origin_lon, origin_lat, status, assigned_courier, created_at, updated_at
FROM jobs
WHERE id = $1
`, id).Scan(
		&j.ID, &j.RestaurantID, &j.Pickup, &j.Dropoff, &j.MenuItem, &j.Reward, &j.EstimatedTime,
		&j.Origin.Lon, &j.Origin.Lat, &status, &j.AssignedCourier, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select job")
	}
	j.Status = models.JobStatus(status)
	return &j, nil
}

func (s *Storage) TransitionJob(ctx context.Context, id string, expected, next models.JobStatus, assignedCourier *string) (bool, error) {
	allowed := make([]string, 0, 2)
	for _, st := range models.AllowedJobSources(expected, next) {
		allowed = append(allowed, string(st))
	}

	tag, err := s.db.Exec(ctx, `
UPDATE jobs
SET
  status = $2,
  assigned_courier = COALESCE($3, assigned_courier),
  updated_at = now()
WHERE id = $1 AND status = ANY($4)
`, id, string(next), assignedCourier, allowed)
	if err != nil {
		return false, errors.Wrap(err, "update job status")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, "jobs", id)
}

// mustExist distinguishes a refused transition from a missing record.
func (s *Storage) mustExist(ctx context.Context, table, id string) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return errors.Wrap(err, "check "+table)
	}
	if !exists {
		return errors.Wrapf(models.ErrNotFound, "%s %s", table, id)
	}
	return nil
}
