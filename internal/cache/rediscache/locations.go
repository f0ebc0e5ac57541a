package rediscache

import (
	"context"
	"strconv"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// searchRadiusKm covers the whole planet: Nearest is bounded by count only.
const searchRadiusKm = 20000

// Report keeps only available couriers in the geo set; the courier hash keeps the last position and status.
func (s *Store) Report(ctx context.Context, courierID string, pos models.Position, available bool) error {
	now := s.now()
	pipe := s.c.TxPipeline()
	pipe.HSet(ctx, courierKey(courierID), map[string]any{
		"id":         courierID,
		"lon":        strconv.FormatFloat(pos.Lon, 'f', -1, 64),
		"lat":        strconv.FormatFloat(pos.Lat, 'f', -1, 64),
		"status":     string(models.StatusFor(available)),
		"updated_at": now.Format(timeLayout),
	})
	if available {
		pipe.GeoAdd(ctx, locationsKey, &redis.GeoLocation{
			Name:      courierID,
			Longitude: pos.Lon,
			Latitude:  pos.Lat,
		})
	} else {
		pipe.ZRem(ctx, locationsKey, courierID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis report location")
	}
	return nil
}

func (s *Store) Nearest(ctx context.Context, origin models.Position, max int) ([]models.Candidate, error) {
	if max <= 0 {
		return nil, nil
	}
	locs, err := s.c.GeoRadius(ctx, locationsKey, origin.Lon, origin.Lat, &redis.GeoRadiusQuery{
		Radius:   searchRadiusKm,
		Unit:     "km",
		WithDist: true,
		Count:    max,
		Sort:     "ASC",
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "redis georadius")
	}

	out := make([]models.Candidate, 0, len(locs))
	for _, l := range locs {
		out = append(out, models.Candidate{
			CourierID:      l.Name,
			DistanceMeters: l.Dist * 1000,
		})
	}
	return out, nil
}

// Courier reads back the last report of a courier.
func (s *Store) Courier(ctx context.Context, id string) (*models.Courier, error) {
	m, err := s.c.HGetAll(ctx, courierKey(id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis get courier")
	}
	if len(m) == 0 {
		return nil, errors.Wrapf(models.ErrNotFound, "courier %s", id)
	}
	c := &models.Courier{ID: id, Status: models.CourierStatus(m["status"])}
	c.Position.Lon, _ = strconv.ParseFloat(m["lon"], 64)
	c.Position.Lat, _ = strconv.ParseFloat(m["lat"], 64)
	c.UpdatedAt = parseTime(m["updated_at"])
	return c, nil
}
