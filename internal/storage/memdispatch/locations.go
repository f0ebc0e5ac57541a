package memdispatch

import (
	"context"
	"math"
	"sort"

	"github.com/BearBump/CourierBid/internal/models"
)

const earthRadiusMeters = 6371008.8

func (s *Store) Report(_ context.Context, courierID string, pos models.Position, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.couriers[courierID] = models.Courier{
		ID:        courierID,
		Position:  pos,
		Status:    models.StatusFor(available),
		UpdatedAt: s.now(),
	}
	return nil
}

func (s *Store) Nearest(_ context.Context, origin models.Position, max int) ([]models.Candidate, error) {
	if max <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	out := make([]models.Candidate, 0, len(s.couriers))
	for _, c := range s.couriers {
		if !c.Available() {
			continue
		}
		out = append(out, models.Candidate{CourierID: c.ID, DistanceMeters: haversine(origin, c.Position)})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters == out[j].DistanceMeters {
			return out[i].CourierID < out[j].CourierID
		}
		return out[i].DistanceMeters < out[j].DistanceMeters
	})
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (s *Store) Courier(_ context.Context, id string) (*models.Courier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.couriers[id]
	if !ok {
		return nil, notFound("courier", id)
	}
	return &c, nil
}

// haversine returns the great-circle distance in meters.
func haversine(a, b models.Position) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
