package rediscache

import (
	"context"
	"strconv"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/pkg/errors"
)

// ErrEmptyCatalog is returned when no restaurant with a menu is indexed.
var ErrEmptyCatalog = errors.New("catalog is empty")

const maxPickAttempts = 5

// RandomPick draws a random indexed restaurant and one of its menu items.
// Restaurants without menus are skipped.
func (s *Store) RandomPick(ctx context.Context) (*models.Restaurant, *models.MenuItem, error) {
	for i := 0; i < maxPickAttempts; i++ {
		restKey, err := s.c.SRandMember(ctx, restaurantsIndexKey).Result()
		if err != nil {
			if isNil(err) {
				return nil, nil, ErrEmptyCatalog
			}
			return nil, nil, errors.Wrap(err, "redis pick restaurant")
		}

		rm, err := s.c.HGetAll(ctx, restKey).Result()
		if err != nil {
			return nil, nil, errors.Wrap(err, "redis get restaurant")
		}
		if len(rm) == 0 {
			continue
		}

		menuKey, err := s.c.SRandMember(ctx, restKey+":menus").Result()
		if err != nil {
			if isNil(err) {
				continue
			}
			return nil, nil, errors.Wrap(err, "redis pick menu")
		}
		mm, err := s.c.HGetAll(ctx, menuKey).Result()
		if err != nil {
			return nil, nil, errors.Wrap(err, "redis get menu")
		}

		r := &models.Restaurant{ID: rm["id"], Name: rm["name"], Cuisine: rm["cuisine"]}
		if r.Name == "" {
			r.Name = "Restaurant " + r.ID
		}
		r.Position.Lon, _ = strconv.ParseFloat(rm["lon"], 64)
		r.Position.Lat, _ = strconv.ParseFloat(rm["lat"], 64)

		item := &models.MenuItem{Item: mm["item"]}
		if item.Item == "" {
			item.Item = "Unknown"
		}
		item.Price, _ = strconv.ParseFloat(mm["price"], 64)
		return r, item, nil
	}
	return nil, nil, ErrEmptyCatalog
}

// AddRestaurant indexes a restaurant and its menu items.
func (s *Store) AddRestaurant(ctx context.Context, r models.Restaurant, menu []models.MenuItem) error {
	restKey := "restaurant:" + r.ID
	pipe := s.c.TxPipeline()
	pipe.HSet(ctx, restKey, map[string]any{
		"id":      r.ID,
		"name":    r.Name,
		"cuisine": r.Cuisine,
		"lon":     strconv.FormatFloat(r.Position.Lon, 'f', -1, 64),
		"lat":     strconv.FormatFloat(r.Position.Lat, 'f', -1, 64),
	})
	pipe.SAdd(ctx, restaurantsIndexKey, restKey)
	for i, m := range menu {
		menuKey := restKey + ":menu:" + strconv.Itoa(i)
		pipe.HSet(ctx, menuKey, map[string]any{
			"restaurant_id": r.ID,
			"item":          m.Item,
			"price":         strconv.FormatFloat(m.Price, 'f', 2, 64),
		})
		pipe.SAdd(ctx, restKey+":menus", menuKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis add restaurant")
	}
	return nil
}
