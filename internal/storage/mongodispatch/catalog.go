package mongodispatch

import (
	"context"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrEmptyCatalog = errors.New("catalog is empty")

const maxPickAttempts = 5

// RandomPick samples a restaurant, then one of its menu items; restaurants without menus are redrawn.
func (s *Store) RandomPick(ctx context.Context) (*models.Restaurant, *models.MenuItem, error) {
	for i := 0; i < maxPickAttempts; i++ {
		var rests []restaurantDoc
		cur, err := s.coll(restaurantsCollection).Aggregate(ctx, samplePipeline(nil))
		if err != nil {
			return nil, nil, errors.Wrap(err, "mongo sample restaurant")
		}
		if err := cur.All(ctx, &rests); err != nil {
			return nil, nil, errors.Wrap(err, "mongo decode restaurant")
		}
		if len(rests) == 0 {
			return nil, nil, ErrEmptyCatalog
		}
		rest := rests[0]

		var menus []menuDoc
		cur, err = s.coll(menusCollection).Aggregate(ctx, samplePipeline(bson.D{{Key: "restaurant_id", Value: rest.ID}}))
		if err != nil {
			return nil, nil, errors.Wrap(err, "mongo sample menu")
		}
		if err := cur.All(ctx, &menus); err != nil {
			return nil, nil, errors.Wrap(err, "mongo decode menu")
		}
		if len(menus) == 0 {
			continue
		}

		r := &models.Restaurant{ID: rest.ID, Name: rest.Name, Cuisine: rest.Cuisine, Position: rest.Location.position()}
		if r.Name == "" {
			r.Name = "Restaurant " + r.ID
		}
		return r, &models.MenuItem{Item: menus[0].Item, Price: menus[0].Price}, nil
	}
	return nil, nil, ErrEmptyCatalog
}

func (s *Store) AddRestaurant(ctx context.Context, r models.Restaurant, menu []models.MenuItem) error {
	_, err := s.coll(restaurantsCollection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: r.ID}},
		restaurantDoc{ID: r.ID, Name: r.Name, Cuisine: r.Cuisine, Location: pointOf(r.Position)},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrap(err, "mongo upsert restaurant")
	}
	if len(menu) == 0 {
		return nil
	}
	docs := make([]any, 0, len(menu))
	for _, m := range menu {
		docs = append(docs, menuDoc{RestaurantID: r.ID, Item: m.Item, Price: m.Price})
	}
	if _, err := s.coll(menusCollection).InsertMany(ctx, docs); err != nil {
		return errors.Wrap(err, "mongo insert menus")
	}
	return nil
}
