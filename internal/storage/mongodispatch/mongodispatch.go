package mongodispatch

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	couriersCollection      = "couriers"
	jobsCollection          = "jobs"
	bidsCollection          = "bids"
	notificationsCollection = "notifications"
	restaurantsCollection   = "restaurants"
	menusCollection         = "menus"
)

// Store implements the dispatch contracts on a mongo replica set.
// Change streams back both the courier feeds and bid watches.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	s := &Store{
		client: client,
		db:     client.Database(database),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the 2dsphere and lookup indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		couriersCollection: {
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		restaurantsCollection: {
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		},
		menusCollection: {
			{Keys: bson.D{{Key: "restaurant_id", Value: 1}}},
		},
		bidsCollection: {
			{Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "targetCourier", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		notificationsCollection: {
			{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(24 * 3600)},
		},
	}
	for coll, idx := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return errors.Wrapf(err, "mongo create indexes on %s", coll)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return errors.Wrap(err, "mongo ping")
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}
