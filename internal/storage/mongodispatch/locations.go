package mongodispatch

import (
	"context"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) Report(ctx context.Context, courierID string, pos models.Position, available bool) error {
	_, err := s.coll(couriersCollection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: courierID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "location", Value: pointOf(pos)},
			{Key: "status", Value: string(models.StatusFor(available))},
			{Key: "updatedAt", Value: s.now()},
		}}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrap(err, "mongo report location")
	}
	return nil
}

func (s *Store) Nearest(ctx context.Context, origin models.Position, max int) ([]models.Candidate, error) {
	if max <= 0 {
		return nil, nil
	}
	cur, err := s.coll(couriersCollection).Aggregate(ctx, nearestPipeline(origin, max))
	if err != nil {
		return nil, errors.Wrap(err, "mongo geonear")
	}
	var docs []candidateDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "mongo decode candidates")
	}

	out := make([]models.Candidate, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.Candidate{CourierID: d.ID, DistanceMeters: d.Distance})
	}
	return out, nil
}

func (s *Store) Courier(ctx context.Context, id string) (*models.Courier, error) {
	var d courierDoc
	err := s.coll(couriersCollection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(models.ErrNotFound, "courier %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongo get courier")
	}
	return &models.Courier{
		ID:        d.ID,
		Position:  d.Location.position(),
		Status:    models.CourierStatus(d.Status),
		UpdatedAt: d.UpdatedAt,
	}, nil
}
