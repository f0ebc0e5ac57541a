package mongodispatch

import (
	"context"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	if _, err := s.coll(jobsCollection).InsertOne(ctx, jobToDoc(job)); err != nil {
		return errors.Wrap(err, "mongo insert job")
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var d jobDoc
	err := s.coll(jobsCollection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(models.ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongo get job")
	}
	return d.model(), nil
}

func (s *Store) TransitionJob(ctx context.Context, id string, expected, next models.JobStatus, assignedCourier *string) (bool, error) {
	var allowed []string
	for _, st := range models.AllowedJobSources(expected, next) {
		allowed = append(allowed, string(st))
	}
	set := bson.D{
		{Key: "status", Value: string(next)},
		{Key: "updatedAt", Value: s.now()},
	}
	if assignedCourier != nil {
		set = append(set, bson.E{Key: "selectedCourier", Value: *assignedCourier})
	}
	return s.transition(ctx, jobsCollection, id, allowed, set)
}

func (s *Store) CreateBid(ctx context.Context, bid *models.Bid) error {
	if _, err := s.coll(bidsCollection).InsertOne(ctx, bidToDoc(bid)); err != nil {
		return errors.Wrap(err, "mongo insert bid")
	}
	return nil
}

func (s *Store) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	var d bidDoc
	err := s.coll(bidsCollection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(models.ErrNotFound, "bid %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongo get bid")
	}
	return d.model(), nil
}

func (s *Store) ListBids(ctx context.Context, jobID string) ([]*models.Bid, error) {
	cur, err := s.coll(bidsCollection).Find(ctx,
		bson.D{{Key: "job_id", Value: jobID}},
		options.Find().SetSort(bson.D{{Key: "ts_offer", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "mongo find bids")
	}
	var docs []bidDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "mongo decode bids")
	}
	out := make([]*models.Bid, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *Store) TransitionBid(ctx context.Context, id string, expected, next models.BidStatus) (bool, error) {
	var allowed []string
	for _, st := range models.AllowedBidSources(expected, next) {
		allowed = append(allowed, string(st))
	}
	return s.transition(ctx, bidsCollection, id, allowed, bson.D{
		{Key: "status", Value: string(next)},
		{Key: "updatedAt", Value: s.now()},
	})
}

// transition is a single-document compare-and-set on status.
func (s *Store) transition(ctx context.Context, collection, id string, allowed []string, set bson.D) (bool, error) {
	res, err := s.coll(collection).UpdateOne(ctx, transitionFilter(id, allowed), bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return false, errors.Wrapf(err, "mongo transition %s", collection)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := s.coll(collection).CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrapf(err, "mongo check %s", collection)
	}
	if n == 0 {
		return false, errors.Wrapf(models.ErrNotFound, "%s %s", collection, id)
	}
	return false, nil
}
