package mongodispatch

import (
	"github.com/BearBump/CourierBid/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// nearestPipeline finds the closest available couriers with no distance bound.
func nearestPipeline(origin models.Position, max int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.D{
			{Key: "near", Value: pointOf(origin)},
			{Key: "distanceField", Value: "distance_m"},
			{Key: "query", Value: bson.D{{Key: "status", Value: string(models.CourierStatusAvailable)}}},
			{Key: "spherical", Value: true},
		}}},
		{{Key: "$limit", Value: int64(max)}},
		{{Key: "$project", Value: bson.D{{Key: "_id", Value: 1}, {Key: "distance_m", Value: 1}}}},
	}
}

// bidChangesPipeline matches updates of one job's bids that landed in one of statuses.
func bidChangesPipeline(jobID string, statuses []models.BidStatus) mongo.Pipeline {
	match := bson.D{
		{Key: "operationType", Value: "update"},
		{Key: "fullDocument.job_id", Value: jobID},
	}
	if len(statuses) > 0 {
		in := make(bson.A, 0, len(statuses))
		for _, st := range statuses {
			in = append(in, string(st))
		}
		match = append(match, bson.E{Key: "fullDocument.status", Value: bson.D{{Key: "$in", Value: in}}})
	}
	return mongo.Pipeline{{{Key: "$match", Value: match}}}
}

func courierFeedPipeline(courierID string) mongo.Pipeline {
	return mongo.Pipeline{{{Key: "$match", Value: bson.D{
		{Key: "operationType", Value: "insert"},
		{Key: "fullDocument.courier_id", Value: courierID},
	}}}}
}

func samplePipeline(match bson.D) mongo.Pipeline {
	p := mongo.Pipeline{}
	if len(match) > 0 {
		p = append(p, bson.D{{Key: "$match", Value: match}})
	}
	return append(p, bson.D{{Key: "$sample", Value: bson.D{{Key: "size", Value: 1}}}})
}

// transitionFilter selects a record by id whose status is one of allowed.
func transitionFilter(id string, allowed []string) bson.D {
	in := make(bson.A, 0, len(allowed))
	for _, a := range allowed {
		in = append(in, a)
	}
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "status", Value: bson.D{{Key: "$in", Value: in}}},
	}
}
