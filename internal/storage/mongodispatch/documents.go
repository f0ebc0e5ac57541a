package mongodispatch

import (
	"time"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/models"
)

// geoPoint is a GeoJSON point, coordinates are [lon, lat].
type geoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

func pointOf(p models.Position) geoPoint {
	return geoPoint{Type: "Point", Coordinates: []float64{p.Lon, p.Lat}}
}

func (g geoPoint) position() models.Position {
	if len(g.Coordinates) < 2 {
		return models.Position{}
	}
	return models.Position{Lon: g.Coordinates[0], Lat: g.Coordinates[1]}
}

type courierDoc struct {
	ID        string    `bson:"_id"`
	Location  geoPoint  `bson:"location"`
	Status    string    `bson:"status"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type candidateDoc struct {
	ID       string  `bson:"_id"`
	Distance float64 `bson:"distance_m"`
}

type jobDoc struct {
	ID              string    `bson:"_id"`
	RestaurantID    string    `bson:"restaurant_id"`
	Pickup          string    `bson:"pickup"`
	Dropoff         string    `bson:"dropoff"`
	MenuItem        string    `bson:"menu_item"`
	Reward          float64   `bson:"reward"`
	EstimatedTime   string    `bson:"estimated_time"`
	Origin          geoPoint  `bson:"origin"`
	Status          string    `bson:"status"`
	SelectedCourier *string   `bson:"selectedCourier"`
	CreatedAt       time.Time `bson:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt"`
}

func jobToDoc(j *models.Job) jobDoc {
	return jobDoc{
		ID:              j.ID,
		RestaurantID:    j.RestaurantID,
		Pickup:          j.Pickup,
		Dropoff:         j.Dropoff,
		MenuItem:        j.MenuItem,
		Reward:          j.Reward,
		EstimatedTime:   j.EstimatedTime,
		Origin:          pointOf(j.Origin),
		Status:          string(j.Status),
		SelectedCourier: j.AssignedCourier,
		CreatedAt:       j.CreatedAt.UTC(),
		UpdatedAt:       j.UpdatedAt.UTC(),
	}
}

func (d jobDoc) model() *models.Job {
	return &models.Job{
		ID:              d.ID,
		RestaurantID:    d.RestaurantID,
		Pickup:          d.Pickup,
		Dropoff:         d.Dropoff,
		MenuItem:        d.MenuItem,
		Reward:          d.Reward,
		EstimatedTime:   d.EstimatedTime,
		Origin:          d.Origin.position(),
		Status:          models.JobStatus(d.Status),
		AssignedCourier: d.SelectedCourier,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type bidDoc struct {
	ID             string    `bson:"_id"`
	JobID          string    `bson:"job_id"`
	TargetCourier  string    `bson:"targetCourier"`
	Status         string    `bson:"status"`
	DistanceMeters float64   `bson:"distance_m"`
	OfferedAt      time.Time `bson:"ts_offer"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func bidToDoc(b *models.Bid) bidDoc {
	return bidDoc{
		ID:             b.ID,
		JobID:          b.JobID,
		TargetCourier:  b.CourierID,
		Status:         string(b.Status),
		DistanceMeters: b.DistanceMeters,
		OfferedAt:      b.OfferedAt.UTC(),
		UpdatedAt:      b.UpdatedAt.UTC(),
	}
}

func (d bidDoc) model() *models.Bid {
	return &models.Bid{
		ID:             d.ID,
		JobID:          d.JobID,
		CourierID:      d.TargetCourier,
		Status:         models.BidStatus(d.Status),
		DistanceMeters: d.DistanceMeters,
		OfferedAt:      d.OfferedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type notificationDoc struct {
	CourierID string                  `bson:"courier_id"`
	Message   messages.CourierMessage `bson:"message"`
	CreatedAt time.Time               `bson:"createdAt"`
}

type restaurantDoc struct {
	ID       string   `bson:"_id"`
	Name     string   `bson:"name"`
	Cuisine  string   `bson:"cuisine"`
	Location geoPoint `bson:"location"`
}

type menuDoc struct {
	RestaurantID string  `bson:"restaurant_id"`
	Item         string  `bson:"item"`
	Price        float64 `bson:"price"`
}
