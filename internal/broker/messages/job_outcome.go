package messages

import (
	"time"

	"github.com/BearBump/CourierBid/internal/models"
)

// JobOutcome is published once per committed dispatch cycle.
type JobOutcome struct {
	JobID           string           `json:"job_id"`
	Status          models.JobStatus `json:"status"`
	AssignedCourier *string          `json:"assigned_courier,omitempty"`
	Offered         int              `json:"offered"`
	Accepted        int              `json:"accepted"`
	Bids            []BidOutcome     `json:"bids"`
	DecidedAt       time.Time        `json:"decided_at"`
}

type BidOutcome struct {
	BidID          string           `json:"bid_id"`
	CourierID      string           `json:"courier_id"`
	Status         models.BidStatus `json:"status"`
	DistanceMeters float64          `json:"distance_m"`
}
