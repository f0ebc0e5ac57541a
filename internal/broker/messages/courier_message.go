package messages

import "github.com/BearBump/CourierBid/internal/models"

type CourierMessageType string

const (
	TypeOffer    CourierMessageType = "offer"
	TypeAssigned CourierMessageType = "assigned"
	TypeLost     CourierMessageType = "lost"
	TypeExpired  CourierMessageType = "expired"
)

// CourierMessage is everything the dispatcher addresses to a single courier.
type CourierMessage struct {
	Type  CourierMessageType `json:"type"`
	JobID string             `json:"jobId"`

	BidID          string  `json:"bidId,omitempty"`
	DistanceMeters float64 `json:"distanceMeters,omitempty"`
	Pickup         string  `json:"pickup,omitempty"`
	Dropoff        string  `json:"dropoff,omitempty"`
	MenuItem       string  `json:"menuItem,omitempty"`
	Reward         float64 `json:"reward,omitempty"`
	EstimatedTime  string  `json:"estimatedTime,omitempty"`
}

func NewOffer(job *models.Job, bid *models.Bid) CourierMessage {
	return CourierMessage{
		Type:           TypeOffer,
		JobID:          job.ID,
		BidID:          bid.ID,
		DistanceMeters: bid.DistanceMeters,
		Pickup:         job.Pickup,
		Dropoff:        job.Dropoff,
		MenuItem:       job.MenuItem,
		Reward:         job.Reward,
		EstimatedTime:  job.EstimatedTime,
	}
}

func NewAssigned(job *models.Job) CourierMessage {
	return CourierMessage{Type: TypeAssigned, JobID: job.ID, Pickup: job.Pickup, Dropoff: job.Dropoff}
}

// NewResult builds the outcome message matching a bid's final status.
func NewResult(job *models.Job, final models.BidStatus) CourierMessage {
	switch final {
	case models.BidStatusWon:
		return NewAssigned(job)
	case models.BidStatusExpired:
		return CourierMessage{Type: TypeExpired, JobID: job.ID}
	default:
		return CourierMessage{Type: TypeLost, JobID: job.ID}
	}
}
