package dispatcher

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/google/uuid"
)

type Rand interface {
	Intn(n int) int
	Float64() float64
}

func defaultRand() Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// newJob builds a PENDING job picked up at the restaurant.
func newJob(r *models.Restaurant, item *models.MenuItem, rnd Rand, now time.Time) *models.Job {
	pickup := r.Name
	if pickup == "" {
		pickup = "Restaurant " + r.ID
	}
	return &models.Job{
		ID:            uuid.NewString(),
		RestaurantID:  r.ID,
		Pickup:        pickup,
		Dropoff:       fmt.Sprintf("Client au %d Rue de la Paix", 1+rnd.Intn(100)),
		MenuItem:      item.Item,
		Reward:        math.Round((5+rnd.Float64()*10)*100) / 100,
		EstimatedTime: fmt.Sprintf("%d min", 10+rnd.Intn(31)),
		Origin:        r.Position,
		Status:        models.JobStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newBid(jobID string, c models.Candidate, now time.Time) *models.Bid {
	return &models.Bid{
		ID:             uuid.NewString(),
		JobID:          jobID,
		CourierID:      c.CourierID,
		Status:         models.BidStatusOffered,
		DistanceMeters: math.Round(c.DistanceMeters*100) / 100,
		OfferedAt:      now,
		UpdatedAt:      now,
	}
}
