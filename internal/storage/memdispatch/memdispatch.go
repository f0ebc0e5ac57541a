package memdispatch

import (
	"math/rand"
	"sync"
	"time"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/models"
)

// Store keeps couriers, jobs, bids and the catalog in process memory.
// It implements the same contracts as the redis and mongo substrates.
type Store struct {
	mu       sync.Mutex
	couriers map[string]models.Courier
	jobs     map[string]models.Job
	bids     map[string]models.Bid
	jobBids  map[string][]string

	catalogMu   sync.RWMutex
	restaurants []restaurantEntry
	rnd         *rand.Rand
	rndMu       sync.Mutex

	notes     *topicBus[messages.CourierMessage]
	bidEvents *topicBus[models.Bid]

	now func() time.Time
}

func New() *Store {
	return &Store{
		couriers:  make(map[string]models.Courier),
		jobs:      make(map[string]models.Job),
		bids:      make(map[string]models.Bid),
		jobBids:   make(map[string][]string),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		notes:     newTopicBus[messages.CourierMessage](),
		bidEvents: newTopicBus[models.Bid](),
		now:       func() time.Time { return time.Now().UTC() },
	}
}
