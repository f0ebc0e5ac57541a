package dispatcher

import (
	"context"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/models"
)

type LocationIndex interface {
	// Report upserts a courier position; unknown couriers are created.
	Report(ctx context.Context, courierID string, pos models.Position, available bool) error
	// Nearest returns up to max available couriers, closest first, with no radius bound.
	Nearest(ctx context.Context, origin models.Position, max int) ([]models.Candidate, error)
}

type Notifier interface {
	SendToCourier(ctx context.Context, courierID string, msg messages.CourierMessage) error
}

type CourierFeed interface {
	// Subscribe yields messages addressed to courierID until ctx ends, then closes the channel.
	Subscribe(ctx context.Context, courierID string) (<-chan messages.CourierMessage, error)
}

type BidWatcher interface {
	// WatchBids yields bids of jobID whose status moved to one of statuses.
	// The subscription is live when WatchBids returns.
	WatchBids(ctx context.Context, jobID string, statuses ...models.BidStatus) (<-chan models.Bid, error)
}

type BidLedger interface {
	CreateBid(ctx context.Context, bid *models.Bid) error
	GetBid(ctx context.Context, id string) (*models.Bid, error)
	ListBids(ctx context.Context, jobID string) ([]*models.Bid, error)
	// TransitionBid moves a bid to next when its current status is expected
	// (any legal source when expected is empty). A refused move is (false, nil).
	TransitionBid(ctx context.Context, id string, expected, next models.BidStatus) (bool, error)
}

type JobRegistry interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	TransitionJob(ctx context.Context, id string, expected, next models.JobStatus, assignedCourier *string) (bool, error)
}

type Catalog interface {
	RandomPick(ctx context.Context) (*models.Restaurant, *models.MenuItem, error)
}

type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome messages.JobOutcome) error
}

// Ledger is the store of record for jobs and bids.
type Ledger interface {
	JobRegistry
	BidLedger
	BidWatcher
}
