package memdispatch

import (
	"context"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/pkg/errors"
)

func notFound(kind, id string) error {
	return errors.Wrapf(models.ErrNotFound, "%s %s", kind, id)
}

func (s *Store) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return errors.Errorf("job %s already exists", job.ID)
	}
	j := *job
	if job.AssignedCourier != nil {
		c := *job.AssignedCourier
		j.AssignedCourier = &c
	}
	s.jobs[job.ID] = j
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, notFound("job", id)
	}
	return &j, nil
}

func (s *Store) TransitionJob(_ context.Context, id string, expected, next models.JobStatus, assignedCourier *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, notFound("job", id)
	}
	if !containsJob(models.AllowedJobSources(expected, next), j.Status) {
		return false, nil
	}
	j.Status = next
	j.UpdatedAt = s.now()
	if assignedCourier != nil {
		c := *assignedCourier
		j.AssignedCourier = &c
	}
	s.jobs[id] = j
	return true, nil
}

func (s *Store) CreateBid(_ context.Context, bid *models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[bid.ID]; ok {
		return errors.Errorf("bid %s already exists", bid.ID)
	}
	s.bids[bid.ID] = *bid
	s.jobBids[bid.JobID] = append(s.jobBids[bid.JobID], bid.ID)
	return nil
}

func (s *Store) GetBid(_ context.Context, id string) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[id]
	if !ok {
		return nil, notFound("bid", id)
	}
	return &b, nil
}

func (s *Store) ListBids(_ context.Context, jobID string) ([]*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.jobBids[jobID]
	out := make([]*models.Bid, 0, len(ids))
	for _, id := range ids {
		b := s.bids[id]
		out = append(out, &b)
	}
	return out, nil
}

// TransitionBid publishes the moved bid to job watchers after releasing the lock.
func (s *Store) TransitionBid(_ context.Context, id string, expected, next models.BidStatus) (bool, error) {
	s.mu.Lock()
	b, ok := s.bids[id]
	if !ok {
		s.mu.Unlock()
		return false, notFound("bid", id)
	}
	if !containsBid(models.AllowedBidSources(expected, next), b.Status) {
		s.mu.Unlock()
		return false, nil
	}
	b.Status = next
	b.UpdatedAt = s.now()
	s.bids[id] = b
	s.mu.Unlock()

	s.bidEvents.Publish(b.JobID, b)
	return true, nil
}

func (s *Store) WatchBids(ctx context.Context, jobID string, statuses ...models.BidStatus) (<-chan models.Bid, error) {
	src := s.bidEvents.Subscribe(ctx, jobID)
	if len(statuses) == 0 {
		return src, nil
	}

	out := make(chan models.Bid)
	go func() {
		defer close(out)
		for b := range src {
			if !containsBid(statuses, b.Status) {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func containsBid(list []models.BidStatus, st models.BidStatus) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}

func containsJob(list []models.JobStatus, st models.JobStatus) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}
