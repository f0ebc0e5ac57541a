package pgdispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/pkg/errors"
)

// WatchBids holds one pooled connection in LISTEN mode until ctx ends.
func (s *Storage) WatchBids(ctx context.Context, jobID string, statuses ...models.BidStatus) (<-chan models.Bid, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire listen conn")
	}
	if _, err := conn.Exec(ctx, "LISTEN "+bidChangesChannel); err != nil {
		conn.Release()
		return nil, errors.Wrap(err, "listen bid changes")
	}

	out := make(chan models.Bid)
	go func() {
		defer close(out)
		defer func() {
			unlistenCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			_, _ = conn.Exec(unlistenCtx, "UNLISTEN *")
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				return
			}
			var bid models.Bid
			if err := json.Unmarshal([]byte(n.Payload), &bid); err != nil {
				continue
			}
			if bid.JobID != jobID || !wanted(bid.Status, statuses) {
				continue
			}
			select {
			case out <- bid:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func wanted(st models.BidStatus, statuses []models.BidStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}
