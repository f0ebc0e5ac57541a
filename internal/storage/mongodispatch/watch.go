package mongodispatch

import (
	"context"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/models"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type bidChange struct {
	FullDocument *bidDoc `bson:"fullDocument"`
}

type notificationChange struct {
	FullDocument *notificationDoc `bson:"fullDocument"`
}

// WatchBids opens a change stream before returning, so later updates are seen.
func (s *Store) WatchBids(ctx context.Context, jobID string, statuses ...models.BidStatus) (<-chan models.Bid, error) {
	cs, err := s.coll(bidsCollection).Watch(ctx, bidChangesPipeline(jobID, statuses),
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, errors.Wrap(err, "mongo watch bids")
	}

	out := make(chan models.Bid)
	go stream(ctx, cs, out, func(ev bidChange) (models.Bid, bool) {
		if ev.FullDocument == nil {
			return models.Bid{}, false
		}
		return *ev.FullDocument.model(), true
	})
	return out, nil
}

func (s *Store) SendToCourier(ctx context.Context, courierID string, msg messages.CourierMessage) error {
	_, err := s.coll(notificationsCollection).InsertOne(ctx, notificationDoc{
		CourierID: courierID,
		Message:   msg,
		CreatedAt: s.now(),
	})
	if err != nil {
		return errors.Wrap(err, "mongo insert notification")
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, courierID string) (<-chan messages.CourierMessage, error) {
	cs, err := s.coll(notificationsCollection).Watch(ctx, courierFeedPipeline(courierID))
	if err != nil {
		return nil, errors.Wrap(err, "mongo watch notifications")
	}

	out := make(chan messages.CourierMessage)
	go stream(ctx, cs, out, func(ev notificationChange) (messages.CourierMessage, bool) {
		if ev.FullDocument == nil {
			return messages.CourierMessage{}, false
		}
		return ev.FullDocument.Message, true
	})
	return out, nil
}

// stream decodes change events into out until ctx ends or the stream fails.
func stream[E, T any](ctx context.Context, cs *mongo.ChangeStream, out chan<- T, convert func(E) (T, bool)) {
	defer close(out)
	defer cs.Close(context.WithoutCancel(ctx))

	for cs.Next(ctx) {
		var ev E
		if err := cs.Decode(&ev); err != nil {
			continue
		}
		v, ok := convert(ev)
		if !ok {
			continue
		}
		select {
		case out <- v:
		case <-ctx.Done():
			return
		}
	}
}
