package rediscache

import (
	"context"
	"encoding/json"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func (s *Store) SendToCourier(ctx context.Context, courierID string, msg messages.CourierMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal courier message")
	}
	if err := s.c.Publish(ctx, courierChannel(courierID), b).Err(); err != nil {
		return errors.Wrap(err, "redis publish courier message")
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, courierID string) (<-chan messages.CourierMessage, error) {
	ps, err := s.subscribe(ctx, courierChannel(courierID))
	if err != nil {
		return nil, err
	}

	out := make(chan messages.CourierMessage)
	go func() {
		defer close(out)
		defer ps.Close()
		forward(ctx, ps, out, func(payload string) (messages.CourierMessage, bool) {
			var msg messages.CourierMessage
			if err := json.Unmarshal([]byte(payload), &msg); err != nil {
				return msg, false
			}
			return msg, true
		})
	}()
	return out, nil
}

// subscribe returns once redis has confirmed the subscription.
func (s *Store) subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	ps := s.c.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "redis subscribe")
	}
	return ps, nil
}

// forward decodes pub/sub payloads into out until ctx ends or the subscription closes.
// Payloads that fail to decode are dropped.
func forward[T any](ctx context.Context, ps *redis.PubSub, out chan<- T, decode func(string) (T, bool)) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			v, ok := decode(m.Payload)
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
}
