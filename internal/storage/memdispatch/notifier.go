package memdispatch

import (
	"context"

	"github.com/BearBump/CourierBid/internal/broker/messages"
)

func (s *Store) SendToCourier(_ context.Context, courierID string, msg messages.CourierMessage) error {
	s.notes.Publish(courierID, msg)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, courierID string) (<-chan messages.CourierMessage, error) {
	return s.notes.Subscribe(ctx, courierID), nil
}

// Listening reports whether at least one feed of courierID is open.
func (s *Store) Listening(courierID string) bool {
	return s.notes.subscribers(courierID) > 0
}
