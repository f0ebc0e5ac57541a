package kafka

import (
	"context"
	"encoding/json"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutcomePublisher writes committed dispatch cycles to one topic. Messages are
// keyed by job id so every record of a job lands in the same partition.
type OutcomePublisher struct {
	w     messageWriter
	topic string
}

func NewOutcomePublisher(brokers []string, topic string) *OutcomePublisher {
	return &OutcomePublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

func newOutcomePublisherWithWriter(w messageWriter, topic string) *OutcomePublisher {
	return &OutcomePublisher{w: w, topic: topic}
}

func (p *OutcomePublisher) PublishOutcome(ctx context.Context, out messages.JobOutcome) error {
	if out.JobID == "" {
		return errors.New("outcome without job_id")
	}
	b, err := json.Marshal(out)
	if err != nil {
		return errors.Wrap(err, "marshal outcome")
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(out.JobID),
		Value: b,
	}); err != nil {
		return errors.Wrapf(err, "kafka publish outcome %s", out.JobID)
	}
	return nil
}

func (p *OutcomePublisher) Close() error {
	if c, ok := p.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
