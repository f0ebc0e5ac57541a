package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutcomeConsumer reads job outcomes as a member of a consumer group.
type OutcomeConsumer struct {
	r       messageReader
	log     *logrus.Entry
	skipped atomic.Int64
}

func NewOutcomeConsumer(brokers []string, topic, groupID string, log *logger.Logger) *OutcomeConsumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		StartOffset:       kafka.FirstOffset,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return newOutcomeConsumerWithReader(kafka.NewReader(cfg), log)
}

func newOutcomeConsumerWithReader(r messageReader, log *logger.Logger) *OutcomeConsumer {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &OutcomeConsumer{r: r, log: log.Component("kafka")}
}

func (c *OutcomeConsumer) Close() error {
	return c.r.Close()
}

// Skipped counts messages that did not decode as an outcome.
func (c *OutcomeConsumer) Skipped() int64 {
	return c.skipped.Load()
}

// Consume hands every outcome to handle and commits it once handled.
// A handler error stops consumption with the message uncommitted.
// Undecodable messages are logged and committed so they are not redelivered.
func (c *OutcomeConsumer) Consume(ctx context.Context, handle func(context.Context, messages.JobOutcome) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}

		var out messages.JobOutcome
		if err := json.Unmarshal(msg.Value, &out); err != nil || out.JobID == "" {
			if err == nil {
				err = errors.New("missing job_id")
			}
			c.skipped.Add(1)
			c.log.WithError(err).WithFields(logrus.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
				"key":       string(msg.Key),
			}).Warn("undecodable outcome skipped")
		} else if err := handle(ctx, out); err != nil {
			return err
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}
