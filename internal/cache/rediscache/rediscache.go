package rediscache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	locationsKey        = "couriers:locations"
	restaurantsIndexKey = "restaurants:index"
)

func courierKey(id string) string        { return "courier:" + id }
func courierChannel(id string) string    { return "courier:" + id + ":notify" }
func jobKey(id string) string            { return "job:" + id }
func jobBidsKey(jobID string) string     { return "job:" + jobID + ":bids" }
func jobBidsChannel(jobID string) string { return "jobs:" + jobID + ":bids" }
func bidKey(id string) string            { return "bid:" + id }

// Store implements locations, notifications, the job/bid ledger and the catalog on one redis database.
type Store struct {
	c   *redis.Client
	now func() time.Time
	log *logrus.Entry

	publish          func(ctx context.Context, channel string, payload []byte) error
	announceFailures atomic.Int64
}

type Options struct {
	Addr     string
	Password string
	DB       int
}

func New(opts Options) *Store {
	s := &Store{
		c: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		now: func() time.Time { return time.Now().UTC() },
		log: logger.NewDiscard().Component("rediscache"),
	}
	s.publish = func(ctx context.Context, channel string, payload []byte) error {
		return s.c.Publish(ctx, channel, payload).Err()
	}
	return s
}

func (s *Store) WithLogger(log *logger.Logger) *Store {
	if log != nil {
		s.log = log.Component("rediscache")
	}
	return s
}

// AnnounceFailures counts bid changes that were stored but never published.
func (s *Store) AnnounceFailures() int64 {
	return s.announceFailures.Load()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.c.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}
	return nil
}

func (s *Store) Close() error {
	return s.c.Close()
}
