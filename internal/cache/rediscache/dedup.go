package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Seen is a redis backed "handle once" filter for courier offers.
type Seen struct {
	c      *redis.Client
	prefix string
}

func (s *Store) Seen(prefix string) *Seen {
	return &Seen{c: s.c, prefix: prefix}
}

// First does INCR on the key and sets its TTL. It reports whether this call created the key.
func (s *Seen) First(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	key := s.prefix + id
	pipe := s.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "redis dedup")
	}
	return incr.Val() == 1, nil
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
